package blob

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	fsStore, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS() error = %v", err)
	}

	badgerStore, err := OpenBadger("", nil)
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { badgerStore.Close() })

	mr := miniredis.RunT(t)
	redisStore, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { redisStore.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"badger": badgerStore,
		"redis":  redisStore,
	}
}

func TestStoreConformance(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "missing/key"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
			}
			ok, err := store.Exists(ctx, "missing/key")
			if err != nil || ok {
				t.Fatalf("Exists(missing) = %v, %v", ok, err)
			}

			if err := store.Create(ctx, "docs/a/base.md", "root\n"); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if err := store.Create(ctx, "docs/a/base.md", "other\n"); !errors.Is(err, ErrExists) {
				t.Fatalf("second Create() error = %v, want ErrExists", err)
			}
			got, err := store.Get(ctx, "docs/a/base.md")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != "root\n" {
				t.Fatalf("Get() = %q, want %q", got, "root\n")
			}

			if err := store.Put(ctx, "docs/a/history.log", "v1"); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := store.Put(ctx, "docs/a/history.log", "v2"); err != nil {
				t.Fatalf("Put() overwrite error = %v", err)
			}
			got, _ = store.Get(ctx, "docs/a/history.log")
			if got != "v2" {
				t.Fatalf("Get() after overwrite = %q, want v2", got)
			}
			if err := store.Put(ctx, "docs/b/base.md", ""); err != nil {
				t.Fatalf("Put(empty) error = %v", err)
			}
			got, err = store.Get(ctx, "docs/b/base.md")
			if err != nil || got != "" {
				t.Fatalf("Get(empty) = %q, %v", got, err)
			}

			keys, err := store.List(ctx, "docs/a/")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			want := []string{"docs/a/base.md", "docs/a/history.log"}
			if !reflect.DeepEqual(keys, want) {
				t.Fatalf("List() = %v, want %v", keys, want)
			}

			if err := store.Put(ctx, "../escape", "x"); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("Put(../escape) error = %v, want ErrInvalidKey", err)
			}
		})
	}
}

func TestCreateIsExclusiveUnderContention(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := store.Create(ctx, "race/key", "x")
					if err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
						return
					}
					if !errors.Is(err, ErrExists) {
						t.Errorf("Create() error = %v", err)
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Fatalf("Create() winners = %d, want 1", wins)
			}
		})
	}
}

func TestScoped(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	doc := Scoped(mem, DocumentPrefix("user 1", "notes/today"))

	if err := doc.Put(ctx, "versions/v1.patch", "p"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := mem.Get(ctx, "documents/user%201/notes%2Ftoday/versions/v1.patch"); err != nil {
		t.Fatalf("underlying Get() error = %v", err)
	}

	keys, err := doc.List(ctx, "versions/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"versions/v1.patch"}) {
		t.Fatalf("List() = %v", keys)
	}

	nested := Scoped(doc, "versions")
	got, err := nested.Get(ctx, "v1.patch")
	if err != nil || got != "p" {
		t.Fatalf("nested Get() = %q, %v", got, err)
	}
}

func TestRedisStorePrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	if err := store.Put(context.Background(), "a/b", "value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := mr.Get("blob:a/b")
	if err != nil {
		t.Fatalf("miniredis Get() error = %v", err)
	}
	if got != "value" {
		t.Fatalf("stored value = %q, want value", got)
	}
}
