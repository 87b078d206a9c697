// Package blob stores text blobs under slash-separated logical keys.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrExists     = errors.New("blob already exists")
	ErrInvalidKey = errors.New("invalid blob key")
)

// Store is durable key/value storage for text blobs.
//
// Put overwrites. Create writes only if the key is absent and fails with
// ErrExists otherwise. Get fails with ErrNotFound. List returns the keys that
// start with prefix, sorted.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Create(ctx context.Context, key, value string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// DocumentPrefix is the namespace holding one document's history.
func DocumentPrefix(userID, fileID string) string {
	return "documents/" + url.PathEscape(userID) + "/" + url.PathEscape(fileID)
}

// ValidateKey rejects empty keys, absolute keys and keys with empty or
// dot-dot segments.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

type scoped struct {
	store  Store
	prefix string
}

// Scoped returns a view of store where every key is relative to prefix.
func Scoped(store Store, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if s, ok := store.(*scoped); ok {
		return &scoped{store: s.store, prefix: s.prefix + "/" + prefix}
	}
	return &scoped{store: store, prefix: prefix}
}

func (s *scoped) key(key string) string {
	return s.prefix + "/" + key
}

func (s *scoped) Get(ctx context.Context, key string) (string, error) {
	return s.store.Get(ctx, s.key(key))
}

func (s *scoped) Put(ctx context.Context, key, value string) error {
	return s.store.Put(ctx, s.key(key), value)
}

func (s *scoped) Create(ctx context.Context, key, value string) error {
	return s.store.Create(ctx, s.key(key), value)
}

func (s *scoped) Exists(ctx context.Context, key string) (bool, error) {
	return s.store.Exists(ctx, s.key(key))
}

func (s *scoped) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.store.List(ctx, s.key(prefix))
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, s.prefix+"/")
	}
	return keys, nil
}
