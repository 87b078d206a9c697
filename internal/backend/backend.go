// Package backend turns a Config into a ready document service and the
// stores behind it.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"palimpsest/api/internal/blob"
	"palimpsest/api/internal/config"
	"palimpsest/api/internal/document"
	"palimpsest/api/internal/export"
	"palimpsest/api/internal/metrics"
	"palimpsest/api/internal/mirror"
	"palimpsest/api/internal/search"
	"palimpsest/api/internal/store"
)

type Backend struct {
	Blobs     blob.Store
	Contexts  store.ContextStore
	Mirror    mirror.Mirror
	Search    *search.Service
	Documents *document.Service
	Export    *export.Service

	logger  *slog.Logger
	closers []func() error
}

// Open builds every backend named by cfg. On error, whatever was opened is
// closed again.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *Backend, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{logger: logger}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if b.Blobs, err = b.openBlobs(ctx, cfg); err != nil {
		return nil, err
	}
	if b.Contexts, err = b.openContexts(ctx, cfg); err != nil {
		return nil, err
	}
	if b.Mirror, err = openMirror(cfg); err != nil {
		return nil, err
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.With("component", "search"))
	}
	b.Search = search.NewService(meili, search.NewScan(b.Contexts), logger.With("component", "search"))
	b.Search.OnIndexError = metrics.IndexFailed
	b.closers = append(b.closers, func() error { b.Search.Close(); return nil })
	if meili != nil {
		go b.Search.ReindexAll(context.Background(), b.Contexts)
	}

	b.Documents = document.NewService(b.Contexts, b.Blobs, document.Options{
		Mirror:  b.Mirror,
		Indexer: b.Search,
		Logger:  logger.With("component", "document"),
		Timeout: cfg.OpTimeout,
	})
	b.Export = export.NewService(b.Documents)

	logger.Info("backend ready",
		"blobs", cfg.BlobBackend, "contexts", cfg.ContextStore, "mirror", cfg.Mirror, "meili", meili != nil)
	return b, nil
}

func (b *Backend) openBlobs(ctx context.Context, cfg config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "", "fs":
		return blob.NewFS(filepath.Join(cfg.DataDir, "blobs"))
	case "memory":
		return blob.NewMemory(), nil
	case "badger":
		s, err := blob.OpenBadger(filepath.Join(cfg.DataDir, "badger"), b.logger.With("component", "badger"))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, s.Close)
		return s, nil
	case "redis":
		s, err := blob.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, s.Close)
		return s, nil
	case "minio", "s3":
		return blob.NewMinIO(ctx, blob.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

func (b *Backend) openContexts(ctx context.Context, cfg config.Config) (store.ContextStore, error) {
	switch cfg.ContextStore {
	case "", "blob":
		return store.NewBlobContextStore(b.Blobs), nil
	case "memory":
		return store.NewMemoryStore(), nil
	case "postgres":
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := store.ApplyMigrations(ctx, db, store.Migrations(cfg.MigrationsDir)); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		return store.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown context store %q", cfg.ContextStore)
	}
}

func openMirror(cfg config.Config) (mirror.Mirror, error) {
	switch cfg.Mirror {
	case "", "none":
		return mirror.None{}, nil
	case "dir":
		if err := os.MkdirAll(cfg.MirrorDir, 0o755); err != nil {
			return nil, fmt.Errorf("create mirror dir: %w", err)
		}
		return mirror.NewDir(cfg.MirrorDir), nil
	case "git":
		if err := os.MkdirAll(cfg.MirrorDir, 0o755); err != nil {
			return nil, fmt.Errorf("create mirror dir: %w", err)
		}
		return mirror.NewGit(cfg.MirrorDir), nil
	default:
		return nil, fmt.Errorf("unknown mirror %q", cfg.Mirror)
	}
}

// Ready reports whether the context store answers.
func (b *Backend) Ready(ctx context.Context) error {
	return b.Contexts.Ping(ctx)
}

// Close releases every backend in reverse opening order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
