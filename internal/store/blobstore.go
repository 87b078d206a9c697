package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"palimpsest/api/internal/blob"
)

const contextsPrefix = "contexts/"

// BlobContextStore keeps each record as a JSON blob under
// contexts/<user>/<file>.json.
type BlobContextStore struct {
	blobs blob.Store
}

func NewBlobContextStore(blobs blob.Store) *BlobContextStore {
	return &BlobContextStore{blobs: blobs}
}

func contextKey(fileID, userID string) string {
	return contextsPrefix + url.PathEscape(userID) + "/" + url.PathEscape(fileID) + ".json"
}

func (s *BlobContextStore) CreateContext(ctx context.Context, rec Context) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	err = s.blobs.Create(ctx, contextKey(rec.FileID, rec.UserID), string(data))
	if errors.Is(err, blob.ErrExists) {
		return ErrContextExists
	}
	if err != nil {
		return fmt.Errorf("create context: %w", err)
	}
	return nil
}

func (s *BlobContextStore) GetContext(ctx context.Context, fileID, userID string) (Context, error) {
	return s.read(ctx, contextKey(fileID, userID))
}

func (s *BlobContextStore) read(ctx context.Context, key string) (Context, error) {
	data, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return Context{}, ErrContextNotFound
	}
	if err != nil {
		return Context{}, fmt.Errorf("read context: %w", err)
	}
	var rec Context
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return Context{}, fmt.Errorf("decode context %s: %w", key, err)
	}
	return rec, nil
}

func (s *BlobContextStore) SaveContext(ctx context.Context, rec Context) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := s.blobs.Put(ctx, contextKey(rec.FileID, rec.UserID), string(data)); err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

func (s *BlobContextStore) ListContexts(ctx context.Context, userID string) ([]Context, error) {
	prefix := contextsPrefix
	if userID != "" {
		prefix += url.PathEscape(userID) + "/"
	}
	keys, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	var out []Context
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		rec, err := s.read(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortContexts(out)
	return out, nil
}

func (s *BlobContextStore) Ping(ctx context.Context) error {
	_, err := s.blobs.Exists(ctx, contextsPrefix+"ping")
	return err
}
