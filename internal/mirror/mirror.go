// Package mirror keeps a plain-text copy of each document's current content
// for tools that read files directly.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

var (
	ErrNotMirrored = errors.New("document not mirrored")
	ErrDisabled    = errors.New("mirror disabled")
)

// Mirror receives the content of a document after every successful commit.
type Mirror interface {
	Write(ctx context.Context, fileID, userID, content, message string) error
	Read(ctx context.Context, fileID, userID string) (string, error)
}

// segment escapes an id into a single safe path element.
func segment(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty id")
	}
	s := url.PathEscape(id)
	switch s {
	case ".":
		return "%2E", nil
	case "..":
		return "%2E%2E", nil
	}
	return s, nil
}

type None struct{}

func (None) Write(ctx context.Context, fileID, userID, content, message string) error { return nil }

func (None) Read(ctx context.Context, fileID, userID string) (string, error) {
	return "", ErrDisabled
}
