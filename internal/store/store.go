// Package store persists the cached context record of each document.
package store

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrContextNotFound = errors.New("context not found")
	ErrContextExists   = errors.New("context already exists")
)

// Context binds a (file, user) pair to the state of its current branch
// head. Head names the version CurrentState was rebuilt from.
type Context struct {
	FileID       string    `json:"fileId"`
	UserID       string    `json:"userId"`
	CurrentState string    `json:"currentState"`
	Head         string    `json:"head"`
	Branch       string    `json:"branch"`
	Digest       string    `json:"digest"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ContextStore is implemented by every record backend. CreateContext fails
// with ErrContextExists and GetContext with ErrContextNotFound. An empty
// userID lists every record.
type ContextStore interface {
	CreateContext(ctx context.Context, rec Context) error
	GetContext(ctx context.Context, fileID, userID string) (Context, error)
	SaveContext(ctx context.Context, rec Context) error
	ListContexts(ctx context.Context, userID string) ([]Context, error)
	Ping(ctx context.Context) error
}

// Digest is the hex BLAKE2b-256 of text.
func Digest(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
