package document

import (
	"errors"
	"fmt"

	"palimpsest/api/internal/store"
)

var (
	ErrContextNotFound = store.ErrContextNotFound
	ErrAlreadyExists   = store.ErrContextExists
	// ErrInvalidID is returned for a blank file or user id.
	ErrInvalidID = errors.New("file and user ids are required")
	// ErrMessageRequired is returned by CommitPatch for a blank message.
	ErrMessageRequired = errors.New("commit message is required")
)

// PatchApplicationError reports a patch that does not apply to the current
// state of a context. The graph is untouched when it is returned.
type PatchApplicationError struct {
	FileID string
	UserID string
	Err    error
}

func (e *PatchApplicationError) Error() string {
	return fmt.Sprintf("apply patch to %s: %v", e.FileID, e.Err)
}

func (e *PatchApplicationError) Unwrap() error {
	return e.Err
}
