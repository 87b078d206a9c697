package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrPatchApplication is matched by every failure to apply a patch to a base text.
	ErrPatchApplication = errors.New("patch application failed")
	// ErrMalformedPatch indicates the patch text could not be parsed as a unified diff.
	ErrMalformedPatch = errors.New("malformed patch")
)

// ApplyError reports a hunk whose context does not match the base text.
type ApplyError struct {
	Hunk   int // 1-based hunk number
	Line   int // line the hunk claimed to start at in the base
	Reason string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("patch application failed: hunk %d at line %d: %s", e.Hunk, e.Line, e.Reason)
}

func (e *ApplyError) Is(target error) bool {
	return target == ErrPatchApplication
}

// malformedError wraps ErrMalformedPatch so it also matches ErrPatchApplication.
type malformedError struct {
	line   int
	reason string
}

func (e *malformedError) Error() string {
	return fmt.Sprintf("malformed patch: line %d: %s", e.line, e.reason)
}

func (e *malformedError) Is(target error) bool {
	return target == ErrMalformedPatch || target == ErrPatchApplication
}
