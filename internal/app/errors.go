package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"palimpsest/api/internal/blob"
	"palimpsest/api/internal/document"
	"palimpsest/api/internal/export"
	"palimpsest/api/internal/history"
	"palimpsest/api/internal/patch"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	// Replay failures wrap patch errors, so corruption is checked first.
	switch {
	case errors.Is(err, history.ErrCorruptHistory):
		return http.StatusInternalServerError, "CORRUPT_HISTORY", "Document history is corrupt", nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Operation timed out", nil
	case errors.Is(err, document.ErrInvalidID):
		return http.StatusBadRequest, "INVALID_ID", err.Error(), nil
	case errors.Is(err, document.ErrMessageRequired):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, history.ErrInvalidBranchName):
		return http.StatusBadRequest, "INVALID_BRANCH_NAME", "Branch name is required", nil
	case errors.Is(err, patch.ErrMalformedPatch):
		return http.StatusBadRequest, "MALFORMED_PATCH", err.Error(), nil
	case errors.Is(err, patch.ErrPatchApplication):
		var applyErr *patch.ApplyError
		if errors.As(err, &applyErr) {
			return http.StatusUnprocessableEntity, "PATCH_REJECTED", "Patch does not apply to the current content",
				map[string]any{"hunk": applyErr.Hunk, "line": applyErr.Line, "reason": applyErr.Reason}
		}
		return http.StatusUnprocessableEntity, "PATCH_REJECTED", "Patch does not apply to the current content", nil
	case errors.Is(err, document.ErrContextNotFound):
		return http.StatusNotFound, "CONTEXT_NOT_FOUND", "Document not found", nil
	case errors.Is(err, history.ErrVersionNotFound):
		return http.StatusNotFound, "VERSION_NOT_FOUND", "Version not found", nil
	case errors.Is(err, history.ErrBranchNotFound):
		return http.StatusNotFound, "BRANCH_NOT_FOUND", "Branch not found", nil
	case errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, history.ErrDuplicateBranch):
		return http.StatusConflict, "DUPLICATE_BRANCH", "Branch already exists", nil
	case errors.Is(err, document.ErrAlreadyExists), errors.Is(err, history.ErrAlreadyInitialized), errors.Is(err, blob.ErrExists):
		return http.StatusConflict, "ALREADY_EXISTS", "Document already exists", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
