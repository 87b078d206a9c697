// Package tools exposes document reads and patches to a language-model
// caller. Every failure comes back as plain text the model can read.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"palimpsest/api/internal/sections"
	"palimpsest/api/internal/store"
)

// Documents is the part of the document service the tools call.
type Documents interface {
	GetSummary(ctx context.Context, fileID, userID string) (*sections.Summary, error)
	GetSection(ctx context.Context, fileID, userID, header string) (string, bool, error)
	ApplyPatch(ctx context.Context, fileID, userID, patchText string) (*store.Context, error)
}

const (
	SectionNotFound = "Section not found."
	PatchApplied    = "Patch applied successfully."
)

type Toolset struct {
	docs Documents
}

func New(docs Documents) *Toolset {
	return &Toolset{docs: docs}
}

// GetContext returns the section summary as JSON. A missing document is
// "null".
func (t *Toolset) GetContext(ctx context.Context, fileID, userID string) string {
	summary, err := t.docs.GetSummary(ctx, fileID, userID)
	if err != nil {
		return fmt.Sprintf("Error getting context: %v", err)
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Sprintf("Error getting context: %v", err)
	}
	return string(raw)
}

func (t *Toolset) GetSection(ctx context.Context, fileID, userID, header string) string {
	text, found, err := t.docs.GetSection(ctx, fileID, userID, header)
	if err != nil {
		return fmt.Sprintf("Error getting section: %v", err)
	}
	if !found {
		return SectionNotFound
	}
	return text
}

// ApplyAIPatch applies a model-written patch. Like ApplyPatch, a missing
// document is not an error.
func (t *Toolset) ApplyAIPatch(ctx context.Context, fileID, userID, patchText string) string {
	if _, err := t.docs.ApplyPatch(ctx, fileID, userID, patchText); err != nil {
		return fmt.Sprintf("Error applying patch: %v", err)
	}
	return PatchApplied
}
