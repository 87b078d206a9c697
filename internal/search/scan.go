package search

import (
	"context"
	"fmt"
	"strings"

	"palimpsest/api/internal/store"
)

const snippetRunes = 160

// Scan implements Searcher by reading every context record. It is the
// fallback when Meilisearch is not configured or unhealthy.
type Scan struct {
	contexts store.ContextStore
}

func NewScan(contexts store.ContextStore) *Scan {
	return &Scan{contexts: contexts}
}

// Healthy is always true; the scan has no dependency of its own.
func (s *Scan) Healthy() bool {
	return true
}

// Search matches every query term, case-insensitively, against titles,
// headers and bodies.
func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}
	recs, err := s.contexts.ListContexts(ctx, q.UserID)
	if err != nil {
		return nil, 0, fmt.Errorf("scan contexts: %w", err)
	}

	var matches []Result
	for _, rec := range recs {
		r := NewRecord(rec)
		haystack := strings.ToLower(r.Title + "\n" + strings.Join(r.Headers, "\n") + "\n" + r.Content)
		if !containsAll(haystack, terms) {
			continue
		}
		matches = append(matches, Result{
			ID:      r.ID,
			FileID:  r.FileID,
			UserID:  r.UserID,
			Title:   r.Title,
			Snippet: snippet(r.Content, terms[0]),
		})
	}

	total := len(matches)
	offset := max(q.Offset, 0)
	if offset >= total {
		return nil, total, nil
	}
	end := min(total, offset+normalizeLimit(q.Limit))
	return matches[offset:end], total, nil
}

func containsAll(haystack string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

// snippet returns the first line mentioning term, cut to a readable length.
func snippet(content, term string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), term) {
			line = strings.TrimSpace(line)
			if r := []rune(line); len(r) > snippetRunes {
				return string(r[:snippetRunes]) + "…"
			}
			return line
		}
	}
	return ""
}
