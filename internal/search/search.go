package search

import (
	"context"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"palimpsest/api/internal/sections"
	"palimpsest/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	FileID  string `json:"fileId"`
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query describes a search request. UserID restricts hits to one owner.
type Query struct {
	Text   string
	UserID string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is the data we index for a document.
type Record struct {
	ID      string   `json:"id"`
	FileID  string   `json:"fileId"`
	UserID  string   `json:"userId"`
	Title   string   `json:"title"`
	Headers []string `json:"headers"`
	Content string   `json:"content"`
}

// RecordID derives a stable index id from the owning user and file.
func RecordID(fileID, userID string) string {
	sum := blake2b.Sum256([]byte(userID + "\x00" + fileID))
	return hex.EncodeToString(sum[:])
}

// NewRecord builds the index record of a context. The title is the first
// heading, or the file id when there is none.
func NewRecord(rec store.Context) Record {
	outline := sections.BuildOutline(rec.CurrentState)
	headers := make([]string, 0, len(outline.Headings))
	for _, h := range outline.Headings {
		headers = append(headers, h.Title)
	}
	title := rec.FileID
	if len(headers) > 0 {
		title = headers[0]
	}
	return Record{
		ID:      RecordID(rec.FileID, rec.UserID),
		FileID:  rec.FileID,
		UserID:  rec.UserID,
		Title:   title,
		Headers: headers,
		Content: rec.CurrentState,
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
