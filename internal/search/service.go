package search

import (
	"context"
	"log/slog"

	"palimpsest/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// scanning the context store.
type Service struct {
	meili  *Meili
	scan   *Scan
	logger *slog.Logger
	// OnIndexError is called when a background index write fails.
	OnIndexError func(error)
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, scan *Scan, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meili: meili, scan: scan, logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back to the scan.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to scan", "error", err)
	}

	results, total, err := s.scan.Search(ctx, q)
	if err != nil {
		s.logger.Error("scan search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Index pushes a document to Meilisearch in the background. The scan
// fallback reads the context store directly and needs nothing.
func (s *Service) Index(rec store.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	r := NewRecord(rec)
	go func() {
		if err := s.meili.IndexRecord(r); err != nil {
			s.logger.Warn("index document failed", "fileId", r.FileID, "userId", r.UserID, "error", err)
			if s.OnIndexError != nil {
				s.OnIndexError(err)
			}
		}
	}()
}

// ReindexAll pushes every context record to Meilisearch.
func (s *Service) ReindexAll(ctx context.Context, contexts store.ContextStore) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	recs, err := contexts.ListContexts(ctx, "")
	if err != nil {
		s.logger.Error("reindex load failed", "error", err)
		return
	}
	records := make([]Record, 0, len(recs))
	for _, rec := range recs {
		records = append(records, NewRecord(rec))
	}
	if err := s.meili.IndexRecords(records); err != nil {
		s.logger.Error("reindex documents failed", "error", err)
	}
}

// Close stops the Meilisearch health loop, if any.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
