package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"palimpsest/api/internal/history"
	"palimpsest/api/internal/metrics"
	"palimpsest/api/internal/patch"
	"palimpsest/api/internal/sections"
	"palimpsest/api/internal/store"
)

// CreateContext starts the history of a new document. A history left behind
// by a creation that crashed before its record was written is adopted, and
// the record is rebuilt from its head.
func (s *Service) CreateContext(ctx context.Context, fileID, userID, initialContent string) (_ *store.Context, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "CreateContext", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.contexts.GetContext(ctx, fileID, userID); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, store.ErrContextNotFound) {
		return nil, fmt.Errorf("get context: %w", err)
	}

	ns := s.namespace(k)
	exists, err := history.Exists(ctx, ns)
	if err != nil {
		return nil, err
	}

	var g *history.Graph
	state := initialContent
	message := history.RootMessage
	if exists {
		s.logger.Warn("adopting history without a context record", "fileId", fileID, "userId", userID)
		g, err = history.Load(ctx, ns, s.graphOptions(k)...)
		if err != nil {
			return nil, fmt.Errorf("load orphaned history: %w", err)
		}
		state, err = s.checkout(ctx, k, g, g.Head().ID)
		if err != nil {
			return nil, err
		}
		message = "Adopt existing history"
	} else {
		g, err = history.Initialize(ctx, ns, initialContent, s.graphOptions(k)...)
		if err != nil {
			return nil, fmt.Errorf("initialize history: %w", err)
		}
	}
	s.setGraph(k, g)

	now := s.now()
	rec := s.stamp(store.Context{FileID: fileID, UserID: userID, CreatedAt: now}, state, g.Head().ID, g.CurrentBranch().Name)
	if err := s.contexts.CreateContext(ctx, rec); err != nil {
		if errors.Is(err, store.ErrContextExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create context: %w", err)
	}

	s.logger.Info("context created", "fileId", fileID, "userId", userID, "head", rec.Head, "adopted", exists)
	s.publish(ctx, rec, message)
	return &rec, nil
}

// GetContext returns the record of a context, rebuilt from history if it
// went stale.
func (s *Service) GetContext(ctx context.Context, fileID, userID string) (_ *store.Context, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "GetContext", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.RLock()
	defer lock.RUnlock()

	rec, _, err := s.record(ctx, k)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetCurrentContent returns the text at the current branch head.
func (s *Service) GetCurrentContent(ctx context.Context, fileID, userID string) (string, error) {
	rec, err := s.GetContext(ctx, fileID, userID)
	if err != nil {
		return "", err
	}
	return rec.CurrentState, nil
}

// GetSummary indexes the current content. A missing context is a nil
// summary, not an error.
func (s *Service) GetSummary(ctx context.Context, fileID, userID string) (*sections.Summary, error) {
	rec, err := s.GetContext(ctx, fileID, userID)
	if errors.Is(err, ErrContextNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	summary := sections.Index(rec.CurrentState)
	return &summary, nil
}

// GetSection returns the full body under header. found is false when the
// context or the header is missing.
func (s *Service) GetSection(ctx context.Context, fileID, userID, header string) (text string, found bool, err error) {
	rec, err := s.GetContext(ctx, fileID, userID)
	if errors.Is(err, ErrContextNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	text, found = sections.Lookup(rec.CurrentState, header)
	return text, found, nil
}

// Outline builds the table of contents and symbol list of the current
// content.
func (s *Service) Outline(ctx context.Context, fileID, userID string) (*sections.Outline, error) {
	rec, err := s.GetContext(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}
	outline := sections.BuildOutline(rec.CurrentState)
	return &outline, nil
}

// UpdateFile commits the difference between the current content and
// newContent. A missing context returns nil.
func (s *Service) UpdateFile(ctx context.Context, fileID, userID, newContent string) (_ *store.Context, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "UpdateFile", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.Lock()
	defer lock.Unlock()

	rec, g, err := s.record(ctx, k)
	if errors.Is(err, ErrContextNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.commitContent(ctx, rec, g, newContent, UpdateMessage, "update")
}

// ApplyPatch applies patchText to the current content and records the
// result as a fresh diff. A missing context returns nil; a patch that does
// not apply is a *PatchApplicationError.
func (s *Service) ApplyPatch(ctx context.Context, fileID, userID, patchText string) (_ *store.Context, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "ApplyPatch", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.Lock()
	defer lock.Unlock()

	rec, g, err := s.record(ctx, k)
	if errors.Is(err, ErrContextNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	next, err := s.applyTo(rec, patchText)
	if err != nil {
		return nil, err
	}
	return s.commitContent(ctx, rec, g, next, UpdateMessage, "apply")
}

// CommitPatch validates patchText against the current content and commits
// it with message. Unlike ApplyPatch, a missing context is an error.
func (s *Service) CommitPatch(ctx context.Context, fileID, userID, patchText, message string) (_ *store.Context, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrMessageRequired
	}
	ctx, done := s.begin(ctx, "CommitPatch", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.Lock()
	defer lock.Unlock()

	rec, g, err := s.record(ctx, k)
	if err != nil {
		return nil, err
	}
	next, err := s.applyTo(rec, patchText)
	if err != nil {
		return nil, err
	}
	return s.commitContent(ctx, rec, g, next, message, "commit")
}

func (s *Service) applyTo(rec store.Context, patchText string) (string, error) {
	next, err := patch.Apply(rec.CurrentState, patchText)
	if err == nil {
		return next, nil
	}
	reason := "stale"
	if errors.Is(err, patch.ErrMalformedPatch) {
		reason = "malformed"
	}
	metrics.PatchRejections.WithLabelValues(reason).Inc()
	return "", &PatchApplicationError{FileID: rec.FileID, UserID: rec.UserID, Err: err}
}

// commitContent diffs the record's state against next, commits the patch
// and saves the record. The caller holds the write lock.
func (s *Service) commitContent(ctx context.Context, rec store.Context, g *history.Graph, next, message, op string) (*store.Context, error) {
	patchText := patch.Diff(rec.CurrentState, next, rec.FileID+".md")
	v, err := g.Commit(ctx, patchText, message)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	metrics.Commits.WithLabelValues(op).Inc()

	rec = s.stamp(rec, next, v.ID, g.CurrentBranch().Name)
	if err := s.contexts.SaveContext(ctx, rec); err != nil {
		// The next read notices the head mismatch and rebuilds the record.
		return nil, fmt.Errorf("save context: %w", err)
	}
	s.publish(ctx, rec, message)
	return &rec, nil
}

// ListContexts lists the records of one user, or of every user when userID
// is empty.
func (s *Service) ListContexts(ctx context.Context, userID string) ([]store.Context, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	recs, err := s.contexts.ListContexts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	if recs == nil {
		recs = []store.Context{}
	}
	return recs, nil
}
