// Package document binds each (file, user) pair to its version graph, its
// cached context record, its mirror copy and its search entry.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"palimpsest/api/internal/blob"
	"palimpsest/api/internal/history"
	"palimpsest/api/internal/metrics"
	"palimpsest/api/internal/mirror"
	"palimpsest/api/internal/store"
)

const (
	// UpdateMessage is recorded for every UpdateFile and ApplyPatch commit.
	UpdateMessage  = "User update"
	DefaultTimeout = 30 * time.Second
)

// Indexer is told about every context whose content changed. Index must not
// block.
type Indexer interface {
	Index(rec store.Context)
}

type Options struct {
	Mirror  mirror.Mirror
	Indexer Indexer
	Logger  *slog.Logger
	// Timeout bounds every operation. Zero means DefaultTimeout.
	Timeout time.Duration
	Clock   func() time.Time
}

type key struct{ fileID, userID string }

// Service is the registry of document contexts. Construct one per process
// and share it.
type Service struct {
	contexts store.ContextStore
	blobs    blob.Store
	mirror   mirror.Mirror
	indexer  Indexer
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
	tracer   trace.Tracer

	mu        sync.Mutex
	locks     map[key]*sync.RWMutex
	graphs    map[key]*history.Graph
	checkouts singleflight.Group
}

func NewService(contexts store.ContextStore, blobs blob.Store, opts Options) *Service {
	s := &Service{
		contexts: contexts,
		blobs:    blobs,
		mirror:   opts.Mirror,
		indexer:  opts.Indexer,
		logger:   opts.Logger,
		timeout:  opts.Timeout,
		now:      opts.Clock,
		tracer:   otel.Tracer("palimpsest/document"),
		locks:    map[key]*sync.RWMutex{},
		graphs:   map[key]*history.Graph{},
	}
	if s.mirror == nil {
		s.mirror = mirror.None{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func newKey(fileID, userID string) (key, error) {
	for _, id := range []string{fileID, userID} {
		switch strings.TrimSpace(id) {
		case "", ".", "..":
			return key{}, ErrInvalidID
		}
	}
	return key{fileID: fileID, userID: userID}, nil
}

func (s *Service) contextLock(k key) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[k]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[k] = lock
	}
	return lock
}

func (s *Service) namespace(k key) blob.Store {
	return blob.Scoped(s.blobs, blob.DocumentPrefix(k.userID, k.fileID))
}

func (s *Service) graphOptions(k key) []history.Option {
	return []history.Option{
		history.WithLogger(s.logger.With("fileId", k.fileID, "userId", k.userID)),
		history.WithClock(s.now),
	}
}

// graph returns the cached graph of k, loading it on first use. The caller
// holds the context lock in either mode.
func (s *Service) graph(ctx context.Context, k key) (*history.Graph, error) {
	s.mu.Lock()
	g, ok := s.graphs[k]
	s.mu.Unlock()
	if ok {
		return g, nil
	}

	g, err := history.Load(ctx, s.namespace(k), s.graphOptions(k)...)
	if errors.Is(err, history.ErrNotInitialized) {
		return nil, fmt.Errorf("%w: context %s has a record but no history", history.ErrCorruptHistory, k.fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.graphs[k]; ok {
		return existing, nil
	}
	s.graphs[k] = g
	return g, nil
}

func (s *Service) setGraph(k key, g *history.Graph) {
	s.mu.Lock()
	s.graphs[k] = g
	s.mu.Unlock()
}

// begin starts the span, timeout and latency measurement of one operation.
// The returned func must be deferred with a pointer to the named error.
func (s *Service) begin(ctx context.Context, op string, k key) (context.Context, func(*error)) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	ctx, span := s.tracer.Start(ctx, "document."+op, trace.WithAttributes(
		attribute.String("file_id", k.fileID),
		attribute.String("user_id", k.userID),
	))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		cancel()
		metrics.ObserveOperation(op, start, err)
	}
}

// record loads the context record of k and rebuilds it from history when
// its head no longer matches the graph. The caller holds the context lock.
func (s *Service) record(ctx context.Context, k key) (store.Context, *history.Graph, error) {
	rec, err := s.contexts.GetContext(ctx, k.fileID, k.userID)
	if err != nil {
		if errors.Is(err, store.ErrContextNotFound) {
			return store.Context{}, nil, ErrContextNotFound
		}
		return store.Context{}, nil, fmt.Errorf("get context: %w", err)
	}
	g, err := s.graph(ctx, k)
	if err != nil {
		return store.Context{}, nil, err
	}

	head := g.Head()
	branch := g.CurrentBranch()
	if rec.Head == head.ID && rec.Branch == branch.Name {
		return rec, g, nil
	}

	s.logger.Warn("context record is stale, rebuilding from history",
		"fileId", k.fileID, "userId", k.userID, "recordHead", rec.Head, "head", head.ID)
	state, err := s.checkout(ctx, k, g, head.ID)
	if err != nil {
		return store.Context{}, nil, err
	}
	rec = s.stamp(rec, state, head.ID, branch.Name)
	if err := s.contexts.SaveContext(ctx, rec); err != nil {
		return store.Context{}, nil, fmt.Errorf("save context: %w", err)
	}
	return rec, g, nil
}

func (s *Service) stamp(rec store.Context, state, head, branch string) store.Context {
	rec.CurrentState = state
	rec.Head = head
	rec.Branch = branch
	rec.Digest = store.Digest(state)
	rec.UpdatedAt = s.now()
	return rec
}

// checkout replays a version, sharing the work between concurrent callers
// asking for the same version of the same context. The shared replay runs
// detached from any one caller; each caller stops waiting when its own ctx
// ends.
func (s *Service) checkout(ctx context.Context, k key, g *history.Graph, versionID string) (string, error) {
	flightKey := k.userID + "\x00" + k.fileID + "\x00" + versionID
	ch := s.checkouts.DoChan(flightKey, func() (interface{}, error) {
		if chain, err := history.Chain(g.Snapshot(), versionID); err == nil {
			metrics.ReplayLength.Observe(float64(len(chain) - 1))
		}
		replayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return g.Checkout(replayCtx, versionID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		metrics.Checkouts.WithLabelValues("abandoned").Inc()
		return "", ctx.Err()
	}

	result := "replayed"
	if res.Shared {
		result = "shared"
	}
	if res.Err != nil {
		result = "error"
	}
	metrics.Checkouts.WithLabelValues(result).Inc()
	if res.Err != nil {
		return "", res.Err
	}
	return res.Val.(string), nil
}

// publish pushes a committed record to the mirror and the search index.
// Neither can fail the operation; the history is already durable.
func (s *Service) publish(ctx context.Context, rec store.Context, message string) {
	if err := s.mirror.Write(ctx, rec.FileID, rec.UserID, rec.CurrentState, message); err != nil {
		metrics.MirrorFailed()
		s.logger.Warn("mirror write failed", "fileId", rec.FileID, "userId", rec.UserID, "error", err)
	}
	if s.indexer != nil {
		s.indexer.Index(rec)
	}
}
