package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"palimpsest/api/internal/blob"
)

// Graph is the version graph of one document. Every mutation writes through
// to the blob store before the in-memory log changes.
type Graph struct {
	mu     sync.RWMutex
	blobs  blob.Store
	log    *Log
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Graph)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the timestamp source for new versions.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

func newGraph(blobs blob.Store, log *Log, opts []Option) *Graph {
	g := &Graph{
		blobs:  blobs,
		log:    log,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Exists reports whether blobs holds a history log.
func Exists(ctx context.Context, blobs blob.Store) (bool, error) {
	ok, err := blobs.Exists(ctx, LogKey)
	if err != nil {
		return false, fmt.Errorf("check history: %w", err)
	}
	return ok, nil
}

// Initialize writes the root snapshot and a log holding the root version on
// branch main.
func Initialize(ctx context.Context, blobs blob.Store, root string, opts ...Option) (*Graph, error) {
	exists, err := Exists(ctx, blobs)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyInitialized
	}
	g := newGraph(blobs, nil, opts)

	err = blobs.Create(ctx, SnapshotKey, root)
	if errors.Is(err, blob.ErrExists) {
		// A snapshot without a log is left over from an initialization that
		// never finished.
		g.logger.Warn("re-initializing leftover root snapshot")
		err = blobs.Put(ctx, SnapshotKey, root)
	}
	if err != nil {
		return nil, fmt.Errorf("write root snapshot: %w", err)
	}

	rootVersion := Version{
		ID:        uuid.NewString(),
		Message:   RootMessage,
		CreatedAt: g.now(),
	}
	log := &Log{
		Versions:      map[string]Version{rootVersion.ID: rootVersion},
		Branches:      map[string]Branch{MainBranch: {Name: MainBranch, Head: rootVersion.ID}},
		CurrentBranch: MainBranch,
	}
	data, err := encodeLog(log)
	if err != nil {
		return nil, err
	}
	if err := blobs.Create(ctx, LogKey, data); err != nil {
		if errors.Is(err, blob.ErrExists) {
			return nil, ErrAlreadyInitialized
		}
		return nil, fmt.Errorf("write history log: %w", err)
	}
	g.log = log
	return g, nil
}

// Load reads and validates an existing log.
func Load(ctx context.Context, blobs blob.Store, opts ...Option) (*Graph, error) {
	data, err := blobs.Get(ctx, LogKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("read history log: %w", err)
	}
	var log Log
	if err := json.Unmarshal([]byte(data), &log); err != nil {
		return nil, fmt.Errorf("%w: decode log: %v", ErrCorruptHistory, err)
	}
	if err := Validate(&log); err != nil {
		return nil, err
	}
	return newGraph(blobs, &log, opts), nil
}

// Validate checks the structural invariants of a log.
func Validate(log *Log) error {
	roots := 0
	for id, v := range log.Versions {
		if v.ID != id {
			return fmt.Errorf("%w: version key %s holds id %s", ErrCorruptHistory, id, v.ID)
		}
		if v.ParentID == nil {
			roots++
			if v.PatchRef != nil {
				return fmt.Errorf("%w: root version %s has a patch", ErrCorruptHistory, id)
			}
			continue
		}
		if _, ok := log.Versions[*v.ParentID]; !ok {
			return fmt.Errorf("%w: version %s has missing parent %s", ErrCorruptHistory, id, *v.ParentID)
		}
		if v.PatchRef == nil || *v.PatchRef == "" {
			return fmt.Errorf("%w: version %s has no patch", ErrCorruptHistory, id)
		}
	}
	if roots != 1 {
		return fmt.Errorf("%w: %d root versions", ErrCorruptHistory, roots)
	}
	for name, b := range log.Branches {
		if b.Name != name {
			return fmt.Errorf("%w: branch key %s holds name %s", ErrCorruptHistory, name, b.Name)
		}
		if _, err := Chain(log, b.Head); err != nil {
			if errors.Is(err, ErrVersionNotFound) {
				return fmt.Errorf("%w: branch %s points at missing version %s", ErrCorruptHistory, name, b.Head)
			}
			return err
		}
	}
	if _, ok := log.Branches[log.CurrentBranch]; !ok {
		return fmt.Errorf("%w: current branch %q does not exist", ErrCorruptHistory, log.CurrentBranch)
	}
	return nil
}

func encodeLog(log *Log) (string, error) {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode history log: %w", err)
	}
	return string(data), nil
}

// persist writes next and swaps it in. The caller holds g.mu.
func (g *Graph) persist(ctx context.Context, next *Log) error {
	data, err := encodeLog(next)
	if err != nil {
		return err
	}
	if err := g.blobs.Put(ctx, LogKey, data); err != nil {
		return fmt.Errorf("write history log: %w", err)
	}
	g.log = next
	return nil
}

// Commit stores patchText as a child of the current head and advances the
// current branch to it.
func (g *Graph) Commit(ctx context.Context, patchText, message string) (Version, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	branch := g.log.Branches[g.log.CurrentBranch]
	parent := branch.Head
	id := uuid.NewString()
	ref := id + patchFileExt

	// The patch must be durable before the log references it.
	if err := g.blobs.Put(ctx, PatchPath(ref), patchText); err != nil {
		return Version{}, fmt.Errorf("write patch: %w", err)
	}

	v := Version{
		ID:        id,
		ParentID:  &parent,
		Message:   message,
		PatchRef:  &ref,
		CreatedAt: g.now(),
	}
	next := g.log.clone()
	next.Versions[id] = v
	branch.Head = id
	next.Branches[branch.Name] = branch
	if err := g.persist(ctx, next); err != nil {
		return Version{}, err
	}
	return v.clone(), nil
}

// CreateBranch adds a branch whose head is from. An empty from means the
// current head. The current branch does not change.
func (g *Graph) CreateBranch(ctx context.Context, name, from string) (Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Branch{}, ErrInvalidBranchName
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.log.Branches[name]; ok {
		return Branch{}, fmt.Errorf("%w: %s", ErrDuplicateBranch, name)
	}
	if from == "" {
		from = g.log.Branches[g.log.CurrentBranch].Head
	}
	if _, ok := g.log.Versions[from]; !ok {
		return Branch{}, fmt.Errorf("%w: %s", ErrVersionNotFound, from)
	}

	b := Branch{Name: name, Head: from}
	next := g.log.clone()
	next.Branches[name] = b
	if err := g.persist(ctx, next); err != nil {
		return Branch{}, err
	}
	return b, nil
}

// SwitchBranch makes name the branch that commits advance.
func (g *Graph) SwitchBranch(ctx context.Context, name string) (Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Branch{}, ErrInvalidBranchName
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.log.Branches[name]
	if !ok {
		return Branch{}, fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	if g.log.CurrentBranch == name {
		return b, nil
	}
	next := g.log.clone()
	next.CurrentBranch = name
	if err := g.persist(ctx, next); err != nil {
		return Branch{}, err
	}
	return b, nil
}

// Checkout rebuilds the text of a version by replaying its ancestors onto
// the root snapshot.
func (g *Graph) Checkout(ctx context.Context, id string) (string, error) {
	g.mu.RLock()
	chain, err := Chain(g.log, id)
	g.mu.RUnlock()
	if err != nil {
		return "", err
	}
	root, err := g.blobs.Get(ctx, SnapshotKey)
	if errors.Is(err, blob.ErrNotFound) {
		return "", fmt.Errorf("%w: root snapshot is missing", ErrCorruptHistory)
	}
	if err != nil {
		return "", fmt.Errorf("read root snapshot: %w", err)
	}
	return Replay(ctx, root, chain, g.blobs)
}

func (g *Graph) Head() Version {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.log.Versions[g.log.Branches[g.log.CurrentBranch].Head].clone()
}

func (g *Graph) CurrentBranch() Branch {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.log.Branches[g.log.CurrentBranch]
}

// Branches returns all branches sorted by name.
func (g *Graph) Branches() []Branch {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Branch, 0, len(g.log.Branches))
	for _, b := range g.log.Branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (g *Graph) Version(id string) (Version, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.log.Versions[id]
	if !ok {
		return Version{}, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
	}
	return v.clone(), nil
}

// History lists the versions reachable from a branch head, newest first.
// An empty branch means the current one. limit <= 0 lists all.
func (g *Graph) History(branch string, limit int) ([]Version, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if branch == "" {
		branch = g.log.CurrentBranch
	}
	b, ok := g.log.Branches[branch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	chain, err := Chain(g.log, b.Head)
	if err != nil {
		return nil, err
	}
	out := make([]Version, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, chain[i].clone())
	}
	return out, nil
}

// Snapshot returns a deep copy of the log.
func (g *Graph) Snapshot() *Log {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.log.clone()
}
