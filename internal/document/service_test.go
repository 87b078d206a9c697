package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palimpsest/api/internal/blob"
	"palimpsest/api/internal/history"
	"palimpsest/api/internal/mirror"
	"palimpsest/api/internal/patch"
	"palimpsest/api/internal/sections"
	"palimpsest/api/internal/store"
)

type recordingIndexer struct {
	mu   sync.Mutex
	seen []store.Context
}

func (r *recordingIndexer) Index(rec store.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, rec)
}

type fixture struct {
	svc      *Service
	blobs    *blob.Memory
	contexts *store.MemoryStore
	mirror   *mirror.Dir
	indexer  *recordingIndexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		blobs:    blob.NewMemory(),
		contexts: store.NewMemoryStore(),
		mirror:   mirror.NewDir(t.TempDir()),
		indexer:  &recordingIndexer{},
	}
	f.svc = NewService(f.contexts, f.blobs, Options{Mirror: f.mirror, Indexer: f.indexer})
	return f
}

func TestScenarioCommitPatchThenCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec, err := f.svc.CreateContext(ctx, "doc", "u1", "Hello World")
	require.NoError(t, err)
	assert.Equal(t, history.MainBranch, rec.Branch)
	assert.Equal(t, store.Digest("Hello World"), rec.Digest)

	updated, err := f.svc.CommitPatch(ctx, "doc", "u1", patch.Diff("Hello World", "Hello Patched World", "doc.md"), "m")
	require.NoError(t, err)

	text, err := f.svc.GetCurrentContent(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Hello Patched World", text)

	text, err = f.svc.Checkout(ctx, "doc", "u1", updated.Head)
	require.NoError(t, err)
	assert.Equal(t, "Hello Patched World", text)

	v, err := f.svc.Version(ctx, "doc", "u1", updated.Head)
	require.NoError(t, err)
	assert.Equal(t, "m", v.Message)
}

func TestScenarioSummaryAndSection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateContext(ctx, "doc", "u1", "# Section 1\nLine 1\nLine 2\n# Section 2\nLine 3")
	require.NoError(t, err)

	summary, err := f.svc.GetSummary(ctx, "doc", "u1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, []sections.Section{
		{Header: "# Section 1", Content: "Line 1\nLine 2", StartLine: 1},
		{Header: "# Section 2", Content: "Line 3", StartLine: 4},
	}, summary.Sections)

	text, found, err := f.svc.GetSection(ctx, "doc", "u1", "# Section 2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Line 3", text)

	_, found, err = f.svc.GetSection(ctx, "doc", "u1", "# Nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScenarioRejectedPatchLeavesGraphUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateContext(ctx, "doc", "u1", "alpha\nbeta\ngamma\n")
	require.NoError(t, err)

	stale := patch.Diff("alpha\nBETA\ngamma\n", "alpha\nBETA!\ngamma\n", "doc.md")
	rec, err := f.svc.ApplyPatch(ctx, "doc", "u1", stale)
	assert.Nil(t, rec)

	var applyErr *PatchApplicationError
	require.ErrorAs(t, err, &applyErr)
	assert.ErrorIs(t, err, patch.ErrPatchApplication)
	assert.Equal(t, "doc", applyErr.FileID)

	versions, err := f.svc.History(ctx, "doc", "u1", "", 0)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	_, err = f.svc.ApplyPatch(ctx, "doc", "u1", "@@ -1,3 +1,3 @@\n alpha\n")
	assert.ErrorIs(t, err, patch.ErrMalformedPatch)
}

func TestScenarioSequentialUpdatesChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.CreateContext(ctx, "doc", "u1", "a\nb\n")
	require.NoError(t, err)

	first, err := f.svc.UpdateFile(ctx, "doc", "u1", "a\nc\n")
	require.NoError(t, err)
	second, err := f.svc.UpdateFile(ctx, "doc", "u1", "a\nc\nd\n")
	require.NoError(t, err)

	versions, err := f.svc.History(ctx, "doc", "u1", history.MainBranch, 0)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, second.Head, versions[0].ID)
	assert.Equal(t, first.Head, *versions[0].ParentID)
	assert.Equal(t, created.Head, *versions[1].ParentID)
	assert.Equal(t, UpdateMessage, versions[0].Message)
	assert.Equal(t, patch.Stats{Hunks: 1, Added: 1, Removed: 0}, versions[0].Stats)
	assert.Equal(t, patch.Stats{Hunks: 1, Added: 1, Removed: 1}, versions[1].Stats)
	assert.Equal(t, patch.Stats{}, versions[2].Stats)

	limited, err := f.svc.History(ctx, "doc", "u1", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestApplyPatchRecordsFreshDiff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateContext(ctx, "doc", "u1", "one\ntwo\nthree\n")
	require.NoError(t, err)

	// Context lines only partly present and counts omitted: still applies.
	rec, err := f.svc.ApplyPatch(ctx, "doc", "u1", "@@ -2 +2 @@\n-two\n+TWO\n")
	require.NoError(t, err)
	assert.Equal(t, "one\nTWO\nthree\n", rec.CurrentState)

	versions, err := f.svc.History(ctx, "doc", "u1", "", 1)
	require.NoError(t, err)
	body, err := blob.Scoped(f.blobs, blob.DocumentPrefix("u1", "doc")).Get(ctx, history.PatchPath(*versions[0].PatchRef))
	require.NoError(t, err)
	assert.Equal(t, patch.Diff("one\ntwo\nthree\n", "one\nTWO\nthree\n", "doc.md"), body)
}

func TestMissingContextAsymmetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	summary, err := f.svc.GetSummary(ctx, "nope", "u1")
	assert.NoError(t, err)
	assert.Nil(t, summary)

	_, found, err := f.svc.GetSection(ctx, "nope", "u1", "# A")
	assert.NoError(t, err)
	assert.False(t, found)

	rec, err := f.svc.UpdateFile(ctx, "nope", "u1", "x")
	assert.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = f.svc.ApplyPatch(ctx, "nope", "u1", "@@ -1 +1 @@\n-a\n+b\n")
	assert.NoError(t, err)
	assert.Nil(t, rec)

	_, err = f.svc.GetCurrentContent(ctx, "nope", "u1")
	assert.ErrorIs(t, err, ErrContextNotFound)
	_, err = f.svc.CommitPatch(ctx, "nope", "u1", "", "m")
	assert.ErrorIs(t, err, ErrContextNotFound)
	_, err = f.svc.Verify(ctx, "nope", "u1")
	assert.ErrorIs(t, err, ErrContextNotFound)
}

func TestCreateContextGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateContext(ctx, "doc", "u1", "v1")
	require.NoError(t, err)
	_, err = f.svc.CreateContext(ctx, "doc", "u1", "v2")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	text, err := f.svc.GetCurrentContent(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.Equal(t, "v1", text)

	_, err = f.svc.CreateContext(ctx, "doc", "u2", "other user")
	assert.NoError(t, err)

	_, err = f.svc.CreateContext(ctx, " ", "u1", "x")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = f.svc.CreateContext(ctx, "doc", "..", "x")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = f.svc.CommitPatch(ctx, "doc", "u1", "", "  ")
	assert.ErrorIs(t, err, ErrMessageRequired)
}

func TestCreateContextAdoptsOrphanedHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ns := blob.Scoped(f.blobs, blob.DocumentPrefix("u1", "doc"))
	g, err := history.Initialize(ctx, ns, "old root\n")
	require.NoError(t, err)
	_, err = g.Commit(ctx, patch.Diff("old root\n", "old root\nmore\n", "doc.md"), "before crash")
	require.NoError(t, err)

	rec, err := f.svc.CreateContext(ctx, "doc", "u1", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "old root\nmore\n", rec.CurrentState)
	assert.Equal(t, g.Head().ID, rec.Head)

	versions, err := f.svc.History(ctx, "doc", "u1", "", 0)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestStaleRecordIsRebuiltFromHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.CreateContext(ctx, "doc", "u1", "first\n")
	require.NoError(t, err)
	_, err = f.svc.UpdateFile(ctx, "doc", "u1", "second\n")
	require.NoError(t, err)

	require.NoError(t, f.contexts.SaveContext(ctx, *created))

	report, err := f.svc.Verify(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.False(t, report.ReplayMatches)
	assert.Equal(t, created.Head, report.RecordHead)

	text, err := f.svc.GetCurrentContent(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.Equal(t, "second\n", text)

	saved, err := f.contexts.GetContext(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.Equal(t, "second\n", saved.CurrentState)
	assert.Equal(t, store.Digest("second\n"), saved.Digest)

	report, err = f.svc.Verify(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestBranchesAreIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.CreateContext(ctx, "doc", "u1", "base\n")
	require.NoError(t, err)

	draft, err := f.svc.CreateBranch(ctx, "doc", "u1", "draft", "")
	require.NoError(t, err)
	assert.Equal(t, created.Head, draft.Head)

	_, err = f.svc.UpdateFile(ctx, "doc", "u1", "base\nmain work\n")
	require.NoError(t, err)

	branches, err := f.svc.Branches(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.Equal(t, history.MainBranch, branches.Current)
	require.Len(t, branches.Branches, 2)
	assert.Equal(t, history.Branch{Name: "draft", Head: created.Head}, branches.Branches[0])

	rec, err := f.svc.SwitchBranch(ctx, "doc", "u1", "draft")
	require.NoError(t, err)
	assert.Equal(t, "base\n", rec.CurrentState)
	assert.Equal(t, "draft", rec.Branch)

	_, err = f.svc.UpdateFile(ctx, "doc", "u1", "base\ndraft work\n")
	require.NoError(t, err)

	rec, err = f.svc.SwitchBranch(ctx, "doc", "u1", history.MainBranch)
	require.NoError(t, err)
	assert.Equal(t, "base\nmain work\n", rec.CurrentState)

	draftHistory, err := f.svc.History(ctx, "doc", "u1", "draft", 0)
	require.NoError(t, err)
	assert.Len(t, draftHistory, 2)

	_, err = f.svc.CreateBranch(ctx, "doc", "u1", "draft", "")
	assert.ErrorIs(t, err, history.ErrDuplicateBranch)
	_, err = f.svc.CreateBranch(ctx, "doc", "u1", "other", "no-such-version")
	assert.ErrorIs(t, err, history.ErrVersionNotFound)
	_, err = f.svc.SwitchBranch(ctx, "doc", "u1", "ghost")
	assert.ErrorIs(t, err, history.ErrBranchNotFound)
}

func TestConcurrentUpdatesFormLinearChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateContext(ctx, "doc", "u1", "start\n")
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.svc.UpdateFile(ctx, "doc", "u1", fmt.Sprintf("start\nwriter %d\n", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	versions, err := f.svc.History(ctx, "doc", "u1", "", 0)
	require.NoError(t, err)
	require.Len(t, versions, writers+1)

	report, err := f.svc.Verify(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, writers+1, report.Versions)
}

func TestConcurrentCheckoutsAgree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.CreateContext(ctx, "doc", "u1", "v0\n")
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err := f.svc.UpdateFile(ctx, "doc", "u1", fmt.Sprintf("v%d\n", i))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.svc.Checkout(ctx, "doc", "u1", created.Head)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, "v0\n", r)
	}

	_, err = f.svc.Checkout(ctx, "doc", "u1", "missing")
	assert.ErrorIs(t, err, history.ErrVersionNotFound)
}

func TestMissingPatchBlobIsCorruptHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateContext(ctx, "doc", "u1", "a\n")
	require.NoError(t, err)
	rec, err := f.svc.UpdateFile(ctx, "doc", "u1", "b\n")
	require.NoError(t, err)

	v, err := f.svc.Version(ctx, "doc", "u1", rec.Head)
	require.NoError(t, err)
	f.blobs.Delete(blob.DocumentPrefix("u1", "doc") + "/" + history.PatchPath(*v.PatchRef))

	_, err = f.svc.Checkout(ctx, "doc", "u1", rec.Head)
	assert.ErrorIs(t, err, history.ErrCorruptHistory)
}

func TestMirrorAndIndexFollowCommits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateContext(ctx, "doc", "u1", "one\n")
	require.NoError(t, err)
	_, err = f.svc.UpdateFile(ctx, "doc", "u1", "two\n")
	require.NoError(t, err)

	mirrored, err := f.mirror.Read(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.Equal(t, "two\n", mirrored)
	assert.Len(t, f.indexer.seen, 2)

	require.NoError(t, f.mirror.Write(ctx, "doc", "u1", "drifted\n", "manual"))
	report, err := f.svc.Verify(ctx, "doc", "u1")
	require.NoError(t, err)
	assert.True(t, report.ReplayMatches)
	assert.True(t, report.MirrorChecked)
	assert.False(t, report.MirrorMatches)
	assert.False(t, report.OK())
}

func TestFailingMirrorDoesNotFailCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.mirror = failingMirror{}
	_, err := f.svc.CreateContext(ctx, "doc", "u1", "one\n")
	require.NoError(t, err)
	rec, err := f.svc.UpdateFile(ctx, "doc", "u1", "two\n")
	require.NoError(t, err)
	assert.Equal(t, "two\n", rec.CurrentState)
}

type failingMirror struct{}

func (failingMirror) Write(ctx context.Context, fileID, userID, content, message string) error {
	return errors.New("disk full")
}

func (failingMirror) Read(ctx context.Context, fileID, userID string) (string, error) {
	return "", errors.New("disk full")
}

func TestListContextsAndExportSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.svc.CreateContext(ctx, "b", "u1", "old\n")
	require.NoError(t, err)
	_, err = f.svc.UpdateFile(ctx, "b", "u1", "new\n")
	require.NoError(t, err)
	_, err = f.svc.CreateContext(ctx, "a", "u2", "x\n")
	require.NoError(t, err)

	mine, err := f.svc.ListContexts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "b", mine[0].FileID)

	all, err := f.svc.ListContexts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := f.svc.ListContexts(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	head, err := f.svc.ExportSource(ctx, "b", "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "new\n", head.Text)
	assert.Equal(t, history.MainBranch, head.Branch)

	old, err := f.svc.ExportSource(ctx, "b", "u1", created.Head)
	require.NoError(t, err)
	assert.Equal(t, "old\n", old.Text)
	assert.Equal(t, created.Head, old.Version)
}

// gatedBlobs holds every patch read until release is closed, so a test can
// keep a replay in flight.
type gatedBlobs struct {
	blob.Store
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedBlobs) Get(ctx context.Context, key string) (string, error) {
	select {
	case <-g.armed:
	default:
		return g.Store.Get(ctx, key)
	}
	if strings.HasSuffix(key, ".patch") {
		g.once.Do(func() { close(g.entered) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.Store.Get(ctx, key)
}

func TestCheckoutSurvivesCancelledPeer(t *testing.T) {
	ctx := context.Background()
	blobs := &gatedBlobs{
		Store:   blob.NewMemory(),
		armed:   make(chan struct{}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(store.NewMemoryStore(), blobs, Options{})

	_, err := svc.CreateContext(ctx, "doc", "u1", "a\n")
	require.NoError(t, err)
	rec, err := svc.UpdateFile(ctx, "doc", "u1", "b\n")
	require.NoError(t, err)
	close(blobs.armed)

	ctxA, cancelA := context.WithCancel(ctx)
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Checkout(ctxA, "doc", "u1", rec.Head)
		errA <- err
	}()
	<-blobs.entered

	type outcome struct {
		text string
		err  error
	}
	resB := make(chan outcome, 1)
	go func() {
		text, err := svc.Checkout(ctx, "doc", "u1", rec.Head)
		resB <- outcome{text, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(blobs.release)
	got := <-resB
	require.NoError(t, got.err)
	assert.Equal(t, "b\n", got.text)
}
