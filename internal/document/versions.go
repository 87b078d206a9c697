package document

import (
	"context"
	"errors"
	"fmt"

	"palimpsest/api/internal/export"
	"palimpsest/api/internal/history"
	"palimpsest/api/internal/mirror"
	"palimpsest/api/internal/patch"
	"palimpsest/api/internal/store"
)

// VersionInfo is a version with the size of its patch.
type VersionInfo struct {
	history.Version
	Stats patch.Stats `json:"stats"`
}

// BranchList is every branch of a context and the one commits advance.
type BranchList struct {
	Current  string           `json:"current"`
	Branches []history.Branch `json:"branches"`
}

// Report compares a context's record and mirror with a fresh replay.
type Report struct {
	FileID        string `json:"fileId"`
	UserID        string `json:"userId"`
	Head          string `json:"head"`
	Branch        string `json:"branch"`
	RecordHead    string `json:"recordHead"`
	Versions      int    `json:"versions"`
	ReplayMatches bool   `json:"replayMatches"`
	DigestMatches bool   `json:"digestMatches"`
	MirrorChecked bool   `json:"mirrorChecked"`
	MirrorMatches bool   `json:"mirrorMatches"`
}

// OK reports whether nothing drifted.
func (r Report) OK() bool {
	return r.ReplayMatches && r.DigestMatches && (!r.MirrorChecked || r.MirrorMatches)
}

// CreateBranch adds a branch at from, or at the current head when from is
// empty. The current branch does not change.
func (s *Service) CreateBranch(ctx context.Context, fileID, userID, name, from string) (_ history.Branch, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return history.Branch{}, err
	}
	ctx, done := s.begin(ctx, "CreateBranch", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.Lock()
	defer lock.Unlock()

	_, g, err := s.record(ctx, k)
	if err != nil {
		return history.Branch{}, err
	}
	b, err := g.CreateBranch(ctx, name, from)
	if err != nil {
		return history.Branch{}, fmt.Errorf("create branch: %w", err)
	}
	s.logger.Info("branch created", "fileId", fileID, "userId", userID, "branch", b.Name, "head", b.Head)
	return b, nil
}

// SwitchBranch makes name current and rebuilds the cached state from its
// head.
func (s *Service) SwitchBranch(ctx context.Context, fileID, userID, name string) (_ *store.Context, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "SwitchBranch", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.Lock()
	defer lock.Unlock()

	rec, g, err := s.record(ctx, k)
	if err != nil {
		return nil, err
	}
	b, err := g.SwitchBranch(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("switch branch: %w", err)
	}
	if rec.Branch == b.Name && rec.Head == b.Head {
		return &rec, nil
	}

	state, err := s.checkout(ctx, k, g, b.Head)
	if err != nil {
		return nil, err
	}
	rec = s.stamp(rec, state, b.Head, b.Name)
	if err := s.contexts.SaveContext(ctx, rec); err != nil {
		return nil, fmt.Errorf("save context: %w", err)
	}
	s.publish(ctx, rec, "Switch to branch "+b.Name)
	return &rec, nil
}

// Checkout rebuilds the text of any version of a context.
func (s *Service) Checkout(ctx context.Context, fileID, userID, versionID string) (_ string, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return "", err
	}
	ctx, done := s.begin(ctx, "Checkout", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.RLock()
	defer lock.RUnlock()

	_, g, err := s.record(ctx, k)
	if err != nil {
		return "", err
	}
	return s.checkout(ctx, k, g, versionID)
}

func (s *Service) Branches(ctx context.Context, fileID, userID string) (_ BranchList, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return BranchList{}, err
	}
	ctx, done := s.begin(ctx, "Branches", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.RLock()
	defer lock.RUnlock()

	_, g, err := s.record(ctx, k)
	if err != nil {
		return BranchList{}, err
	}
	return BranchList{Current: g.CurrentBranch().Name, Branches: g.Branches()}, nil
}

// History lists versions along a branch, newest first, with patch stats.
// An empty branch means the current one.
func (s *Service) History(ctx context.Context, fileID, userID, branch string, limit int) (_ []VersionInfo, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "History", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.RLock()
	defer lock.RUnlock()

	_, g, err := s.record(ctx, k)
	if err != nil {
		return nil, err
	}
	versions, err := g.History(branch, limit)
	if err != nil {
		return nil, err
	}
	out := make([]VersionInfo, 0, len(versions))
	for _, v := range versions {
		info, err := s.versionInfo(ctx, k, v)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Version returns one version of a context with its patch stats.
func (s *Service) Version(ctx context.Context, fileID, userID, versionID string) (_ VersionInfo, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return VersionInfo{}, err
	}
	ctx, done := s.begin(ctx, "Version", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.RLock()
	defer lock.RUnlock()

	_, g, err := s.record(ctx, k)
	if err != nil {
		return VersionInfo{}, err
	}
	v, err := g.Version(versionID)
	if err != nil {
		return VersionInfo{}, err
	}
	return s.versionInfo(ctx, k, v)
}

func (s *Service) versionInfo(ctx context.Context, k key, v history.Version) (VersionInfo, error) {
	info := VersionInfo{Version: v}
	if v.PatchRef == nil {
		return info, nil
	}
	body, err := s.namespace(k).Get(ctx, history.PatchPath(*v.PatchRef))
	if err != nil {
		return VersionInfo{}, fmt.Errorf("%w: read patch of version %s: %v", history.ErrCorruptHistory, v.ID, err)
	}
	stats, err := patch.Stat(body)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("%w: stat patch of version %s: %v", history.ErrCorruptHistory, v.ID, err)
	}
	info.Stats = stats
	return info, nil
}

// Verify replays the current head and compares it with the cached record
// and the mirror copy. It never repairs anything.
func (s *Service) Verify(ctx context.Context, fileID, userID string) (_ Report, err error) {
	k, err := newKey(fileID, userID)
	if err != nil {
		return Report{}, err
	}
	ctx, done := s.begin(ctx, "Verify", k)
	defer done(&err)

	lock := s.contextLock(k)
	lock.RLock()
	defer lock.RUnlock()

	rec, err := s.contexts.GetContext(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, ErrContextNotFound) {
			return Report{}, ErrContextNotFound
		}
		return Report{}, fmt.Errorf("get context: %w", err)
	}
	g, err := s.graph(ctx, k)
	if err != nil {
		return Report{}, err
	}

	head := g.Head()
	report := Report{
		FileID:     fileID,
		UserID:     userID,
		Head:       head.ID,
		Branch:     g.CurrentBranch().Name,
		RecordHead: rec.Head,
		Versions:   len(g.Snapshot().Versions),
	}
	state, err := s.checkout(ctx, k, g, head.ID)
	if err != nil {
		return Report{}, err
	}
	report.ReplayMatches = rec.Head == head.ID && rec.CurrentState == state
	report.DigestMatches = rec.Digest == store.Digest(state)

	mirrored, err := s.mirror.Read(ctx, fileID, userID)
	switch {
	case errors.Is(err, mirror.ErrDisabled):
	case errors.Is(err, mirror.ErrNotMirrored):
		report.MirrorChecked = true
	case err != nil:
		return Report{}, fmt.Errorf("read mirror: %w", err)
	default:
		report.MirrorChecked = true
		report.MirrorMatches = mirrored == state
	}
	return report, nil
}

// ExportSource resolves a version for export. An empty version is the
// current head.
func (s *Service) ExportSource(ctx context.Context, fileID, userID, version string) (export.Source, error) {
	rec, err := s.GetContext(ctx, fileID, userID)
	if err != nil {
		return export.Source{}, err
	}
	src := export.Source{
		FileID:    fileID,
		Version:   rec.Head,
		Branch:    rec.Branch,
		Text:      rec.CurrentState,
		UpdatedAt: rec.UpdatedAt,
	}
	if version == "" || version == rec.Head {
		return src, nil
	}
	v, err := s.Version(ctx, fileID, userID, version)
	if err != nil {
		return export.Source{}, err
	}
	text, err := s.Checkout(ctx, fileID, userID, version)
	if err != nil {
		return export.Source{}, err
	}
	return export.Source{FileID: fileID, Version: version, Text: text, UpdatedAt: v.CreatedAt}, nil
}
