// Package history keeps a document's versions as a chain of patches with
// named branch heads.
package history

import (
	"errors"
	"time"
)

const (
	SnapshotKey  = "base.md"
	LogKey       = "history.log"
	MainBranch   = "main"
	RootMessage  = "Initial commit"
	versionsDir  = "versions/"
	patchFileExt = ".patch"
)

var (
	ErrAlreadyInitialized = errors.New("history already initialized")
	ErrNotInitialized     = errors.New("history not initialized")
	ErrVersionNotFound    = errors.New("version not found")
	ErrBranchNotFound     = errors.New("branch not found")
	ErrDuplicateBranch    = errors.New("branch already exists")
	ErrInvalidBranchName  = errors.New("invalid branch name")
	// ErrCorruptHistory means the stored history cannot be trusted. It is not
	// retried.
	ErrCorruptHistory = errors.New("corrupt history")
)

// Version is one immutable node of the graph. Only the root has no parent
// and no patch.
type Version struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parentId"`
	Message   string    `json:"message"`
	PatchRef  *string   `json:"patchFile"`
	CreatedAt time.Time `json:"createdAt"`
}

func (v Version) IsRoot() bool {
	return v.ParentID == nil
}

type Branch struct {
	Name string `json:"name"`
	Head string `json:"head"`
}

// Log is the persisted state of a graph.
type Log struct {
	Versions      map[string]Version `json:"versions"`
	Branches      map[string]Branch  `json:"branches"`
	CurrentBranch string             `json:"currentBranch"`
}

// PatchPath is the blob key of a version's patch body.
func PatchPath(ref string) string {
	return versionsDir + ref
}

func (l *Log) clone() *Log {
	out := &Log{
		Versions:      make(map[string]Version, len(l.Versions)),
		Branches:      make(map[string]Branch, len(l.Branches)),
		CurrentBranch: l.CurrentBranch,
	}
	for id, v := range l.Versions {
		out.Versions[id] = v.clone()
	}
	for name, b := range l.Branches {
		out.Branches[name] = b
	}
	return out
}

func (v Version) clone() Version {
	if v.ParentID != nil {
		p := *v.ParentID
		v.ParentID = &p
	}
	if v.PatchRef != nil {
		r := *v.PatchRef
		v.PatchRef = &r
	}
	return v
}
