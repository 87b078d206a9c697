package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit is one entry of a mirror repository's log.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Git keeps one repository per user holding <file>.md for each of the user's
// documents. Every write is a commit authored by the user.
type Git struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewGit(baseDir string) *Git {
	return &Git{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (g *Git) repoLock(user string) *sync.Mutex {
	g.lockMu.Lock()
	defer g.lockMu.Unlock()
	lock, ok := g.locks[user]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	g.locks[user] = lock
	return lock
}

func (g *Git) names(fileID, userID string) (user, file string, err error) {
	if user, err = segment(userID); err != nil {
		return "", "", fmt.Errorf("mirror user: %w", err)
	}
	if file, err = segment(fileID); err != nil {
		return "", "", fmt.Errorf("mirror file: %w", err)
	}
	return user, file + ".md", nil
}

func (g *Git) openRepo(user string) (*git.Repository, error) {
	path := filepath.Join(g.baseDir, user)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (g *Git) Write(ctx context.Context, fileID, userID, content, message string) error {
	user, file, err := g.names(fileID, userID)
	if err != nil {
		return err
	}
	lock := g.repoLock(user)
	lock.Lock()
	defer lock.Unlock()

	repo, err := g.openRepo(user)
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), file), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	if _, err := worktree.Add(file); err != nil {
		return fmt.Errorf("git add %s: %w", file, err)
	}

	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  userID,
			Email: fmt.Sprintf("%s@palimpsest.local", sanitizeEmail(userID)),
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		// Same content as the last commit.
		return nil
	}
	if err != nil {
		return fmt.Errorf("commit %s: %w", file, err)
	}
	return nil
}

// Read returns the committed content of a document at the repository head.
func (g *Git) Read(ctx context.Context, fileID, userID string) (string, error) {
	user, file, err := g.names(fileID, userID)
	if err != nil {
		return "", err
	}
	lock := g.repoLock(user)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(filepath.Join(g.baseDir, user))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", ErrNotMirrored
	}
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", ErrNotMirrored
	}
	if err != nil {
		return "", fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("load commit object: %w", err)
	}
	f, err := commitObj.File(file)
	if errors.Is(err, object.ErrFileNotFound) {
		return "", ErrNotMirrored
	}
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", file, err)
	}
	reader, err := f.Reader()
	if err != nil {
		return "", fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read content bytes: %w", err)
	}
	return string(data), nil
}

// Log lists the commits of a user's repository, newest first.
func (g *Git) Log(userID string, limit int) ([]Commit, error) {
	user, err := segment(userID)
	if err != nil {
		return nil, fmt.Errorf("mirror user: %w", err)
	}
	lock := g.repoLock(user)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(filepath.Join(g.baseDir, user))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNotMirrored
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0, max(limit, 0))
	err = iter.ForEach(func(c *object.Commit) error {
		items = append(items, Commit{
			Hash:      c.Hash.String()[:7],
			Message:   c.Message,
			Author:    c.Author.Name,
			CreatedAt: c.Author.When,
		})
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' || r == '.' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
