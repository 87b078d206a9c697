package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir writes <root>/<user>/<file>.md.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) path(fileID, userID string) (string, error) {
	user, err := segment(userID)
	if err != nil {
		return "", fmt.Errorf("mirror user: %w", err)
	}
	file, err := segment(fileID)
	if err != nil {
		return "", fmt.Errorf("mirror file: %w", err)
	}
	return filepath.Join(d.root, user, file+".md"), nil
}

func (d *Dir) Write(ctx context.Context, fileID, userID, content, message string) error {
	path, err := d.path(fileID, userID)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".mirror-*")
	if err != nil {
		return fmt.Errorf("create mirror temp: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write mirror: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close mirror: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename mirror: %w", err)
	}
	return nil
}

func (d *Dir) Read(ctx context.Context, fileID, userID string) (string, error) {
	path, err := d.path(fileID, userID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotMirrored
	}
	if err != nil {
		return "", fmt.Errorf("read mirror: %w", err)
	}
	return string(data), nil
}
