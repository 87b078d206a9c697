package history

import (
	"context"
	"errors"
	"fmt"

	"palimpsest/api/internal/blob"
	"palimpsest/api/internal/patch"
)

// Chain returns the versions from the root to id, in that order.
func Chain(log *Log, id string) ([]Version, error) {
	v, ok := log.Versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
	}
	seen := map[string]bool{}
	var chain []Version
	for {
		if seen[v.ID] {
			return nil, fmt.Errorf("%w: cycle at version %s", ErrCorruptHistory, v.ID)
		}
		seen[v.ID] = true
		chain = append(chain, v)
		if v.ParentID == nil {
			break
		}
		parent, ok := log.Versions[*v.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: version %s has missing parent %s", ErrCorruptHistory, v.ID, *v.ParentID)
		}
		v = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Replay applies the patches of chain, in order, to the root snapshot. It
// never writes.
func Replay(ctx context.Context, root string, chain []Version, blobs blob.Store) (string, error) {
	content := root
	for _, v := range chain {
		if v.PatchRef == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		body, err := blobs.Get(ctx, PatchPath(*v.PatchRef))
		if errors.Is(err, blob.ErrNotFound) {
			return "", fmt.Errorf("%w: patch for version %s is missing", ErrCorruptHistory, v.ID)
		}
		if err != nil {
			return "", fmt.Errorf("read patch %s: %w", v.ID, err)
		}
		content, err = patch.Apply(content, body)
		if err != nil {
			return "", fmt.Errorf("%w: replay version %s: %w", ErrCorruptHistory, v.ID, err)
		}
	}
	return content, nil
}
