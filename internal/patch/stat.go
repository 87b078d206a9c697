package patch

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Stats summarizes the size of a patch.
type Stats struct {
	Hunks   int `json:"hunks"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Stat counts hunks and changed lines in a unified diff. File headers are
// skipped; a patch without hunks has zero stats.
func Stat(patchText string) (Stats, error) {
	start := strings.Index(patchText, "@@")
	if start < 0 {
		return Stats{}, nil
	}
	if start > 0 && patchText[start-1] != '\n' {
		return Stats{}, &malformedError{line: 1, reason: "hunk header not at line start"}
	}
	hunks, err := diff.ParseHunks([]byte(patchText[start:]))
	if err != nil {
		return Stats{}, fmt.Errorf("parse hunks: %w", &malformedError{line: 0, reason: err.Error()})
	}
	var s Stats
	for _, h := range hunks {
		st := h.Stat()
		s.Hunks++
		s.Added += int(st.Added + st.Changed)
		s.Removed += int(st.Deleted + st.Changed)
	}
	return s, nil
}
