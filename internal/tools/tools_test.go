package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palimpsest/api/internal/blob"
	"palimpsest/api/internal/document"
	"palimpsest/api/internal/patch"
	"palimpsest/api/internal/sections"
	"palimpsest/api/internal/store"
)

const content = "# Section 1\nLine 1\nLine 2\n# Section 2\nLine 3"

func newToolset(t *testing.T) (*Toolset, *document.Service) {
	t.Helper()
	docs := document.NewService(store.NewMemoryStore(), blob.NewMemory(), document.Options{})
	_, err := docs.CreateContext(context.Background(), "notes", "u1", content)
	require.NoError(t, err)
	return New(docs), docs
}

func TestGetContextReturnsSummaryJSON(t *testing.T) {
	ts, _ := newToolset(t)

	out := ts.GetContext(context.Background(), "notes", "u1")
	assert.Contains(t, out, `"header":"# Section 1"`)
	assert.Contains(t, out, `"content":"Line 1\nLine 2"`)
	assert.Contains(t, out, `"startLine":4`)

	assert.Equal(t, "null", ts.GetContext(context.Background(), "missing", "u1"))
}

func TestGetSection(t *testing.T) {
	ts, _ := newToolset(t)

	assert.Equal(t, "Line 3", ts.GetSection(context.Background(), "notes", "u1", "# Section 2"))
	assert.Equal(t, SectionNotFound, ts.GetSection(context.Background(), "notes", "u1", "# Section 9"))
	assert.Equal(t, SectionNotFound, ts.GetSection(context.Background(), "missing", "u1", "# Section 1"))
}

func TestApplyAIPatch(t *testing.T) {
	ts, docs := newToolset(t)
	ctx := context.Background()

	next := strings.Replace(content, "Line 3", "Line 3 revised", 1)
	assert.Equal(t, PatchApplied, ts.ApplyAIPatch(ctx, "notes", "u1", patch.Diff(content, next, "notes.md")))

	got, err := docs.GetCurrentContent(ctx, "notes", "u1")
	require.NoError(t, err)
	assert.Equal(t, next, got)

	out := ts.ApplyAIPatch(ctx, "notes", "u1", "@@ -1,1 +1,1 @@\n-nothing like this\n+x\n")
	assert.True(t, strings.HasPrefix(out, "Error applying patch: "), out)
}

type failingDocs struct{ err error }

func (f failingDocs) GetSummary(context.Context, string, string) (*sections.Summary, error) {
	return nil, f.err
}

func (f failingDocs) GetSection(context.Context, string, string, string) (string, bool, error) {
	return "", false, f.err
}

func (f failingDocs) ApplyPatch(context.Context, string, string, string) (*store.Context, error) {
	return nil, f.err
}

func TestFailuresBecomeText(t *testing.T) {
	ts := New(failingDocs{err: errors.New("store offline")})
	ctx := context.Background()

	assert.Equal(t, "Error getting context: store offline", ts.GetContext(ctx, "a", "b"))
	assert.Equal(t, "Error getting section: store offline", ts.GetSection(ctx, "a", "b", "# x"))
	assert.Equal(t, "Error applying patch: store offline", ts.ApplyAIPatch(ctx, "a", "b", "p"))
}

func TestMCPHandlers(t *testing.T) {
	ts, _ := newToolset(t)

	req := mcp.CallToolRequest{}
	req.Params.Name = "getSection"
	req.Params.Arguments = map[string]any{
		"fileId":        "notes",
		"userId":        "u1",
		"sectionHeader": "# Section 1",
	}
	res, err := ts.getSectionHandler(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "Line 1\nLine 2", text.Text)
	assert.False(t, res.IsError)
}
