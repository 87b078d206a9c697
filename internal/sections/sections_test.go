package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = "preamble\n# Intro\nline one\nline two\nline three\n## Setup\n\n# Empty\n# Last\nonly\n"

func TestIndex(t *testing.T) {
	s := Index(doc)
	require.Len(t, s.Sections, 4)

	assert.Equal(t, Section{Header: "# Intro", Content: "line one\nline two", StartLine: 2}, s.Sections[0])
	assert.Equal(t, Section{Header: "## Setup", Content: "", StartLine: 6}, s.Sections[1])
	assert.Equal(t, Section{Header: "# Empty", Content: "", StartLine: 8}, s.Sections[2])
	// The trailing newline leaves an empty final line in the last section.
	assert.Equal(t, Section{Header: "# Last", Content: "only\n", StartLine: 9}, s.Sections[3])
}

func TestIndexWithoutHeaders(t *testing.T) {
	s := Index("just text\nmore\n")
	assert.NotNil(t, s.Sections)
	assert.Empty(t, s.Sections)

	assert.Empty(t, Index("").Sections)
}

func TestLookup(t *testing.T) {
	body, ok := Lookup(doc, "  # Intro ")
	require.True(t, ok)
	assert.Equal(t, "line one\nline two\nline three", body)

	body, ok = Lookup(doc, "# Empty")
	require.True(t, ok)
	assert.Equal(t, "", body)

	_, ok = Lookup(doc, "# Missing")
	assert.False(t, ok)

	_, ok = Lookup(doc, "Intro")
	assert.False(t, ok, "header match is exact after trimming")
}

func TestLookupFirstMatchWins(t *testing.T) {
	text := "# A\nfirst\n# A\nsecond\n"
	body, ok := Lookup(text, "# A")
	require.True(t, ok)
	assert.Equal(t, "first", body)
}

func TestBuildOutline(t *testing.T) {
	text := "# Guide\nfunction setup() {}\n## JSON config\n{\n  \"port\": 80,\n  \"host\": \"x\"\n}\n## Notes\n\"ignored\": true\n#tag\n"
	o := BuildOutline(text)

	assert.Equal(t, []Heading{
		{Level: 1, Title: "Guide", Line: 1},
		{Level: 2, Title: "JSON config", Line: 3},
		{Level: 2, Title: "Notes", Line: 8},
	}, o.Headings)
	assert.Equal(t, []Symbol{
		{Name: "setup", Kind: "function", Line: 2, Section: "Guide"},
		{Name: "port", Kind: "key", Line: 5, Section: "JSON config"},
		{Name: "host", Kind: "key", Line: 6, Section: "JSON config"},
	}, o.Symbols)
}
