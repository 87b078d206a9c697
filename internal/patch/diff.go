// Package patch computes and applies line-oriented unified diffs.
package patch

import (
	"fmt"
	"strings"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// ContextLines is the number of unchanged lines kept around each change.
const ContextLines = 3

const noNewlineMarker = `\ No newline at end of file`

type opKind byte

const (
	opEqual  opKind = ' '
	opDelete opKind = '-'
	opInsert opKind = '+'
)

// edit is one line of an edit script. text keeps its trailing "\n" when the
// line has one, so "a" and "a\n" are different lines.
type edit struct {
	op   opKind
	text string
}

// Diff returns a unified diff that turns oldText into newText when applied
// with Apply. label names both sides in the file headers.
func Diff(oldText, newText, label string) string {
	if label == "" {
		label = "document"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", label, label)
	if oldText == newText {
		return b.String()
	}
	for _, h := range buildHunks(lineEdits(oldText, newText)) {
		h.write(&b)
	}
	return b.String()
}

// splitLines splits text into lines that keep their "\n". Only the last line
// may lack one. Empty text has no lines.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func lineEdits(oldText, newText string) []edit {
	dmp := diffpatch.New()
	dmp.DiffTimeout = 0
	oldRunes, newRunes, lineArray := dmp.DiffLinesToRunes(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(oldRunes, newRunes, false), lineArray)

	edits := make([]edit, 0, len(diffs))
	for _, d := range diffs {
		var op opKind
		switch d.Type {
		case diffpatch.DiffEqual:
			op = opEqual
		case diffpatch.DiffDelete:
			op = opDelete
		case diffpatch.DiffInsert:
			op = opInsert
		}
		for _, line := range splitLines(d.Text) {
			edits = append(edits, edit{op: op, text: line})
		}
	}
	if !reproduces(edits, oldText, newText) {
		return replaceAll(oldText, newText)
	}
	return edits
}

// reproduces checks that the script's two sides rebuild both inputs.
func reproduces(edits []edit, oldText, newText string) bool {
	var oldSide, newSide strings.Builder
	for _, e := range edits {
		if e.op != opInsert {
			oldSide.WriteString(e.text)
		}
		if e.op != opDelete {
			newSide.WriteString(e.text)
		}
	}
	return oldSide.String() == oldText && newSide.String() == newText
}

func replaceAll(oldText, newText string) []edit {
	var edits []edit
	for _, line := range splitLines(oldText) {
		edits = append(edits, edit{op: opDelete, text: line})
	}
	for _, line := range splitLines(newText) {
		edits = append(edits, edit{op: opInsert, text: line})
	}
	return edits
}

type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	edits              []edit
}

func buildHunks(edits []edit) []hunk {
	var changes []int
	for i, e := range edits {
		if e.op != opEqual {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	// oldAt[i]/newAt[i] are the 0-based line positions before edits[i].
	oldAt := make([]int, len(edits)+1)
	newAt := make([]int, len(edits)+1)
	for i, e := range edits {
		oldAt[i+1], newAt[i+1] = oldAt[i], newAt[i]
		if e.op != opInsert {
			oldAt[i+1]++
		}
		if e.op != opDelete {
			newAt[i+1]++
		}
	}

	var hunks []hunk
	for g := 0; g < len(changes); {
		first, last := changes[g], changes[g]
		g++
		for g < len(changes) && changes[g]-last-1 <= 2*ContextLines {
			last = changes[g]
			g++
		}
		start := max(0, first-ContextLines)
		end := min(len(edits), last+ContextLines+1)

		h := hunk{edits: edits[start:end]}
		h.oldCount = oldAt[end] - oldAt[start]
		h.newCount = newAt[end] - newAt[start]
		h.oldStart = oldAt[start]
		if h.oldCount > 0 {
			h.oldStart++
		}
		h.newStart = newAt[start]
		if h.newCount > 0 {
			h.newStart++
		}
		hunks = append(hunks, h)
	}
	return hunks
}

func (h hunk) write(b *strings.Builder) {
	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", h.oldStart, h.oldCount, h.newStart, h.newCount)
	for _, e := range h.edits {
		b.WriteByte(byte(e.op))
		if strings.HasSuffix(e.text, "\n") {
			b.WriteString(e.text)
			continue
		}
		b.WriteString(e.text)
		b.WriteString("\n" + noNewlineMarker + "\n")
	}
}
