package patch

import (
	"regexp"
	"strconv"
	"strings"
)

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

type parsedHunk struct {
	oldStart, oldCount int
	newStart, newCount int
	lines              []edit
	oldNoNewline       bool
	newNoNewline       bool
}

func (h *parsedHunk) hasMarker() bool {
	return h.oldNoNewline || h.newNoNewline
}

func (h *parsedHunk) sides() (oldSide, newSide []string) {
	for _, l := range h.lines {
		if l.op != opInsert {
			oldSide = append(oldSide, l.text)
		}
		if l.op != opDelete {
			newSide = append(newSide, l.text)
		}
	}
	return oldSide, newSide
}

// Apply applies a unified diff to base and returns the patched text.
// Lines outside hunks (file headers, prose) are ignored, so a patch without
// hunks returns base unchanged.
func Apply(base, patchText string) (string, error) {
	hunks, err := parse(patchText)
	if err != nil {
		return "", err
	}
	if len(hunks) == 0 {
		return base, nil
	}

	lines := contentLines(base)
	eof := base == "" || strings.HasSuffix(base, "\n")

	out := make([]string, 0, len(lines))
	consumed := 0
	offset := 0
	for i := range hunks {
		h := &hunks[i]
		oldSide, newSide := h.sides()

		stated := h.oldStart - 1
		if h.oldCount == 0 {
			stated = h.oldStart
		}
		at, ok := locate(lines, oldSide, max(0, stated+offset), consumed)
		if !ok {
			return "", &ApplyError{Hunk: i + 1, Line: h.oldStart, Reason: "context does not match"}
		}
		offset = at - stated

		out = append(out, lines[consumed:at]...)
		out = append(out, newSide...)
		consumed = at + len(oldSide)

		if consumed == len(lines) && h.hasMarker() {
			eof = !h.newNoNewline
		}
	}
	out = append(out, lines[consumed:]...)

	if len(out) == 0 {
		return "", nil
	}
	result := strings.Join(out, "\n")
	if eof {
		result += "\n"
	}
	return result, nil
}

// contentLines splits text on "\n" without keeping the separator.
func contentLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// locate finds where want matches lines, starting at the stated position and
// searching outward. Positions before floor belong to an earlier hunk.
func locate(lines, want []string, stated, floor int) (int, bool) {
	last := len(lines) - len(want)
	if last < floor {
		return 0, false
	}
	if len(want) == 0 {
		// A pure insertion has nothing to anchor on.
		if stated < floor || stated > len(lines) {
			return 0, false
		}
		return stated, true
	}
	for d := 0; stated-d >= floor || stated+d <= last; d++ {
		if p := stated - d; p >= floor && p <= last && matchAt(lines, want, p) {
			return p, true
		}
		if d == 0 {
			continue
		}
		if p := stated + d; p >= floor && p <= last && matchAt(lines, want, p) {
			return p, true
		}
	}
	return 0, false
}

func matchAt(lines, want []string, at int) bool {
	for i, w := range want {
		if lines[at+i] != w {
			return false
		}
	}
	return true
}

func parse(patchText string) ([]parsedHunk, error) {
	raw := strings.Split(patchText, "\n")
	if strings.HasSuffix(patchText, "\n") {
		raw = raw[:len(raw)-1]
	}

	var hunks []parsedHunk
	for i := 0; i < len(raw); {
		if !strings.HasPrefix(raw[i], "@@") {
			i++
			continue
		}
		h, next, err := parseHunk(raw, i)
		if err != nil {
			return nil, err
		}
		hunks = append(hunks, h)
		i = next
	}
	return hunks, nil
}

func parseHunk(raw []string, at int) (parsedHunk, int, error) {
	m := hunkHeader.FindStringSubmatch(raw[at])
	if m == nil {
		return parsedHunk{}, 0, &malformedError{line: at + 1, reason: "invalid hunk header"}
	}
	var h parsedHunk
	var err error
	if h.oldStart, h.oldCount, err = rangeOf(m[1], m[2]); err != nil {
		return parsedHunk{}, 0, &malformedError{line: at + 1, reason: err.Error()}
	}
	if h.newStart, h.newCount, err = rangeOf(m[3], m[4]); err != nil {
		return parsedHunk{}, 0, &malformedError{line: at + 1, reason: err.Error()}
	}

	remOld, remNew := h.oldCount, h.newCount
	i := at + 1
	for remOld > 0 || remNew > 0 {
		if i >= len(raw) {
			return parsedHunk{}, 0, &malformedError{line: i, reason: "truncated hunk"}
		}
		line := raw[i]
		if strings.HasPrefix(line, `\`) {
			h.markLast()
			i++
			continue
		}
		op, text := opContext, ""
		if line != "" {
			op, text = opKind(line[0]), line[1:]
		}
		switch op {
		case opEqual:
			remOld--
			remNew--
		case opDelete:
			remOld--
		case opInsert:
			remNew--
		default:
			return parsedHunk{}, 0, &malformedError{line: i + 1, reason: "unexpected line in hunk body"}
		}
		if remOld < 0 || remNew < 0 {
			return parsedHunk{}, 0, &malformedError{line: i + 1, reason: "hunk longer than its header"}
		}
		h.lines = append(h.lines, edit{op: op, text: text})
		i++
	}
	for i < len(raw) && strings.HasPrefix(raw[i], `\`) {
		h.markLast()
		i++
	}
	return h, i, nil
}

// opContext is how an empty body line is read; some editors strip the
// leading space from blank context lines.
const opContext = opEqual

func (h *parsedHunk) markLast() {
	if len(h.lines) == 0 {
		return
	}
	switch h.lines[len(h.lines)-1].op {
	case opEqual:
		h.oldNoNewline = true
		h.newNoNewline = true
	case opDelete:
		h.oldNoNewline = true
	case opInsert:
		h.newNoNewline = true
	}
}

func rangeOf(start, count string) (int, int, error) {
	s, err := strconv.Atoi(start)
	if err != nil {
		return 0, 0, err
	}
	c := 1
	if count != "" {
		if c, err = strconv.Atoi(count); err != nil {
			return 0, 0, err
		}
	}
	return s, c, nil
}
