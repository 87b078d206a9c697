// Package sections splits markdown-like text into header-delimited sections.
package sections

import "strings"

// previewLines is how many body lines a Section's Content carries.
const previewLines = 2

// Section is one header and a preview of its body.
type Section struct {
	Header    string `json:"header"`
	Content   string `json:"content"`
	StartLine int    `json:"startLine"`
}

type Summary struct {
	Sections []Section `json:"sections"`
}

func isHeader(line string) bool {
	return strings.HasPrefix(line, "#")
}

// Index lists every section of text. A line starting with '#' opens a
// section; lines before the first header belong to none.
func Index(text string) Summary {
	lines := strings.Split(text, "\n")
	out := Summary{Sections: []Section{}}

	var cur *Section
	var body []string
	flush := func() {
		if cur == nil {
			return
		}
		cur.Content = strings.Join(body[:min(previewLines, len(body))], "\n")
		out.Sections = append(out.Sections, *cur)
	}
	for i, line := range lines {
		if isHeader(line) {
			flush()
			cur = &Section{Header: line, StartLine: i + 1}
			body = body[:0]
			continue
		}
		if cur != nil {
			body = append(body, line)
		}
	}
	flush()
	return out
}

// Lookup returns the full body of the first section whose trimmed header
// equals the trimmed header argument.
func Lookup(text, header string) (string, bool) {
	want := strings.TrimSpace(header)
	var body []string
	found := false
	for _, line := range strings.Split(text, "\n") {
		if isHeader(line) {
			if found {
				break
			}
			found = strings.TrimSpace(line) == want
			continue
		}
		if found {
			body = append(body, line)
		}
	}
	if !found {
		return "", false
	}
	return strings.Join(body, "\n"), true
}
