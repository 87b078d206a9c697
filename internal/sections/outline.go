package sections

import (
	"regexp"
	"strings"
)

var (
	functionPattern = regexp.MustCompile(`function\s+([a-zA-Z0-9_]+)`)
	jsonKeyPattern  = regexp.MustCompile(`"([a-zA-Z0-9_]+)":`)
)

type Heading struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Line  int    `json:"line"`
}

// Symbol is a named thing found inside a section, such as a function or a
// configuration key.
type Symbol struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Line    int    `json:"line"`
	Section string `json:"section"`
}

type Outline struct {
	Headings []Heading `json:"toc"`
	Symbols  []Symbol  `json:"symbols"`
}

// BuildOutline returns the table of contents of text and the symbols it
// mentions. JSON keys count as symbols only inside sections whose title
// mentions json or config.
func BuildOutline(text string) Outline {
	out := Outline{Headings: []Heading{}, Symbols: []Symbol{}}
	section := ""
	for i, line := range strings.Split(text, "\n") {
		n := i + 1
		if level, title, ok := heading(line); ok {
			section = title
			out.Headings = append(out.Headings, Heading{Level: level, Title: title, Line: n})
		}
		if m := functionPattern.FindStringSubmatch(line); m != nil {
			out.Symbols = append(out.Symbols, Symbol{Name: m[1], Kind: "function", Line: n, Section: section})
		}
		lower := strings.ToLower(section)
		if strings.Contains(lower, "json") || strings.Contains(lower, "config") {
			if m := jsonKeyPattern.FindStringSubmatch(line); m != nil {
				out.Symbols = append(out.Symbols, Symbol{Name: m[1], Kind: "key", Line: n, Section: section})
			}
		}
	}
	return out
}

// heading parses an ATX heading: one to six '#' followed by a space.
func heading(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[level:]), true
}
