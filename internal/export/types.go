// Package export renders a document version as HTML, PDF, DOCX or raw markdown.
package export

import (
	"errors"
	"fmt"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatMarkdown Format = "markdown"
)

// ParseFormat maps a query value to a Format. Empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatHTML, FormatPDF, FormatDOCX:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Request contains parameters for an export operation
type Request struct {
	FileID  string
	UserID  string
	Version string // empty exports the current branch head
	Format  Format
}

// Source is the text of one document version, ready for rendering.
type Source struct {
	FileID    string
	Version   string
	Branch    string
	Text      string
	UpdatedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat is returned for unknown format names.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
