package export

import (
	"context"
	"fmt"
)

// ContentSource resolves the text of a document version. An empty version
// means the current branch head.
type ContentSource interface {
	ExportSource(ctx context.Context, fileID, userID, version string) (Source, error)
}

// Service provides document export functionality
type Service struct {
	source ContentSource
}

// NewService creates a new export service
func NewService(source ContentSource) *Service {
	return &Service{source: source}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	src, err := s.source.ExportSource(ctx, req.FileID, req.UserID, req.Version)
	if err != nil {
		return nil, fmt.Errorf("load export source: %w", err)
	}
	name := sanitizeFilename(src.FileID)

	switch req.Format {
	case FormatMarkdown, "":
		return &Result{
			Data:     []byte(src.Text),
			Filename: name + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	case FormatDOCX:
		return exportDOCX(ctx, src.Text, name)
	}

	data := buildTemplateData(src)
	html, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: name + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(ctx, html, name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
