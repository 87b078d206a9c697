package app

import (
	"context"
	"net/http"
	"strings"

	"palimpsest/api/internal/backend"
	"palimpsest/api/internal/document"
	"palimpsest/api/internal/export"
	"palimpsest/api/internal/history"
	"palimpsest/api/internal/search"
	"palimpsest/api/internal/sections"
	"palimpsest/api/internal/store"
)

// Service adapts the document service to request payloads. It validates
// input and turns the nil results of missing contexts into errors.
type Service struct {
	documents *document.Service
	exports   *export.Service
	search    *search.Service
	ping      func(context.Context) error
}

func New(documents *document.Service, exports *export.Service, searchService *search.Service, ping func(context.Context) error) *Service {
	if ping == nil {
		ping = func(context.Context) error { return nil }
	}
	return &Service{documents: documents, exports: exports, search: searchService, ping: ping}
}

func NewFromBackend(b *backend.Backend) *Service {
	return New(b.Documents, b.Export, b.Search, b.Ready)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *Service) CreateDocument(ctx context.Context, userID, fileID, content string) (*store.Context, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fileId is required", nil)
	}
	return s.documents.CreateContext(ctx, fileID, userID, content)
}

func (s *Service) ListDocuments(ctx context.Context, userID string) ([]store.Context, error) {
	return s.documents.ListContexts(ctx, userID)
}

func (s *Service) GetDocument(ctx context.Context, userID, fileID string) (*store.Context, error) {
	return s.documents.GetContext(ctx, fileID, userID)
}

func (s *Service) UpdateContent(ctx context.Context, userID, fileID, content string) (*store.Context, error) {
	rec, err := s.documents.UpdateFile(ctx, fileID, userID, content)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, document.ErrContextNotFound
	}
	return rec, nil
}

func (s *Service) ApplyPatch(ctx context.Context, userID, fileID, patchText string) (*store.Context, error) {
	if strings.TrimSpace(patchText) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "patch is required", nil)
	}
	rec, err := s.documents.ApplyPatch(ctx, fileID, userID, patchText)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, document.ErrContextNotFound
	}
	return rec, nil
}

func (s *Service) CommitPatch(ctx context.Context, userID, fileID, patchText, message string) (*store.Context, error) {
	if strings.TrimSpace(patchText) == "" || strings.TrimSpace(message) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "patch and message are required", nil)
	}
	return s.documents.CommitPatch(ctx, fileID, userID, patchText, message)
}

func (s *Service) Summary(ctx context.Context, userID, fileID string) (*sections.Summary, error) {
	summary, err := s.documents.GetSummary(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, document.ErrContextNotFound
	}
	return summary, nil
}

// SectionView is one section body and its HTML rendering.
type SectionView struct {
	Header  string `json:"header"`
	Content string `json:"content"`
	HTML    string `json:"html"`
}

func (s *Service) Section(ctx context.Context, userID, fileID, header string) (SectionView, error) {
	if strings.TrimSpace(header) == "" {
		return SectionView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "header is required", nil)
	}
	// Tell a missing document apart from a missing header.
	if _, err := s.documents.GetContext(ctx, fileID, userID); err != nil {
		return SectionView{}, err
	}
	text, found, err := s.documents.GetSection(ctx, fileID, userID, header)
	if err != nil {
		return SectionView{}, err
	}
	if !found {
		return SectionView{}, domainError(http.StatusNotFound, "SECTION_NOT_FOUND", "Section not found", map[string]string{"header": header})
	}
	return SectionView{Header: header, Content: text, HTML: export.RenderSection(text)}, nil
}

func (s *Service) Outline(ctx context.Context, userID, fileID string) (*sections.Outline, error) {
	return s.documents.Outline(ctx, fileID, userID)
}

func (s *Service) History(ctx context.Context, userID, fileID, branch string, limit int) ([]document.VersionInfo, error) {
	return s.documents.History(ctx, fileID, userID, branch, limit)
}

// VersionView is a version and the text it produces.
type VersionView struct {
	Version document.VersionInfo `json:"version"`
	Content string               `json:"content"`
}

func (s *Service) Version(ctx context.Context, userID, fileID, versionID string) (VersionView, error) {
	info, err := s.documents.Version(ctx, fileID, userID, versionID)
	if err != nil {
		return VersionView{}, err
	}
	text, err := s.documents.Checkout(ctx, fileID, userID, versionID)
	if err != nil {
		return VersionView{}, err
	}
	return VersionView{Version: info, Content: text}, nil
}

func (s *Service) Branches(ctx context.Context, userID, fileID string) (document.BranchList, error) {
	return s.documents.Branches(ctx, fileID, userID)
}

func (s *Service) CreateBranch(ctx context.Context, userID, fileID, name, from string) (history.Branch, error) {
	return s.documents.CreateBranch(ctx, fileID, userID, name, strings.TrimSpace(from))
}

func (s *Service) SwitchBranch(ctx context.Context, userID, fileID, name string) (*store.Context, error) {
	return s.documents.SwitchBranch(ctx, fileID, userID, name)
}

func (s *Service) Verify(ctx context.Context, userID, fileID string) (document.Report, error) {
	return s.documents.Verify(ctx, fileID, userID)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exports.Export(ctx, req)
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}
