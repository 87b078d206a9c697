package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"palimpsest/api/internal/export"
	"palimpsest/api/internal/metrics"
	"palimpsest/api/internal/search"
)

// UserHeader carries the opaque id of the calling user.
const UserHeader = "X-User-ID"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", s.withMiddleware(http.HandlerFunc(s.handle)))
	return mux
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"contexts": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["contexts"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	parts, err := splitPath(r.URL.EscapedPath())
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PATH", err.Error(), nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r, userID)
		return
	}

	// Single-document routes kept for older editor clients.
	if r.Method == http.MethodGet && r.URL.Path == "/api/document" {
		fileID := strings.TrimSpace(r.URL.Query().Get("fileId"))
		rec, err := s.service.GetDocument(r.Context(), userID, fileID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"content": rec.CurrentState})
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/commit" {
		var body struct {
			FileID       string `json:"fileId"`
			PatchContent string `json:"patchContent"`
			Message      string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if _, err := s.service.CommitPatch(r.Context(), userID, body.FileID, body.PatchContent, body.Message); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Commit successful."})
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "documents" {
		if len(parts) == 2 {
			s.handleDocumentCollection(w, r, userID)
			return
		}
		s.handleDocument(w, r, userID, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleDocumentCollection(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		recs, err := s.service.ListDocuments(r.Context(), userID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": recs})
	case http.MethodPost:
		var body struct {
			FileID  string `json:"fileId"`
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		rec, err := s.service.CreateDocument(r.Context(), userID, body.FileID, body.Content)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"document": rec})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, userID, fileID string, rest []string) {
	ctx := r.Context()
	query := r.URL.Query()

	if len(rest) == 0 && r.Method == http.MethodGet {
		rec, err := s.service.GetDocument(ctx, userID, fileID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": rec})
		return
	}

	if len(rest) == 1 && rest[0] == "content" {
		switch r.Method {
		case http.MethodGet:
			rec, err := s.service.GetDocument(ctx, userID, fileID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"fileId":  rec.FileID,
				"content": rec.CurrentState,
				"head":    rec.Head,
				"branch":  rec.Branch,
				"digest":  rec.Digest,
			})
		case http.MethodPut:
			var body struct {
				Content *string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if body.Content == nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
				return
			}
			rec, err := s.service.UpdateContent(ctx, userID, fileID, *body.Content)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": rec})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "commits" && r.Method == http.MethodPost {
		var body struct {
			Patch   string `json:"patch"`
			Message string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		rec, err := s.service.CommitPatch(ctx, userID, fileID, body.Patch, body.Message)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"document": rec})
		return
	}

	if len(rest) == 1 && rest[0] == "patches" && r.Method == http.MethodPost {
		var body struct {
			Patch string `json:"patch"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		rec, err := s.service.ApplyPatch(ctx, userID, fileID, body.Patch)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": rec})
		return
	}

	if len(rest) == 1 && rest[0] == "summary" && r.Method == http.MethodGet {
		summary, err := s.service.Summary(ctx, userID, fileID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	if len(rest) == 1 && rest[0] == "sections" && r.Method == http.MethodGet {
		section, err := s.service.Section(ctx, userID, fileID, query.Get("header"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, section)
		return
	}

	if len(rest) == 1 && rest[0] == "outline" && r.Method == http.MethodGet {
		outline, err := s.service.Outline(ctx, userID, fileID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, outline)
		return
	}

	if len(rest) == 1 && rest[0] == "history" && r.Method == http.MethodGet {
		limit := 0
		if rawLimit := strings.TrimSpace(query.Get("limit")); rawLimit != "" {
			parsed, err := strconv.Atoi(rawLimit)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
				return
			}
			limit = parsed
		}
		versions, err := s.service.History(ctx, userID, fileID, strings.TrimSpace(query.Get("branch")), limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
		return
	}

	if len(rest) == 2 && rest[0] == "versions" && r.Method == http.MethodGet {
		view, err := s.service.Version(ctx, userID, fileID, rest[1])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(rest) == 1 && rest[0] == "branches" {
		switch r.Method {
		case http.MethodGet:
			list, err := s.service.Branches(ctx, userID, fileID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, list)
		case http.MethodPost:
			var body struct {
				Name          string `json:"name"`
				FromVersionID string `json:"fromVersionId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			branch, err := s.service.CreateBranch(ctx, userID, fileID, body.Name, body.FromVersionID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"branch": branch})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "branch" && r.Method == http.MethodPut {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		rec, err := s.service.SwitchBranch(ctx, userID, fileID, strings.TrimSpace(body.Name))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": rec})
		return
	}

	if len(rest) == 1 && rest[0] == "verify" && r.Method == http.MethodGet {
		report, err := s.service.Verify(ctx, userID, fileID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": report.OK(), "report": report})
		return
	}

	if len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodGet {
		format, err := export.ParseFormat(strings.TrimSpace(query.Get("format")))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		result, err := s.service.Export(ctx, export.Request{
			FileID:  fileID,
			UserID:  userID,
			Version: strings.TrimSpace(query.Get("version")),
			Format:  format,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, userID string) {
	query := r.URL.Query()
	q := search.Query{Text: strings.TrimSpace(query.Get("q")), UserID: userID}
	if q.Text == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	q.Limit, _ = strconv.Atoi(query.Get("limit"))
	q.Offset, _ = strconv.Atoi(query.Get("offset"))
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

// fail maps err to a response. Unexpected errors are logged with the
// request id; mapped ones are the caller's problem.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		requestID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Error("request failed", "request_id", requestID, "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(UserHeader))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "USER_REQUIRED", UserHeader+" header is required", nil)
		return "", false
	}
	return userID, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(writer.status)).Inc()
		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// splitPath splits an escaped path and unescapes each segment, so file ids
// may contain "/" as %2F.
func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		unescaped, err := url.PathUnescape(part)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q", part)
		}
		parts[i] = unescaped
	}
	return parts, nil
}
