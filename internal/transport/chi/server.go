// Package chi exposes the HTTP API: ingestion, search, chat, history and
// collection management, plus health and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/docuquery/docuquery/internal/domain"
	chatuc "github.com/docuquery/docuquery/internal/usecase/chat"
	collectionuc "github.com/docuquery/docuquery/internal/usecase/collection"
	healthuc "github.com/docuquery/docuquery/internal/usecase/health"
	ingestuc "github.com/docuquery/docuquery/internal/usecase/ingest"
	searchuc "github.com/docuquery/docuquery/internal/usecase/search"
)

// maxUploadMemory bounds how much of a multipart upload stays in memory.
const maxUploadMemory = 32 << 20

// Error codes returned in JSON error bodies.
const (
	codeBadRequest           = "bad_request"
	codeValidationFailed     = "validation_failed"
	codeUnsupportedExtension = "unsupported_extension"
	codeVectorDimMismatch    = "vector_dim_mismatch"
	codeNotFound             = "not_found"
	codeCollectionNotFound   = "collection_not_found"
	codeHistoryNotFound      = "history_not_found"
	codeEmbeddingProviderErr = "embedding_provider_error"
	codeLLMProviderErr       = "llm_provider_error"
	codeNotImplemented       = "not_implemented"
	codeInternalError        = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the use case services into HTTP handlers.
type Server struct {
	ingest        *ingestuc.Service
	search        *searchuc.Service
	chat          *chatuc.Engine
	collections   *collectionuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	search *searchuc.Service,
	chat *chatuc.Engine,
	collections *collectionuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:      ingest,
		search:      search,
		chat:        chat,
		collections: collections,
		health:      health,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		extensionHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrCollectionNotFound, http.StatusNotFound, codeCollectionNotFound),
		sentinelHandler(domain.ErrHistoryNotFound, http.StatusNotFound, codeHistoryNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderErr),
		sentinelHandler(domain.ErrLLMProviderError, http.StatusBadGateway, codeLLMProviderErr),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, codeNotImplemented),
	}
	return s
}

// Routes mounts the API handlers onto the router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", s.Ingest)
		r.Post("/search", s.Search)
		r.Post("/chat", s.Chat)
		r.Get("/history/{userID}", s.GetHistory)
		r.Delete("/history/{userID}", s.DeleteHistory)
		r.Delete("/collections/{collection}", s.DeleteCollection)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type failedFile struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

type ingestResponse struct {
	Collection string       `json:"collection"`
	Sources    []string     `json:"sources"`
	Chunks     int          `json:"chunks"`
	Tokens     int          `json:"total_tokens"`
	Failed     []failedFile `json:"failed_files,omitempty"`
}

// Ingest handles POST /api/v1/ingest (multipart form: files, collection_name, user_id).
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "At least one file is required")
		return
	}

	files := make([]ingestuc.File, 0, len(uploads))
	for _, fh := range uploads {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Read upload "+fh.Filename+": "+err.Error())
			return
		}
		defer f.Close()
		files = append(files, ingestuc.File{Name: fh.Filename, Data: f})
	}

	report, err := s.ingest.Ingest(r.Context(), ingestuc.Request{
		Collection: r.FormValue("collection_name"),
		UserID:     r.FormValue("user_id"),
		Files:      files,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestReportToResponse(report))
}

func ingestReportToResponse(report ingestuc.Report) ingestResponse {
	resp := ingestResponse{
		Collection: report.Collection,
		Sources:    report.Sources,
		Chunks:     report.Chunks,
		Tokens:     report.Tokens,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, failedFile{Source: f.Source, Reason: f.Reason()})
	}
	return resp
}

type searchRequest struct {
	UserID     string   `json:"user_id"`
	Query      string   `json:"query"`
	TopResults int      `json:"top_results"`
	Collection string   `json:"collection_name"`
	Sources    []string `json:"sources,omitempty"`
	MinScore   float64  `json:"min_score,omitempty"`
}

type searchHit struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Items []searchHit `json:"items"`
	Total int         `json:"total"`
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	hits, err := s.search.Search(r.Context(), searchuc.Request{
		Collection: req.Collection,
		UserID:     req.UserID,
		Query:      req.Query,
		TopK:       req.TopResults,
		Sources:    req.Sources,
		MinScore:   req.MinScore,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchHit, len(hits))
	for i, h := range hits {
		items[i] = searchHit{
			ID:      h.Chunk.ID,
			Content: h.Chunk.Text,
			Source:  h.Chunk.Source,
			Page:    h.Chunk.Page,
			Score:   h.Score,
		}
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: items, Total: len(items)})
}

type chatRequest struct {
	Question        string `json:"question"`
	UserID          string `json:"user_id"`
	Collection      string `json:"collection_name"`
	TopK            int    `json:"top_k"`
	ReturnHistory   bool   `json:"return_history"`
	ReturnDocuments bool   `json:"return_documents"`
}

type chatUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

type chatTurn struct {
	Human string `json:"human"`
	AI    string `json:"ai"`
}

type chatResponse struct {
	Question  string      `json:"question"`
	Answer    string      `json:"answer"`
	Sources   []string    `json:"sources"`
	Usage     chatUsage   `json:"usage"`
	ElapsedMS int64       `json:"elapsed_ms"`
	History   []chatTurn  `json:"history,omitempty"`
	Documents []searchHit `json:"documents,omitempty"`
}

// Chat handles POST /api/v1/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.chat.Chat(r.Context(), chatuc.Request{
		Collection:      req.Collection,
		UserID:          req.UserID,
		Question:        req.Question,
		TopK:            req.TopK,
		ReturnHistory:   req.ReturnHistory,
		ReturnDocuments: req.ReturnDocuments,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := chatResponse{
		Question: result.Question,
		Answer:   result.Answer,
		Sources:  result.Sources,
		Usage: chatUsage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
			Cost:             result.Usage.Cost,
		},
		ElapsedMS: result.Elapsed.Milliseconds(),
	}
	for _, t := range result.History {
		resp.History = append(resp.History, chatTurn{Human: t.Human, AI: t.AI})
	}
	for _, h := range result.Documents {
		resp.Documents = append(resp.Documents, searchHit{
			ID:      h.Chunk.ID,
			Content: h.Chunk.Text,
			Source:  h.Chunk.Source,
			Page:    h.Chunk.Page,
			Score:   h.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	UserID string     `json:"user_id"`
	Turns  []chatTurn `json:"turns"`
}

// GetHistory handles GET /api/v1/history/{userID}.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "User id is required")
		return
	}

	turns := s.chat.History(userID)
	resp := historyResponse{UserID: userID, Turns: make([]chatTurn, len(turns))}
	for i, t := range turns {
		resp.Turns[i] = chatTurn{Human: t.Human, AI: t.AI}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteHistory handles DELETE /api/v1/history/{userID}.
func (s *Server) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "User id is required")
		return
	}

	if !s.chat.DeleteHistory(userID) {
		writeError(w, http.StatusNotFound, codeHistoryNotFound, domain.ErrHistoryNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCollection handles DELETE /api/v1/collections/{collection}?user_id=...
func (s *Server) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")
	userID := r.URL.Query().Get("user_id")

	if err := s.collections.Delete(r.Context(), name, userID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrUnsupportedExtension,
		domain.ErrVectorDimMismatch,
		domain.ErrCollectionNotFound,
		domain.ErrHistoryNotFound,
		domain.ErrNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrLLMProviderError,
		domain.ErrNotImplemented,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// extensionHandler handles ErrUnsupportedExtension with the offending extension.
func extensionHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrUnsupportedExtension) {
		return false
	}
	var ee *domain.ExtensionError
	if errors.As(err, &ee) {
		writeError(w, http.StatusBadRequest, codeUnsupportedExtension,
			fmt.Sprintf("%s: %q", msg, ee.Extension))
		return true
	}
	writeError(w, http.StatusBadRequest, codeUnsupportedExtension, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
