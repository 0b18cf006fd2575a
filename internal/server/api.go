package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/llm"
	"docrag/internal/domain"
	"docrag/internal/port"
	"docrag/internal/usecase"
)

// multipartOverhead is added to the upload limit for form boundaries and headers.
const multipartOverhead = 1 << 20

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SearchRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"gte=0,lte=100"`
}

type SearchResponse struct {
	Query   string               `json:"query"`
	Results []domain.ScoredChunk `json:"results"`
}

type AskRequest struct {
	Query string `json:"query" validate:"required"`
}

// ChunkRequest previews chunking of posted text. Unset sizes use the
// configured ingest settings.
type ChunkRequest struct {
	Name    string `json:"name"`
	Text    string `json:"text" validate:"required"`
	MaxSize *int   `json:"max_size"`
	Overlap *int   `json:"overlap"`
}

type ChunkPreview struct {
	Source  string `json:"source"`
	Chars   int    `json:"chars"`
	Content string `json:"content"`
}

type ChunkResponse struct {
	MaxSize int            `json:"max_size"`
	Overlap int            `json:"overlap"`
	Chunks  []ChunkPreview `json:"chunks"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err string, msg string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var invalid validator.ValidationErrors
	switch {
	case errors.Is(err, port.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, port.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, chunker.ErrInvalidConfig), errors.Is(err, usecase.ErrEmptyQuery), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, port.ErrEmbeddingUnavailable), errors.Is(err, llm.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, http.StatusText(status), err.Error())
}

// decode reads a JSON body of at most MaxUploadBytes into v and validates it.
func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, v any) error {
	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return s.validate.Struct(v)
}

// rejectBody answers a request whose body could not be decoded: 413 when it
// exceeded the limit, 400 otherwise.
func (s *HTTPServer) rejectBody(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusRequestEntityTooLarge {
		s.fail(w, r, err)
		return
	}
	writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Docs.GetStats()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Docs.ListDocs()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Docs.GetDoc(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleGetChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Docs.GetDoc(id); err != nil {
		s.fail(w, r, err)
		return
	}
	chunks, err := s.deps.Docs.GetChunksByDoc(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "chunks": chunks})
}

func (s *HTTPServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Ingest.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUploadDocument ingests the multipart "file" field.
func (s *HTTPServer) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxUploadBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.fail(w, r, fmt.Errorf("%w: upload exceeds %d bytes", usecase.ErrTooLarge, limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Bad Request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	reader := io.Reader(file)
	if limit > 0 {
		reader = io.LimitReader(file, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if limit > 0 && int64(len(data)) > limit {
		documentsIngestedTotal.WithLabelValues("failed").Inc()
		s.fail(w, r, fmt.Errorf("%w: upload exceeds %d bytes", usecase.ErrTooLarge, limit))
		return
	}

	result, err := s.deps.Ingest.IngestFile(r.Context(), filepath.Base(header.Filename), data)
	if err != nil {
		documentsIngestedTotal.WithLabelValues("failed").Inc()
		s.fail(w, r, err)
		return
	}

	if result.Skipped {
		documentsIngestedTotal.WithLabelValues("skipped").Inc()
		writeJSON(w, http.StatusOK, result)
		return
	}
	documentsIngestedTotal.WithLabelValues("ingested").Inc()
	chunksCreatedTotal.Add(float64(result.Chunks))
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.rejectBody(w, r, err)
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.config.TopK
	}

	results, err := s.deps.Retrieve.Retrieve(r.Context(), req.Query, topK)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if results == nil {
		results = []domain.ScoredChunk{}
	}
	searchResultsReturned.Observe(float64(len(results)))
	writeJSON(w, http.StatusOK, SearchResponse{Query: req.Query, Results: results})
}

func (s *HTTPServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := s.decode(w, r, &req); err != nil {
		s.rejectBody(w, r, err)
		return
	}

	answer, err := s.deps.Prompt.Ask(r.Context(), req.Query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *HTTPServer) handleChunk(w http.ResponseWriter, r *http.Request) {
	var req ChunkRequest
	if err := s.decode(w, r, &req); err != nil {
		s.rejectBody(w, r, err)
		return
	}

	opts := s.config.Chunking
	if req.MaxSize != nil {
		opts.MaxSize = *req.MaxSize
	}
	if req.Overlap != nil {
		opts.Overlap = *req.Overlap
	}
	name := req.Name
	if name == "" {
		name = "text"
	}

	parts, err := chunker.Chunk(req.Text, opts.MaxSize, opts.Overlap)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := ChunkResponse{MaxSize: opts.MaxSize, Overlap: opts.Overlap, Chunks: make([]ChunkPreview, len(parts))}
	for i, p := range parts {
		resp.Chunks[i] = ChunkPreview{
			Source:  chunker.SourceLabel(name, i+1),
			Chars:   utf8.RuneCountInString(p),
			Content: p,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
