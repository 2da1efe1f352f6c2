// Package http exposes the pipeline over a JSON HTTP API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/datachat/datachat-go/internal/domain/entities"
	"github.com/datachat/datachat-go/internal/domain/ports"
	"github.com/datachat/datachat-go/internal/domain/usecases"
)

// sessionHeader carries the conversation session key. Absent means the
// shared "default" session.
const sessionHeader = "X-Session-ID"

const maxUploadBytes = 32 << 20

// Server is the HTTP boundary over the ask and ingest usecases.
type Server struct {
	ask         *usecases.AskUseCase
	ingest      *usecases.IngestUseCase
	vectorStore ports.VectorStore
	auth        ports.Authorizer
	logger      *slog.Logger
	addr        string
}

// NewServer creates the HTTP server. A nil authorizer admits every
// request.
func NewServer(
	ask *usecases.AskUseCase,
	ingest *usecases.IngestUseCase,
	vectorStore ports.VectorStore,
	auth ports.Authorizer,
	logger *slog.Logger,
	addr string,
) *Server {
	if auth == nil {
		auth = allowAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ask:         ask,
		ingest:      ingest,
		vectorStore: vectorStore,
		auth:        auth,
		logger:      logger,
		addr:        addr,
	}
}

// Router builds the route table. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/documents", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/chat/stream", s.handleChatStream).Methods(http.MethodGet)
	api.HandleFunc("/chat/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/chat/history", s.handleClearHistory).Methods(http.MethodDelete)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	return s.logging(s.authorize(r))
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second, // Streaming answers can run long
	}

	s.logger.Info("http server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer  string            `json:"answer"`
	Sources []sourceReference `json:"sources"`
}

type sourceReference struct {
	ChunkID  string  `json:"chunk_id"`
	SourceID string  `json:"source_id"`
	Source   string  `json:"source"`
	Score    float64 `json:"score"`
}

func sourceRefs(passages []entities.Passage) []sourceReference {
	refs := make([]sourceReference, len(passages))
	for i, p := range passages {
		refs[i] = sourceReference{
			ChunkID:  p.ChunkID,
			SourceID: p.SourceID,
			Source:   p.Source,
			Score:    p.Score,
		}
	}
	return refs
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.ask.Ask(r.Context(), sessionID(r), req.Question)
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		Answer:  answer.Text,
		Sources: sourceRefs(answer.Sources),
	})
}

// handleChatStream streams the answer over SSE. The first event carries
// the source attribution, then token events follow, then a done event.
// Closing the connection cancels generation and leaves the session
// history untouched.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("q")
	if question == "" {
		s.writeError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	tokens, passages, err := s.ask.AskStream(r.Context(), sessionID(r), question)
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendSSE(w, flusher, "sources", sourceRefs(passages))

	for token := range tokens {
		if token.Error != nil {
			sendSSE(w, flusher, "error", map[string]string{"error": token.Error.Error()})
			return
		}
		if token.Content != "" {
			sendSSE(w, flusher, "token", map[string]string{"content": token.Content})
		}
		if token.Done {
			sendSSE(w, flusher, "done", map[string]bool{"done": true})
			return
		}
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "reading upload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if ct := r.FormValue("content_type"); ct != "" {
		contentType = ct
	}

	sourceID, err := s.ingest.IngestBytes(r.Context(), data, contentType, map[string]string{
		"filename": header.Filename,
	})
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"source_id": sourceID})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["id"]
	if err := s.ingest.Delete(r.Context(), sourceID); err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type turnResponse struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns := s.ask.History(sessionID(r), usecases.DefaultMemoryCapacity)
	out := make([]turnResponse, len(turns))
	for i, t := range turns {
		out[i] = turnResponse{Question: t.Question, Answer: t.Answer, Timestamp: t.Timestamp}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"turns": out})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.ask.ClearHistory(sessionID(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		s.writeError(w, http.StatusBadRequest, "reset discards all documents; pass confirm=true")
		return
	}
	if err := s.ingest.Reset(r.Context()); err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// The index is the only hard dependency a health probe can check
	// without spending model tokens.
	if _, err := s.vectorStore.Count(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"index":  "unreachable",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.vectorStore.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "counting chunks")
		return
	}
	sessions, topK, minScore := s.ask.Stats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"chunks":    count,
		"sessions":  sessions,
		"top_k":     topK,
		"min_score": minScore,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeUsecaseError maps pipeline errors onto HTTP statuses.
func (s *Server) writeUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entities.ErrEmptyIndex):
		s.writeError(w, http.StatusConflict, "no documents have been ingested yet")
	case errors.Is(err, entities.ErrEmbeddingUnavailable),
		errors.Is(err, entities.ErrGenerationUnavailable):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, entities.ErrInvalidConfig):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

func sessionID(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	return "default"
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier, err := s.auth.Authorize(r.Context(), sessionID(r))
		if err != nil {
			s.writeError(w, http.StatusForbidden, "not authorized")
			return
		}
		if tier != "" {
			r = r.WithContext(context.WithValue(r.Context(), tierContextKey{}, tier))
		}
		next.ServeHTTP(w, r)
	})
}

type tierContextKey struct{}

// allowAll is the default authorizer: every session is admitted.
type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, sessionID string) (string, error) {
	return "", nil
}
