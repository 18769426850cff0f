// Package server exposes the authentication pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/andresmejia3/biogate/internal/features"
	"github.com/andresmejia3/biogate/internal/model"
	"github.com/andresmejia3/biogate/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// maxRequestBody caps the JSON body of an authenticate request.
const maxRequestBody = 64 << 10

// Server handles authentication requests. Transactions run one at a time
// because the Python workers serve a single request per pipe.
type Server struct {
	sys    *pipeline.System
	mu     sync.Mutex
	router *chi.Mux
}

// New wires the routes for sys.
func New(sys *pipeline.System) *Server {
	s := &Server{sys: sys}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/samples", s.handleSamples)
	r.Post("/api/v1/authenticate", s.handleAuthenticate)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"face_threshold":  s.sys.Policy.FaceThreshold,
		"voice_threshold": s.sys.Policy.VoiceThreshold,
		"recording":       s.sys.Recorder != nil,
	})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{
		"faces":  nonNil(s.sys.FaceLoader.Samples()),
		"voices": nonNil(s.sys.VoiceLoader.Samples()),
	})
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return
		}
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Face == "" || req.Voice == "" {
		respondError(w, http.StatusBadRequest, "face and voice are required", nil)
		return
	}

	s.mu.Lock()
	tx, err := s.sys.Run(r.Context(), req)
	s.mu.Unlock()

	switch {
	case errors.Is(err, features.ErrNotFound):
		respondError(w, http.StatusNotFound, "file not found", err)
	case errors.Is(err, model.ErrShapeMismatch):
		respondError(w, http.StatusInternalServerError, "configuration error", err)
	case err != nil:
		respondError(w, http.StatusInternalServerError, "authentication failed", err)
	default:
		respondJSON(w, http.StatusOK, tx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
		}).Info("request")
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
