// Package server exposes the voice-clone pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	defaultMaxUploadBytes = 20 << 20
	defaultRequestTimeout = 300 * time.Second
	corsMaxAgeSeconds     = 300
)

// Cloner runs the voice-cloning pipeline.
type Cloner interface {
	CloneVoice(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// ModelState reports whether the model bundle is ready.
type ModelState interface {
	Loaded() bool
	Device() string
}

// Options tunes the HTTP surface.
type Options struct {
	// PublicBaseURL prefixes download links. When empty the link is built
	// from the request's scheme and host.
	PublicBaseURL  string
	AllowedOrigins []string
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// Handler serves the clone, download and health endpoints.
type Handler struct {
	cloner Cloner
	store  core.ObjectStore
	models ModelState
	log    *logger.Logger
	opts   Options
}

// New creates a Handler. Non-positive limits use the defaults.
func New(cloner Cloner, store core.ObjectStore, models ModelState, opts Options, log *logger.Logger) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	return &Handler{
		cloner: cloner,
		store:  store,
		models: models,
		log:    log,
		opts:   opts,
	}
}

// Attach registers the routes on r.
func (h *Handler) Attach(r chi.Router) {
	r.Post("/clone_voice/", h.handleCloneVoice)
	r.Post("/clone_voice", h.handleCloneVoice)

	r.Get("/download_audio/{filename}", h.handleDownload)
	r.Get("/health", h.handleHealth)
}

// Router returns a chi router with recovery, CORS and the handler's routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if len(h.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         corsMaxAgeSeconds,
		}))
	}

	h.Attach(r)

	return r
}

func writeJson(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJson(w, code, ErrorResponse{Error: message})
}
