package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

// DocumentConverter is what the HTTP surface needs from a Worker.
type DocumentConverter interface {
	Convert(ctx context.Context, docx []byte) ([]byte, error)
}

// HandlerOptions tunes the HTTP surface.
type HandlerOptions struct {
	// MaxBodyBytes caps the upload size.
	MaxBodyBytes int64
	// RateLimit is the number of conversions allowed per client IP per minute. Zero disables limiting.
	RateLimit int
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type handler struct {
	conv    DocumentConverter
	maxBody int64
}

// NewHandler builds the worker router: POST /convert, GET /healthz, OPTIONS on
// any path, and 404 for everything else. CORS headers are present on every
// response.
func NewHandler(conv DocumentConverter, opts HandlerOptions) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 50 << 20
	}
	h := &handler{conv: conv, maxBody: opts.MaxBodyBytes}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		permissiveCORS,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}),
	)
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	var limits []func(http.Handler) http.Handler
	if opts.RateLimit > 0 {
		limits = append(limits, httprate.Limit(
			opts.RateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many conversion requests"})
			}),
		))
	}
	r.With(limits...).Post("/convert", h.convert)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Options("/convert", preflight)
	r.Options("/*", preflight)
	return r
}

func (h *handler) convert(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("requestId", middleware.GetReqID(r.Context()))
	ctx := WithLogger(r.Context(), logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = convert.Errorf(convert.KindInvalidInput, "upload exceeds %d bytes", tooLarge.Limit)
		} else {
			err = convert.Wrap(convert.KindInvalidInput, err, "failed to read upload")
		}
		logger.Warn("Could not read request body.", "error", err)
		writeError(w, err)
		return
	}
	logger.Info("Received conversion request.", "bytes", len(body), "contentType", r.Header.Get("Content-Type"))

	start := time.Now()
	pdf, err := h.conv.Convert(ctx, body)
	if err != nil {
		logger.Error("Conversion failed.", "error", err, "kind", convert.KindOf(err))
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", convert.PDFContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set("X-Conversion-Ms", strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		logger.Warn("Failed to write response.", "error", err)
	}
}

// permissiveCORS sets the CORS headers unconditionally, so callers without an
// Origin header and error responses carry them too.
func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error: convert.Message(err),
		Kind:  string(convert.KindOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
