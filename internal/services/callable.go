package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/cors"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
	"github.com/Lllllllleong/docxconversionflow/internal/models"
)

// Callable protocol error statuses.
const (
	StatusInvalidArgument = "INVALID_ARGUMENT"
	StatusInternal        = "INTERNAL"
)

const maxCallableBodyBytes = 1 << 20

// ProcessFunc handles one decoded callable request.
type ProcessFunc func(ctx context.Context, req models.ConvertRequest) (*models.ConvertResponse, error)

// NewCallableHandler serves process over the callable protocol:
// {"data": ...} in, {"result": ...} or {"error": {"status","message"}} out.
// Browser preflights are answered by the CORS layer.
func NewCallableHandler(process ProcessFunc) http.Handler {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeCallable(w, http.StatusMethodNotAllowed, models.CallableResponse{
				Error: &models.CallableError{Status: StatusInvalidArgument, Message: "callable functions accept POST only"},
			})
			return
		}

		var req models.CallableRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallableBodyBytes)).Decode(&req); err != nil {
			writeCallable(w, http.StatusBadRequest, models.CallableResponse{
				Error: &models.CallableError{Status: StatusInvalidArgument, Message: "request body must be JSON of the form {\"data\": {...}}"},
			})
			return
		}

		resp, err := process(r.Context(), req.Data)
		if err != nil {
			WriteCallableError(w, err)
			return
		}
		writeCallable(w, http.StatusOK, models.CallableResponse{Result: resp})
	})
	return cors.AllowAll().Handler(h)
}

// WriteCallableError classifies err: caller mistakes are INVALID_ARGUMENT
// (400), everything else INTERNAL (500).
func WriteCallableError(w http.ResponseWriter, err error) {
	code, status := http.StatusInternalServerError, StatusInternal
	if convert.IsClientError(err) {
		code, status = http.StatusBadRequest, StatusInvalidArgument
	}
	writeCallable(w, code, models.CallableResponse{
		Error: &models.CallableError{Status: status, Message: convert.Message(err)},
	})
}

func writeCallable(w http.ResponseWriter, code int, body models.CallableResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to write callable response.", "error", err)
	}
}
