// Package worker converts DOCX uploads to PDF with a local rendering engine.
//
// Every conversion owns a private workspace directory. Input validation runs
// before the workspace exists; the workspace is removed immediately on failure
// and shortly after success.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

const inputFileName = "input.docx"

// Config controls a Worker.
type Config struct {
	// Timeout is the hard budget for one rendering subprocess.
	Timeout time.Duration
	// MinInputSize rejects uploads shorter than this many bytes.
	MinInputSize int
	// WorkspaceRoot is where per-request workspaces are created.
	WorkspaceRoot string
	// CleanupDelay postpones workspace removal after a successful conversion.
	CleanupDelay time.Duration
	// MaxConcurrent caps simultaneous rendering subprocesses.
	MaxConcurrent int64
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Timeout:       convert.DefaultRenderTimeout,
		MinInputSize:  convert.MinDocxSize,
		CleanupDelay:  2 * time.Second,
		MaxConcurrent: DefaultMaxConcurrent(),
	}
}

// DefaultMaxConcurrent allows one rendering subprocess per two GOMAXPROCS,
// minimum one.
func DefaultMaxConcurrent() int64 {
	n := runtime.GOMAXPROCS(0) / 2
	if n < 1 {
		n = 1
	}
	return int64(n)
}

// Worker turns DOCX bytes into verified PDF bytes.
type Worker struct {
	engine RenderingEngine
	config Config
	slots  *semaphore.Weighted

	mu       sync.Mutex
	pending  map[*Workspace]*time.Timer
	removing sync.WaitGroup
}

// New creates a Worker. Zero fields in config fall back to DefaultConfig.
func New(engine RenderingEngine, config Config) *Worker {
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MinInputSize <= 0 {
		config.MinInputSize = defaults.MinInputSize
	}
	if config.CleanupDelay < 0 {
		config.CleanupDelay = 0
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	return &Worker{
		engine:  engine,
		config:  config,
		slots:   semaphore.NewWeighted(config.MaxConcurrent),
		pending: make(map[*Workspace]*time.Timer),
	}
}

// Convert validates docx, renders it and returns the PDF bytes.
func (w *Worker) Convert(ctx context.Context, docx []byte) ([]byte, error) {
	logger := loggerFrom(ctx)

	if err := convert.CheckDocx(docx, w.config.MinInputSize); err != nil {
		logger.Warn("Rejected upload.", "bytes", len(docx), "error", err)
		return nil, err
	}

	if err := w.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a conversion slot: %w", err)
	}
	defer w.slots.Release(1)

	ws, err := NewWorkspace(w.config.WorkspaceRoot)
	if err != nil {
		logger.Error("Failed to create workspace.", "error", err)
		return nil, err
	}
	logger = logger.With("workspace", ws.Dir)

	pdf, err := w.convertIn(ctx, logger, ws, docx)
	if err != nil {
		ws.removeLogged(logger)
		return nil, err
	}
	w.removeAfter(ws, logger)
	return pdf, nil
}

// removeAfter schedules removal of ws once CleanupDelay has elapsed. Flush
// runs it early.
func (w *Worker) removeAfter(ws *Workspace, logger *slog.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removing.Add(1)
	w.pending[ws] = time.AfterFunc(w.config.CleanupDelay, func() {
		if w.claim(ws) {
			ws.removeLogged(logger)
			w.removing.Done()
		}
	})
}

// claim reports whether the caller won the right to remove ws.
func (w *Worker) claim(ws *Workspace) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[ws]; !ok {
		return false
	}
	delete(w.pending, ws)
	return true
}

// Flush removes every workspace still waiting for its delayed cleanup and
// waits for removals already in progress. Call it after the server drains.
func (w *Worker) Flush() {
	w.mu.Lock()
	due := make([]*Workspace, 0, len(w.pending))
	for ws, timer := range w.pending {
		timer.Stop()
		due = append(due, ws)
	}
	clear(w.pending)
	w.mu.Unlock()

	for _, ws := range due {
		ws.removeLogged(slog.Default())
		w.removing.Done()
	}
	w.removing.Wait()
}

func (w *Worker) convertIn(ctx context.Context, logger *slog.Logger, ws *Workspace, docx []byte) ([]byte, error) {
	inputPath, err := ws.WriteInput(inputFileName, docx)
	if err != nil {
		logger.Error("Failed to stage input.", "bytes", len(docx), "error", err)
		return nil, err
	}
	logger.Info("Staged input.", "bytes", len(docx))

	outputPath, err := w.engine.RenderToPDF(ctx, inputPath, ws.Dir, w.config.Timeout)
	if err != nil {
		logger.Error("Rendering failed.", "error", err, "listing", ws.Listing())
		return nil, err
	}

	pdf, err := os.ReadFile(outputPath)
	if err != nil {
		logger.Error("Failed to read output.", "path", outputPath, "error", err)
		return nil, fmt.Errorf("failed to read rendered PDF: %w", err)
	}
	if err := convert.CheckPDF(pdf, convert.KindInvalidOutput); err != nil {
		logger.Error("Rendered output failed verification.", "path", outputPath, "bytes", len(pdf), "error", err)
		return nil, err
	}

	logger.Info("Conversion complete.", "inputBytes", len(docx), "outputBytes", len(pdf), "output", outputPath)
	return pdf, nil
}

type loggerKey struct{}

// WithLogger attaches a request-scoped logger to ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
