package jobapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

// API is the job API surface the Orchestrator drives. *Client implements it.
type API interface {
	CreateJob(ctx context.Context, docx []byte, filename string) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
}

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes polling. The total budget is PollInterval * MaxAttempts.
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	Sleep        SleepFunc
	// Filename is the name the document is submitted under.
	Filename string
}

// Orchestrator converts DOCX to PDF through the job API.
type Orchestrator struct {
	api  API
	opts Options
}

// NewOrchestrator fills unset options with 1s x 60 attempts and a real sleep.
func NewOrchestrator(api API, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 60
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Filename == "" {
		opts.Filename = "document.docx"
	}
	return &Orchestrator{api: api, opts: opts}
}

// Convert submits docx, polls the job at a fixed cadence until it finishes,
// fails, or the attempt budget runs out, then downloads and verifies the PDF.
// A job in error is terminal and is never polled again.
func (o *Orchestrator) Convert(ctx context.Context, docx []byte) ([]byte, error) {
	if err := convert.CheckZipSignature(docx); err != nil {
		return nil, err
	}

	job, err := o.api.CreateJob(ctx, docx, o.opts.Filename)
	if err != nil {
		slog.Error("Failed to submit conversion job.", "bytes", len(docx), "error", err)
		return nil, err
	}
	logger := slog.With("jobId", job.ID)
	logger.Info("Submitted conversion job.", "bytes", len(docx))

	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		current, err := o.api.GetJob(ctx, job.ID)
		if err != nil {
			logger.Error("Failed to poll conversion job.", "attempt", attempt, "error", err)
			return nil, err
		}

		switch current.Status {
		case StatusFinished:
			logger.Info("Conversion job finished.", "attempt", attempt)
			return o.download(ctx, logger, current)
		case StatusError:
			msg := failureMessage(current)
			logger.Error("Conversion job failed.", "attempt", attempt, "message", msg)
			return nil, convert.Errorf(convert.KindUpstreamConversionFailed, "conversion job %s failed: %s", job.ID, msg)
		}

		if attempt < o.opts.MaxAttempts {
			if err := o.opts.Sleep(ctx, o.opts.PollInterval); err != nil {
				return nil, err
			}
		}
	}

	budget := o.opts.PollInterval * time.Duration(o.opts.MaxAttempts)
	logger.Error("Conversion job did not finish in time.", "attempts", o.opts.MaxAttempts, "budget", budget.String())
	return nil, convert.Errorf(convert.KindConversionTimeout,
		"conversion job %s exceeded its %s budget (%d status checks)", job.ID, budget, o.opts.MaxAttempts)
}

func (o *Orchestrator) download(ctx context.Context, logger *slog.Logger, job *Job) ([]byte, error) {
	fileURL := ExportURL(job)
	if fileURL == "" {
		return nil, convert.Errorf(convert.KindExportURLMissing, "conversion job %s finished without an export URL", job.ID)
	}

	pdf, err := o.api.Download(ctx, fileURL)
	if err != nil {
		logger.Error("Failed to download converted PDF.", "error", err)
		return nil, err
	}
	if err := convert.CheckPDF(pdf, convert.KindInvalidOutput); err != nil {
		logger.Error("Downloaded file failed verification.", "bytes", len(pdf), "error", err)
		return nil, err
	}
	logger.Info("Downloaded converted PDF.", "bytes", len(pdf))
	return pdf, nil
}

// ExportURL returns the first file URL of the export task. Tasks are searched
// by operation because the API does not guarantee their order.
func ExportURL(job *Job) string {
	for _, task := range job.Tasks {
		if task.Operation != opExportURL || task.Result == nil {
			continue
		}
		for _, f := range task.Result.Files {
			if f.URL != "" {
				return f.URL
			}
		}
	}
	return ""
}

func failureMessage(job *Job) string {
	if job.Message != "" {
		return job.Message
	}
	for _, task := range job.Tasks {
		if task.Status == StatusError && task.Message != "" {
			return task.Name + ": " + task.Message
		}
	}
	return "job API reported an error without a message"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
