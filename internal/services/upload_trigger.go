package services

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/Lllllllleong/docxconversionflow/internal/models"
)

// Processor is the gateway operation the upload trigger delegates to.
type Processor interface {
	Process(ctx context.Context, req models.ConvertRequest) (*models.ConvertResponse, error)
}

// UploadTriggerFunction converts .docx files as they land in the bucket.
type UploadTriggerFunction struct {
	gateway Processor
	bucket  string
	prefix  string
}

// NewUploadTriggerFunction wires a trigger to gateway, watching bucket/prefix.
func NewUploadTriggerFunction(gateway Processor, bucket, prefix string) *UploadTriggerFunction {
	return &UploadTriggerFunction{gateway: gateway, bucket: bucket, prefix: prefix}
}

// NewUploadTrigger builds the trigger and its worker-backed gateway from the
// environment.
func NewUploadTrigger(ctx context.Context) (*UploadTriggerFunction, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	gateway, err := NewConvertGateway(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Upload trigger initialized.", "bucket", cfg.Bucket, "prefix", cfg.UploadPrefix)
	return NewUploadTriggerFunction(gateway, cfg.Bucket, cfg.UploadPrefix), nil
}

// Process converts e's object when it is a .docx under the watched prefix.
// Anything else is skipped without error.
func (f *UploadTriggerFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if !f.accepts(e) {
		logCtx.Info("Skipping object outside the upload area.")
		return nil
	}

	base := path.Base(e.Name)
	hint := base[:len(base)-len(path.Ext(base))]
	resp, err := f.gateway.Process(ctx, models.ConvertRequest{StoragePath: e.Name, OutputFileName: hint})
	if err != nil {
		logCtx.Error("Uploaded document conversion failed.", "error", err)
		return err
	}
	logCtx.Info("Uploaded document converted.", "pdfPath", resp.PDFPath, "pdfSize", resp.PDFSize)
	return nil
}

func (f *UploadTriggerFunction) accepts(e models.GCSEvent) bool {
	if f.bucket != "" && e.Bucket != f.bucket {
		return false
	}
	if !strings.HasPrefix(e.Name, f.prefix) || strings.HasSuffix(e.Name, "/") {
		return false
	}
	return strings.EqualFold(path.Ext(e.Name), ".docx")
}
