package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
	"github.com/Lllllllleong/docxconversionflow/internal/gcp"
	"github.com/Lllllllleong/docxconversionflow/internal/models"
)

// Converter turns DOCX bytes into verified PDF bytes. WorkerClient and
// jobapi.Orchestrator implement it.
type Converter interface {
	Convert(ctx context.Context, docx []byte) ([]byte, error)
}

// ObjectStore is the durable store the gateway reads sources from and writes
// PDFs to. gcp.BucketStore and s3store.Store implement it.
type ObjectStore interface {
	ReadObject(ctx context.Context, objectPath string) ([]byte, error)
	WriteObject(ctx context.Context, objectPath string, data []byte, contentType string) error
	SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	MakePublic(ctx context.Context, objectPath string) (string, error)
}

// GatewayConfig holds the gateway's per-request tunables.
type GatewayConfig struct {
	// Area namespaces stored PDFs: <Area>/converted_pdfs/<name>.pdf.
	Area             string
	SignedURLTTL     time.Duration
	FetchTimeout     time.Duration
	MaxDownloadBytes int64
}

// ConvertGatewayFunction resolves a source document, converts it, stores the
// PDF and returns a retrievable reference.
type ConvertGatewayFunction struct {
	converter  Converter
	store      ObjectStore
	httpClient *http.Client
	config     GatewayConfig
	now        func() time.Time
}

// NewGateway wires a gateway from its collaborators. A nil httpClient uses
// http.DefaultClient; FetchTimeout bounds each source download.
func NewGateway(converter Converter, store ObjectStore, httpClient *http.Client, config GatewayConfig) *ConvertGatewayFunction {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if config.Area == "" {
		config.Area = "documents"
	}
	if config.SignedURLTTL <= 0 {
		config.SignedURLTTL = 7 * 24 * time.Hour
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}
	if config.MaxDownloadBytes <= 0 {
		config.MaxDownloadBytes = 50 << 20
	}
	return &ConvertGatewayFunction{
		converter:  converter,
		store:      store,
		httpClient: httpClient,
		config:     config,
		now:        time.Now,
	}
}

// Process runs one conversion. When both StoragePath and DocxURL are set the
// storage path is used and the URL ignored.
func (f *ConvertGatewayFunction) Process(ctx context.Context, req models.ConvertRequest) (*models.ConvertResponse, error) {
	logCtx := slog.With("storagePath", req.StoragePath, "docxUrl", req.DocxURL, "outputFileName", req.OutputFileName)
	logCtx.Info("Processing conversion request.")

	docx, err := f.resolveSource(ctx, logCtx, req)
	if err != nil {
		logCtx.Error("Failed to resolve source document.", "error", err)
		return nil, err
	}
	logCtx.Info("Resolved source document.", "bytes", len(docx))

	start := time.Now()
	pdf, err := f.converter.Convert(ctx, docx)
	if err != nil {
		logCtx.Error("Conversion failed.", "bytes", len(docx), "error", err)
		return nil, err
	}
	if err := convert.CheckPDF(pdf, convert.KindUpstreamConversionFailed); err != nil {
		logCtx.Error("Converter returned an invalid PDF.", "error", err)
		return nil, err
	}
	logCtx.Info("Converted document.", "pdfBytes", len(pdf), "duration", time.Since(start).String())

	pdfPath := f.outputPath(req.OutputFileName)
	logCtx = logCtx.With("pdfPath", pdfPath)
	if err := f.store.WriteObject(ctx, pdfPath, pdf, convert.PDFContentType); err != nil {
		logCtx.Error("Failed to store PDF.", "error", err)
		return nil, err
	}

	pdfURL, err := f.retrievalURL(ctx, logCtx, pdfPath)
	if err != nil {
		return nil, err
	}

	resp := &models.ConvertResponse{PDFURL: pdfURL, PDFPath: pdfPath, PDFSize: len(pdf)}
	if pages, err := convert.PageCount(pdf); err != nil {
		logCtx.Warn("Could not count PDF pages.", "error", err)
	} else {
		resp.PDFPages = pages
	}
	logCtx.Info("Conversion stored.", "pdfSize", resp.PDFSize, "pdfPages", resp.PDFPages)
	return resp, nil
}

func (f *ConvertGatewayFunction) resolveSource(ctx context.Context, logCtx *slog.Logger, req models.ConvertRequest) ([]byte, error) {
	storagePath := strings.TrimSpace(req.StoragePath)
	docxURL := strings.TrimSpace(req.DocxURL)

	var (
		data []byte
		err  error
	)
	switch {
	case storagePath != "":
		if docxURL != "" {
			logCtx.Warn("Both storagePath and docxUrl supplied; using storagePath.")
		}
		data, err = f.store.ReadObject(ctx, storagePath)
	case docxURL != "":
		data, err = f.fetchURL(ctx, docxURL)
	default:
		return nil, convert.Errorf(convert.KindInvalidArgument, "either docxUrl or storagePath must be provided")
	}
	if err != nil {
		return nil, err
	}
	if err := convert.CheckZipSignature(data); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *ConvertGatewayFunction) fetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, convert.Errorf(convert.KindInvalidArgument, "docxUrl must be an absolute http(s) URL")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, convert.Wrap(convert.KindInvalidInput, err, "could not download source document")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, convert.Errorf(convert.KindInvalidInput, "could not download source document: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxDownloadBytes+1))
	if err != nil {
		return nil, convert.Wrap(convert.KindInvalidInput, err, "could not read source document")
	}
	if int64(len(data)) > f.config.MaxDownloadBytes {
		return nil, convert.Errorf(convert.KindInvalidInput, "source document exceeds %d bytes", f.config.MaxDownloadBytes)
	}
	return data, nil
}

// retrievalURL prefers a signed URL and falls back to a public one.
func (f *ConvertGatewayFunction) retrievalURL(ctx context.Context, logCtx *slog.Logger, pdfPath string) (string, error) {
	signed, signErr := f.store.SignedURL(ctx, pdfPath, f.config.SignedURLTTL)
	if signErr == nil {
		return signed, nil
	}
	logCtx.Warn("Could not sign URL, falling back to public access.",
		"permissionDenied", gcp.IsPermissionDenied(signErr), "error", signErr)

	public, pubErr := f.store.MakePublic(ctx, pdfPath)
	if pubErr == nil {
		return public, nil
	}
	err := convert.Wrap(convert.KindStorageAccessError, errors.Join(signErr, pubErr),
		"stored PDF but could not produce a retrievable URL")
	logCtx.Error("Failed to obtain a URL for the stored PDF.", "error", err)
	return "", err
}

func (f *ConvertGatewayFunction) outputPath(hint string) string {
	name := sanitizeName(hint)
	if name == "" {
		name = fmt.Sprintf("converted_%d", f.now().UnixMilli())
	}
	return path.Join(f.config.Area, "converted_pdfs", name+".pdf")
}

// sanitizeName keeps the last path element of hint and drops a .pdf or .docx
// extension.
func sanitizeName(hint string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(hint), `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	for _, ext := range []string{".pdf", ".docx"} {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			name = name[:len(name)-len(ext)]
		}
	}
	return strings.TrimSpace(name)
}
