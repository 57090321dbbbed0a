package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
	"github.com/Lllllllleong/docxconversionflow/internal/gcp"
	"github.com/Lllllllleong/docxconversionflow/internal/jobapi"
	"github.com/Lllllllleong/docxconversionflow/internal/s3store"
)

// DefaultWorkerURL is used when neither the environment nor remote config
// names a worker.
const DefaultWorkerURL = "http://localhost:8080"

const (
	BackendGCS = "gcs"
	BackendS3  = "s3"
)

// Config is everything the conversion functions read from the environment.
type Config struct {
	ProjectID      string
	StorageBackend string
	Bucket         string
	Gateway        GatewayConfig

	// WorkerURL overrides remote config when set.
	WorkerURL              string
	WorkerTimeout          time.Duration
	RemoteConfigCollection string
	RemoteConfigDocument   string

	JobAPIBaseURL   string
	JobAPIKey       string
	JobPollInterval time.Duration
	JobPollAttempts int

	S3           s3store.Config
	UploadPrefix string
}

// LoadConfig reads and validates Config.
func LoadConfig() (Config, error) {
	cfg := Config{
		ProjectID:              gcp.GetEnv("PROJECT_ID", ""),
		StorageBackend:         strings.ToLower(gcp.GetEnv("STORAGE_BACKEND", BackendGCS)),
		Bucket:                 gcp.GetEnv("STORAGE_BUCKET", ""),
		WorkerURL:              strings.TrimSpace(gcp.GetEnv("WORKER_URL", "")),
		RemoteConfigCollection: gcp.GetEnv("REMOTE_CONFIG_COLLECTION", "config"),
		RemoteConfigDocument:   gcp.GetEnv("REMOTE_CONFIG_DOCUMENT", "docxConversion"),
		JobAPIBaseURL:          gcp.GetEnv("JOB_API_BASE_URL", jobapi.DefaultBaseURL),
		JobAPIKey:              gcp.GetEnv("JOB_API_KEY", ""),
	}
	cfg.Gateway.Area = gcp.GetEnv("PDF_AREA", "documents")

	var err error
	if cfg.Gateway.SignedURLTTL, err = durationEnv("SIGNED_URL_TTL", 7*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.Gateway.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.WorkerTimeout, err = durationEnv("WORKER_TIMEOUT", 60*time.Second); err != nil {
		return cfg, err
	}
	if cfg.JobPollInterval, err = durationEnv("JOB_POLL_INTERVAL", time.Second); err != nil {
		return cfg, err
	}
	if cfg.JobPollAttempts, err = intEnv("JOB_POLL_ATTEMPTS", 60); err != nil {
		return cfg, err
	}
	maxDownload, err := intEnv("MAX_DOWNLOAD_BYTES", 50<<20)
	if err != nil {
		return cfg, err
	}
	cfg.Gateway.MaxDownloadBytes = int64(maxDownload)

	useSSL, err := strconv.ParseBool(gcp.GetEnv("S3_USE_SSL", "true"))
	if err != nil {
		return cfg, fmt.Errorf("S3_USE_SSL: %w", err)
	}
	cfg.S3 = s3store.Config{
		Endpoint:  gcp.GetEnv("S3_ENDPOINT", ""),
		AccessKey: gcp.GetEnv("S3_ACCESS_KEY", ""),
		SecretKey: gcp.GetEnv("S3_SECRET_KEY", ""),
		Region:    gcp.GetEnv("S3_REGION", ""),
		Bucket:    cfg.Bucket,
		UseSSL:    useSSL,
		MaxRead:   cfg.Gateway.MaxDownloadBytes,
	}
	cfg.UploadPrefix = gcp.GetEnv("UPLOAD_PREFIX", cfg.Gateway.Area+"/uploads/")

	if cfg.Bucket == "" {
		return cfg, fmt.Errorf("STORAGE_BUCKET environment variable must be set")
	}
	if cfg.StorageBackend != BackendGCS && cfg.StorageBackend != BackendS3 {
		return cfg, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendGCS, BackendS3, cfg.StorageBackend)
	}
	if cfg.WorkerTimeout <= 0 || cfg.Gateway.FetchTimeout <= 0 || cfg.JobPollInterval <= 0 || cfg.JobPollAttempts <= 0 {
		return cfg, fmt.Errorf("timeouts and poll settings must be positive")
	}
	if cfg.WorkerTimeout <= convert.DefaultRenderTimeout {
		return cfg, fmt.Errorf("WORKER_TIMEOUT must exceed the worker's %s render budget, got %s",
			convert.DefaultRenderTimeout, cfg.WorkerTimeout)
	}
	return cfg, nil
}

// RemoteConfig supplies the worker URL from a managed config store.
type RemoteConfig interface {
	WorkerURL(ctx context.Context) (string, error)
}

// ResolveWorkerURL applies the precedence override > remote > DefaultWorkerURL.
// A remote lookup failure is logged and falls through to the default.
func ResolveWorkerURL(ctx context.Context, override string, remote RemoteConfig) string {
	if u := strings.TrimSpace(override); u != "" {
		return u
	}
	if remote != nil {
		u, err := remote.WorkerURL(ctx)
		switch {
		case err != nil:
			slog.Warn("Remote config lookup failed, using default worker URL.", "error", err)
		case strings.TrimSpace(u) != "":
			return strings.TrimSpace(u)
		}
	}
	return DefaultWorkerURL
}

// NewConvertGateway builds the worker-backed gateway from the environment.
func NewConvertGateway(ctx context.Context) (*ConvertGatewayFunction, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var remote RemoteConfig
	if cfg.WorkerURL == "" && cfg.ProjectID != "" {
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		defer client.Close()
		remote = gcp.NewFirestoreConfig(client, cfg.RemoteConfigCollection, cfg.RemoteConfigDocument)
	}
	workerURL := ResolveWorkerURL(ctx, cfg.WorkerURL, remote)

	f := NewGateway(NewWorkerClient(workerURL, cfg.WorkerTimeout), store, nil, cfg.Gateway)
	slog.Info("Conversion gateway initialized.", "workerUrl", workerURL, "storageBackend", cfg.StorageBackend, "bucket", cfg.Bucket)
	return f, nil
}

// NewCloudConvertGateway builds the job-API-backed gateway from the environment.
func NewCloudConvertGateway(ctx context.Context) (*ConvertGatewayFunction, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.JobAPIKey == "" {
		return nil, fmt.Errorf("JOB_API_KEY environment variable must be set")
	}
	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := jobapi.NewClient(cfg.JobAPIBaseURL, cfg.JobAPIKey, &http.Client{Timeout: 30 * time.Second})
	orchestrator := jobapi.NewOrchestrator(client, jobapi.Options{
		PollInterval: cfg.JobPollInterval,
		MaxAttempts:  cfg.JobPollAttempts,
	})

	f := NewGateway(orchestrator, store, nil, cfg.Gateway)
	slog.Info("Job API conversion gateway initialized.", "jobApi", cfg.JobAPIBaseURL, "storageBackend", cfg.StorageBackend, "bucket", cfg.Bucket)
	return f, nil
}

func newObjectStore(ctx context.Context, cfg Config) (ObjectStore, error) {
	switch cfg.StorageBackend {
	case BackendS3:
		return s3store.New(cfg.S3)
	default:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		return gcp.NewBucketStore(client, cfg.Bucket, cfg.Gateway.MaxDownloadBytes), nil
	}
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
