package worker

import (
	"fmt"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"
)

// ServerConfig is everything the docx-worker binary needs at startup.
type ServerConfig struct {
	Port        string
	SofficePath string
	Worker      Config
	Handler     HandlerOptions
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return ":" + c.Port
}

// LoadServerConfig parses command-line flags. Every flag defaults to its
// environment variable, which in turn defaults to the production value.
func LoadServerConfig(args []string) (ServerConfig, error) {
	defaults := DefaultConfig()

	timeout, err := envDuration("CONVERT_TIMEOUT", defaults.Timeout)
	if err != nil {
		return ServerConfig{}, err
	}
	cleanupDelay, err := envDuration("CLEANUP_DELAY", defaults.CleanupDelay)
	if err != nil {
		return ServerConfig{}, err
	}
	maxBody, err := envInt("MAX_UPLOAD_BYTES", 50<<20)
	if err != nil {
		return ServerConfig{}, err
	}
	maxConcurrent, err := envInt("MAX_CONCURRENT_CONVERSIONS", int(defaults.MaxConcurrent))
	if err != nil {
		return ServerConfig{}, err
	}
	rateLimit, err := envInt("CONVERT_RATE_LIMIT", 0)
	if err != nil {
		return ServerConfig{}, err
	}

	var cfg ServerConfig
	var maxConc int
	var maxBodyBytes int

	fs := flag.NewFlagSet("docx-worker", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", envString("PORT", "8080"), "port to listen on")
	fs.StringVar(&cfg.SofficePath, "soffice", envString("SOFFICE_PATH", "soffice"), "LibreOffice binary")
	fs.StringVar(&cfg.Worker.WorkspaceRoot, "workspace-root", envString("WORKSPACE_ROOT", ""), "directory for per-request workspaces (default: OS temp dir)")
	fs.DurationVar(&cfg.Worker.Timeout, "timeout", timeout, "hard timeout for one rendering subprocess")
	fs.DurationVar(&cfg.Worker.CleanupDelay, "cleanup-delay", cleanupDelay, "delay before removing a workspace after success")
	fs.IntVar(&maxConc, "max-concurrent", maxConcurrent, "maximum simultaneous conversions")
	fs.IntVar(&maxBodyBytes, "max-body", maxBody, "maximum upload size in bytes")
	fs.IntVar(&cfg.Handler.RateLimit, "rate-limit", rateLimit, "conversions per minute per client IP (0 disables)")

	if len(args) > 0 {
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}

	if cfg.Worker.Timeout <= 0 {
		return ServerConfig{}, fmt.Errorf("timeout must be positive, got %s", cfg.Worker.Timeout)
	}
	if maxConc <= 0 {
		return ServerConfig{}, fmt.Errorf("max-concurrent must be positive, got %d", maxConc)
	}
	cfg.Worker.MaxConcurrent = int64(maxConc)
	cfg.Worker.MinInputSize = defaults.MinInputSize
	cfg.Handler.MaxBodyBytes = int64(maxBodyBytes)
	return cfg, nil
}

func envString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}
