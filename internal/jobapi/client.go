// Package jobapi converts documents through a hosted asynchronous conversion
// job API (CloudConvert v2 job semantics): submit a three-task job, poll it to
// a terminal status, then download the exported file.
package jobapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

// DefaultBaseURL is the public CloudConvert v2 endpoint.
const DefaultBaseURL = "https://api.cloudconvert.com/v2"

const (
	opImportBase64 = "import/base64"
	opConvert      = "convert"
	opExportURL    = "export/url"

	maxDownloadBytes = 200 << 20
	maxResponseBytes = 1 << 20
)

// Status is a job's lifecycle state as reported by the API.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
	StatusFinished   Status = "finished"
	StatusError      Status = "error"
)

// Terminal reports whether polling can stop.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// Job is the subset of a job resource the orchestrator reads.
type Job struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Tasks   []Task `json:"tasks"`
}

// Task is one step of a job.
type Task struct {
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name"`
	Operation string      `json:"operation"`
	Status    Status      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Result    *TaskResult `json:"result,omitempty"`
}

// TaskResult lists the files a task produced.
type TaskResult struct {
	Files []ResultFile `json:"files"`
}

// ResultFile is a downloadable file produced by an export task.
type ResultFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type jobEnvelope struct {
	Data Job `json:"data"`
}

// Client talks to the job API over HTTP with bearer authentication.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxDownload int64
	maxResponse int64
}

// NewClient creates a Client. A nil httpClient gets a 30s timeout client.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		httpClient:  httpClient,
		maxDownload: maxDownloadBytes,
		maxResponse: maxResponseBytes,
	}
}

// CreateJob submits import (inline base64), convert (LibreOffice engine) and
// export-to-URL tasks for docx.
func (c *Client) CreateJob(ctx context.Context, docx []byte, filename string) (*Job, error) {
	payload := map[string]any{
		"tasks": map[string]any{
			"import-docx": map[string]any{
				"operation": opImportBase64,
				"file":      base64.StdEncoding.EncodeToString(docx),
				"filename":  filename,
			},
			"convert-pdf": map[string]any{
				"operation":     opConvert,
				"input":         "import-docx",
				"input_format":  "docx",
				"output_format": "pdf",
				"engine":        "libreoffice",
			},
			"export-pdf": map[string]any{
				"operation": opExportURL,
				"input":     "convert-pdf",
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job request: %w", err)
	}

	var env jobEnvelope
	if err := c.do(ctx, http.MethodPost, "/jobs", body, &env); err != nil {
		return nil, err
	}
	if env.Data.ID == "" {
		return nil, convert.Errorf(convert.KindUpstreamConversionFailed, "job API returned no job id")
	}
	return &env.Data, nil
}

// GetJob reads the current state of job id.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var env jobEnvelope
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// Download fetches an exported file. Export URLs are pre-signed, so no
// credentials are sent.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, convert.Wrap(convert.KindUpstreamConversionFailed, err, "failed to download converted file")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, convert.Wrap(convert.KindUpstreamConversionFailed, err, "failed to read converted file")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, convert.Errorf(convert.KindUpstreamConversionFailed,
			"download of converted file returned %d: %s", resp.StatusCode, convert.Excerpt(data))
	}
	if int64(len(data)) > c.maxDownload {
		return nil, convert.Errorf(convert.KindInvalidOutput, "converted file exceeds %d bytes", c.maxDownload)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build job API request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return convert.Wrap(convert.KindUpstreamConversionFailed, err, fmt.Sprintf("job API %s %s", method, path))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse+1))
	if err != nil {
		return convert.Wrap(convert.KindUpstreamConversionFailed, err, "failed to read job API response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return convert.Errorf(convert.KindUpstreamConversionFailed,
			"job API %s %s returned %d: %s", method, path, resp.StatusCode, convert.Excerpt(respBody))
	}
	if int64(len(respBody)) > c.maxResponse {
		return convert.Errorf(convert.KindUpstreamConversionFailed,
			"job API %s %s response exceeds %d bytes", method, path, c.maxResponse)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return convert.Wrap(convert.KindUpstreamConversionFailed, err, "failed to decode job API response")
	}
	return nil
}
