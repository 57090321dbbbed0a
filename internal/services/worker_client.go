package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

const maxWorkerResponseBytes = 200 << 20

// WorkerClient forwards documents to a conversion worker's POST /convert.
type WorkerClient struct {
	endpoint    string
	httpClient  *http.Client
	maxResponse int64
}

// NewWorkerClient targets baseURL. timeout must exceed the worker's own
// rendering budget so its timeout errors arrive intact.
func NewWorkerClient(baseURL string, timeout time.Duration) *WorkerClient {
	return &WorkerClient{
		endpoint:    strings.TrimRight(baseURL, "/") + "/convert",
		httpClient:  &http.Client{Timeout: timeout},
		maxResponse: maxWorkerResponseBytes,
	}
}

// Convert posts docx and returns the worker's PDF. Any non-PDF answer is
// UpstreamConversionFailed carrying the worker's error text.
func (c *WorkerClient) Convert(ctx context.Context, docx []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(docx))
	if err != nil {
		return nil, fmt.Errorf("failed to build worker request: %w", err)
	}
	req.Header.Set("Content-Type", convert.DocxContentType)
	req.Header.Set("Accept", convert.PDFContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, convert.Wrap(convert.KindUpstreamConversionFailed, err, "conversion worker request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse+1))
	if err != nil {
		return nil, convert.Wrap(convert.KindUpstreamConversionFailed, err, "failed to read conversion worker response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, convert.Errorf(convert.KindUpstreamConversionFailed,
			"conversion worker returned %d: %s", resp.StatusCode, workerErrorText(body))
	}
	if int64(len(body)) > c.maxResponse {
		return nil, convert.Errorf(convert.KindUpstreamConversionFailed,
			"conversion worker response exceeds %d bytes", c.maxResponse)
	}
	if err := convert.CheckPDF(body, convert.KindUpstreamConversionFailed); err != nil {
		return nil, err
	}
	return body, nil
}

// workerErrorText extracts the message from the worker's JSON error body,
// falling back to an excerpt of whatever was sent.
func workerErrorText(body []byte) string {
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		if payload.Kind != "" {
			return payload.Kind + ": " + payload.Error
		}
		return payload.Error
	}
	if len(body) == 0 {
		return "empty response"
	}
	return convert.Excerpt(body)
}
