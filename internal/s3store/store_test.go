package s3store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

// fakeS3 serves path-style requests for a single bucket and records every
// request it sees.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]string
	requests []*http.Request
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Clone(context.Background()))

	key := strings.TrimPrefix(r.URL.Path, "/docs/")
	switch r.Method {
	case http.MethodHead, http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			}
			return
		}
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.Header().Set("Last-Modified", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(body))
		}
	case http.MethodPut:
		w.Header().Set("ETag", `"0123456789abcdef"`)
		if r.Header.Get("X-Amz-Copy-Source") != "" {
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><CopyObjectResult><ETag>"0123456789abcdef"</ETag><LastModified>2026-01-02T03:04:05.000Z</LastModified></CopyObjectResult>`))
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, objects map[string]string) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: objects}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	s, err := New(Config{Endpoint: u.Host, AccessKey: "ak", SecretKey: "sk", Region: "us-east-1", Bucket: "docs"})
	require.NoError(t, err)
	return s, fake
}

func TestNew_RequiresEndpointAndBucket(t *testing.T) {
	_, err := New(Config{Bucket: "docs"})
	assert.Error(t, err)
	_, err = New(Config{Endpoint: "s3.example.com"})
	assert.Error(t, err)
}

func TestStore_ReadObject(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{"uploads/a.docx": "PK\x03\x04 docx body"})

	data, err := s.ReadObject(context.Background(), "uploads/a.docx")
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04 docx body", string(data))
}

func TestStore_ReadMissingObjectIsInvalidArgument(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{})

	_, err := s.ReadObject(context.Background(), "uploads/missing.docx")
	require.Error(t, err)
	assert.Equal(t, convert.KindInvalidArgument, convert.KindOf(err))
}

func TestStore_ReadRespectsLimit(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{"big.docx": strings.Repeat("x", 64)})
	s.maxRead = 10

	_, err := s.ReadObject(context.Background(), "big.docx")
	assert.Equal(t, convert.KindInvalidInput, convert.KindOf(err))
}

func TestStore_WriteObjectSetsContentType(t *testing.T) {
	s, fake := newTestStore(t, map[string]string{})

	require.NoError(t, s.WriteObject(context.Background(), "documents/converted_pdfs/a.pdf", []byte("%PDF-1.4"), convert.PDFContentType))

	require.NotEmpty(t, fake.requests)
	put := fake.requests[len(fake.requests)-1]
	assert.Equal(t, http.MethodPut, put.Method)
	assert.Equal(t, "/docs/documents/converted_pdfs/a.pdf", put.URL.Path)
	assert.Equal(t, convert.PDFContentType, put.Header.Get("Content-Type"))
}

func TestStore_MakePublicCopiesWithPublicACL(t *testing.T) {
	s, fake := newTestStore(t, map[string]string{"documents/converted_pdfs/a b.pdf": "%PDF-1.4"})

	u, err := s.MakePublic(context.Background(), "documents/converted_pdfs/a b.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u, "/docs/documents/converted_pdfs/a%20b.pdf"), u)

	var copyReq *http.Request
	for _, r := range fake.requests {
		if r.Header.Get("X-Amz-Copy-Source") != "" {
			copyReq = r
		}
	}
	require.NotNil(t, copyReq)
	assert.Equal(t, "public-read", copyReq.Header.Get("X-Amz-Acl"))
	assert.Equal(t, "REPLACE", copyReq.Header.Get("X-Amz-Metadata-Directive"))
}

func TestStore_SignedURL(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{})

	u, err := s.SignedURL(context.Background(), "documents/converted_pdfs/a.pdf", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "/docs/documents/converted_pdfs/a.pdf")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=3600")
}

func TestBuildPublicURL(t *testing.T) {
	s := &Store{host: "https://s3.example.com", bucket: "docs"}
	assert.Equal(t, "https://s3.example.com/docs/a/b%3Fc.pdf", s.buildPublicURL("a/b?c.pdf"))
}
