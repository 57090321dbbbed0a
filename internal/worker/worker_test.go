package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

// runnerFunc adapts a function to CommandRunner. It stands in for soffice by
// writing whatever files the test needs into the workspace.
type runnerFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	return f(ctx, dir, name, args...)
}

func minimalDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`,
		"word/document.xml":   `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>Warranty</w:t></w:r></w:p></w:body></w:document>`,
	}
	for name, content := range files {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writesOutput(name string, content []byte) runnerFunc {
	return func(_ context.Context, dir, _ string, _ ...string) ([]byte, error) {
		return []byte("convert input.docx -> " + name), os.WriteFile(filepath.Join(dir, name), content, 0o600)
	}
}

func newTestWorker(t *testing.T, runner CommandRunner, mutate func(*Config)) (*Worker, string) {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		Timeout:       5 * time.Second,
		WorkspaceRoot: root,
		CleanupDelay:  time.Millisecond,
		MaxConcurrent: 4,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	engine := &SofficeEngine{Binary: "soffice", Runner: runner, Candidates: DefaultOutputCandidates()}
	return New(engine, cfg), root
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func eventuallyEmptyDir(t *testing.T, dir string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		return err == nil && len(entries) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConvert_RejectsNonZipWithoutSubprocess(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(context.Context, string, string, ...string) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	})
	w, root := newTestWorker(t, runner, nil)

	inputs := map[string][]byte{
		"html":      bytes.Repeat([]byte("<html>"), 50),
		"pdf":       append([]byte("%PDF-1.4"), make([]byte, 200)...),
		"zeros":     make([]byte, 500),
		"lowercase": append([]byte("pk"), make([]byte, 200)...),
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := w.Convert(context.Background(), data)
			require.Error(t, err)
			assert.Equal(t, convert.KindInvalidInput, convert.KindOf(err))
			assert.Contains(t, err.Error(), "content starts with")
		})
	}

	assert.Zero(t, calls.Load())
	requireEmptyDir(t, root)
}

func TestConvert_RejectsUndersizedZip(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(context.Context, string, string, ...string) ([]byte, error) {
		calls.Add(1)
		return nil, nil
	})
	w, root := newTestWorker(t, runner, nil)

	_, err := w.Convert(context.Background(), []byte("PK\x03\x04 truncated"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, convert.ErrInvalidInput))
	assert.Contains(t, err.Error(), "too small")
	assert.Zero(t, calls.Load())
	requireEmptyDir(t, root)
}

func TestConvert_ProbesEveryCandidateName(t *testing.T) {
	for _, name := range []string{"output.pdf", "input.pdf", "input.docx.pdf"} {
		t.Run(name, func(t *testing.T) {
			want := []byte("%PDF-1.4 rendered as " + name)
			w, root := newTestWorker(t, writesOutput(name, want), nil)

			got, err := w.Convert(context.Background(), minimalDocx(t))
			require.NoError(t, err)
			assert.Equal(t, want, got)
			eventuallyEmptyDir(t, root)
		})
	}
}

func TestConvert_CandidateOrderIsConfigurable(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, dir, _ string, _ ...string) ([]byte, error) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "output.pdf"), []byte("%PDF-1.4 first"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "input.pdf"), []byte("%PDF-1.4 second"), 0o600))
		return nil, nil
	})
	root := t.TempDir()
	engine := &SofficeEngine{Binary: "soffice", Runner: runner, Candidates: []OutputCandidate{InputStem, FixedName("output.pdf")}}
	w := New(engine, Config{WorkspaceRoot: root, Timeout: time.Second, CleanupDelay: time.Millisecond})

	got, err := w.Convert(context.Background(), minimalDocx(t))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 second", string(got))
}

func TestConvert_MissingOutputReportsListing(t *testing.T) {
	w, root := newTestWorker(t, writesOutput("stray.log", []byte("javaldx: could not find a Java Runtime")), nil)

	_, err := w.Convert(context.Background(), minimalDocx(t))
	require.Error(t, err)
	assert.Equal(t, convert.KindOutputNotFound, convert.KindOf(err))
	assert.Contains(t, err.Error(), "input.docx (")
	assert.Contains(t, err.Error(), "stray.log (")
	assert.Contains(t, err.Error(), "output.pdf, input.pdf, input.docx.pdf")
	requireEmptyDir(t, root)
}

func TestConvert_RejectsInvalidOutput(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		wantMsg string
	}{
		{name: "zero bytes", content: nil, wantMsg: "empty"},
		{name: "not a pdf", content: []byte("Error: source file could not be loaded"), wantMsg: "not a PDF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, root := newTestWorker(t, writesOutput("output.pdf", tt.content), nil)

			got, err := w.Convert(context.Background(), minimalDocx(t))
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Equal(t, convert.KindInvalidOutput, convert.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
			requireEmptyDir(t, root)
		})
	}
}

func TestConvert_ConcurrentCallsUseDistinctWorkspaces(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	runner := runnerFunc(func(_ context.Context, dir, _ string, _ ...string) ([]byte, error) {
		mu.Lock()
		seen[dir]++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return nil, os.WriteFile(filepath.Join(dir, "input.pdf"), []byte("%PDF-1.4 "+filepath.Base(dir)), 0o600)
	})
	w, root := newTestWorker(t, runner, nil)
	docx := minimalDocx(t)

	const calls = 8
	var wg sync.WaitGroup
	results := make([][]byte, calls)
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = w.Convert(context.Background(), docx)
		}(i)
	}
	wg.Wait()

	for i := 0; i < calls; i++ {
		require.NoError(t, errs[i])
	}
	assert.Len(t, seen, calls)
	for dir, n := range seen {
		assert.Equal(t, 1, n, "workspace %s reused", dir)
	}
	unique := map[string]bool{}
	for _, r := range results {
		unique[string(r)] = true
	}
	assert.Len(t, unique, calls)
	eventuallyEmptyDir(t, root)
}

func TestConvert_TimeoutAbandonsEngine(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, dir, _ string, _ ...string) ([]byte, error) {
		select {
		case <-ctx.Done():
			_ = os.WriteFile(filepath.Join(dir, "output.pdf"), []byte("%PDF-1.4 partial"), 0o600)
			return []byte("killed"), ctx.Err()
		case <-time.After(10 * time.Second):
			return nil, nil
		}
	})
	w, root := newTestWorker(t, runner, func(c *Config) { c.Timeout = 100 * time.Millisecond })

	start := time.Now()
	_, err := w.Convert(context.Background(), minimalDocx(t))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, convert.KindConversionTimeout, convert.KindOf(err))
	assert.Less(t, elapsed, 3*time.Second)
	requireEmptyDir(t, root)
}

func TestConvert_EngineFailure(t *testing.T) {
	runner := runnerFunc(func(context.Context, string, string, ...string) ([]byte, error) {
		return []byte("Error: source file could not be loaded"), errors.New("exit status 1")
	})
	w, root := newTestWorker(t, runner, nil)

	_, err := w.Convert(context.Background(), minimalDocx(t))
	require.Error(t, err)
	assert.Equal(t, convert.KindUpstreamConversionFailed, convert.KindOf(err))
	assert.Contains(t, err.Error(), "could not be loaded")
	requireEmptyDir(t, root)
}

func TestConvert_CallerCancellationCleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := runnerFunc(func(ctx context.Context, _ string, _ string, _ ...string) ([]byte, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	w, root := newTestWorker(t, runner, nil)

	_, err := w.Convert(ctx, minimalDocx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	requireEmptyDir(t, root)
}

func TestConvert_WaitsForSlot(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := runnerFunc(func(_ context.Context, dir, _ string, _ ...string) ([]byte, error) {
		started <- struct{}{}
		<-release
		return nil, os.WriteFile(filepath.Join(dir, "output.pdf"), []byte("%PDF-1.4"), 0o600)
	})
	w, _ := newTestWorker(t, runner, func(c *Config) { c.MaxConcurrent = 1 })
	docx := minimalDocx(t)

	done := make(chan error, 1)
	go func() {
		_, err := w.Convert(context.Background(), docx)
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := w.Convert(ctx, docx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestSofficeEngine_Args(t *testing.T) {
	var got []string
	var gotName, gotDir string
	runner := runnerFunc(func(_ context.Context, dir, name string, args ...string) ([]byte, error) {
		gotName, gotDir, got = name, dir, args
		return nil, os.WriteFile(filepath.Join(dir, "input.pdf"), []byte("%PDF"), 0o600)
	})
	dir := t.TempDir()
	engine := &SofficeEngine{Binary: "/usr/bin/soffice", Runner: runner}

	out, err := engine.RenderToPDF(context.Background(), filepath.Join(dir, "input.docx"), dir, time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "input.pdf"), out)
	assert.Equal(t, "/usr/bin/soffice", gotName)
	assert.Equal(t, dir, gotDir)
	assert.Contains(t, got, "--headless")
	assert.Contains(t, got, pdfExportFilter)
	assert.Contains(t, got, filepath.Join(dir, "input.docx"))
	assert.Equal(t, filepath.Join(dir, "input.docx"), got[len(got)-1])
}

func TestWorker_FlushRemovesPendingWorkspaces(t *testing.T) {
	w, root := newTestWorker(t, writesOutput("output.pdf", []byte("%PDF-1.4 flushed")), func(c *Config) {
		c.CleanupDelay = time.Hour
	})

	for i := 0; i < 3; i++ {
		_, err := w.Convert(context.Background(), minimalDocx(t))
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "successful workspaces wait for the cleanup delay")

	w.Flush()
	requireEmptyDir(t, root)

	w.Flush()
}

func TestWorker_FlushAfterTimersFired(t *testing.T) {
	w, root := newTestWorker(t, writesOutput("output.pdf", []byte("%PDF-1.4 done")), nil)

	_, err := w.Convert(context.Background(), minimalDocx(t))
	require.NoError(t, err)
	eventuallyEmptyDir(t, root)

	done := make(chan struct{})
	go func() {
		w.Flush()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Flush blocked after every cleanup had already run")
	}
}
