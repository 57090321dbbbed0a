package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
	"github.com/Lllllllleong/docxconversionflow/internal/process"
)

// pdfExportFilter disables export of interactive form fields so that content
// controls render as plain text.
const pdfExportFilter = `pdf:writer_pdf_Export:{"ExportFormFields":{"type":"boolean","value":"false"}}`

// RenderingEngine converts the document at inputPath to a PDF inside
// outputDir and returns the path of the produced file.
type RenderingEngine interface {
	RenderToPDF(ctx context.Context, inputPath, outputDir string, timeout time.Duration) (string, error)
}

// CommandRunner abstracts command execution to enable testing without real subprocesses.
type CommandRunner interface {
	// Run executes name in dir and returns its combined stdout and stderr.
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner implements CommandRunner using os/exec. The child gets its own
// process group, which is killed as a whole when ctx ends.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the kill.
	WaitDelay time.Duration
}

func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	process.Isolate(cmd)
	cmd.Cancel = func() error {
		return process.KillGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 2 * time.Second
	}

	err := cmd.Run()
	return output.Bytes(), err
}

// SofficeEngine renders documents with LibreOffice in headless mode.
type SofficeEngine struct {
	Binary     string
	Runner     CommandRunner
	Candidates []OutputCandidate
}

// NewSofficeEngine creates a SofficeEngine with a real command runner and the
// default output probing order.
func NewSofficeEngine(binary string) *SofficeEngine {
	if binary == "" {
		binary = "soffice"
	}
	return &SofficeEngine{
		Binary:     binary,
		Runner:     &ExecRunner{},
		Candidates: DefaultOutputCandidates(),
	}
}

func (e *SofficeEngine) args(inputPath, outputDir string) []string {
	profile := "file://" + filepath.ToSlash(filepath.Join(outputDir, "profile"))
	return []string{
		"--headless",
		"--norestore",
		"--nolockcheck",
		"-env:UserInstallation=" + profile,
		"--convert-to", pdfExportFilter,
		"--outdir", outputDir,
		inputPath,
	}
}

// RenderToPDF runs soffice with a hard timeout, then searches outputDir for the
// produced PDF. The engine's combined output is logged on every outcome.
func (e *SofficeEngine) RenderToPDF(ctx context.Context, inputPath, outputDir string, timeout time.Duration) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := e.args(inputPath, outputDir)
	logger := loggerFrom(ctx).With("command", e.Binary+" "+strings.Join(args, " "), "workspace", outputDir)

	start := time.Now()
	output, err := e.Runner.Run(runCtx, outputDir, e.Binary, args...)
	elapsed := time.Since(start)
	logger.Info("Rendering engine exited.", "elapsed", elapsed.String(), "output", string(output), "error", err)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", convert.Errorf(convert.KindConversionTimeout, "rendering engine exceeded %s", timeout)
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("rendering abandoned: %w", ctx.Err())
	}
	if err != nil {
		return "", convert.Wrap(convert.KindUpstreamConversionFailed, err,
			fmt.Sprintf("rendering engine failed, output %s", convert.Excerpt(output)))
	}

	candidates := e.Candidates
	if len(candidates) == 0 {
		candidates = DefaultOutputCandidates()
	}
	path, err := LocateOutput(outputDir, inputPath, candidates)
	if err != nil {
		logger.Error("Rendering engine produced no recognizable output.", "error", err)
		return "", err
	}
	return path, nil
}
