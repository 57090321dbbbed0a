package worker

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

// OutputCandidate derives one plausible output file name from the input path.
// An empty result means the candidate does not apply.
type OutputCandidate func(inputPath string) string

// FixedName always proposes name.
func FixedName(name string) OutputCandidate {
	return func(string) string { return name }
}

// InputStem proposes the input base name with its extension replaced by .pdf
// ("input.docx" -> "input.pdf").
func InputStem(inputPath string) string {
	base := filepath.Base(inputPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".pdf"
}

// InputBase proposes the full input base name with .pdf appended
// ("input.docx" -> "input.docx.pdf").
func InputBase(inputPath string) string {
	return filepath.Base(inputPath) + ".pdf"
}

// DefaultOutputCandidates is the probing order used when none is configured.
// LibreOffice's naming differs across versions and filters, so the list is a
// guess and can be overridden per worker.
func DefaultOutputCandidates() []OutputCandidate {
	return []OutputCandidate{FixedName("output.pdf"), InputStem, InputBase}
}

// LocateOutput returns the first candidate that exists as a regular file in dir.
func LocateOutput(dir, inputPath string, candidates []OutputCandidate) (string, error) {
	tried := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		name := candidate(inputPath)
		if name == "" {
			continue
		}
		tried = append(tried, name)
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", convert.Errorf(convert.KindOutputNotFound,
		"no PDF output found (tried %s); workspace contains [%s]",
		strings.Join(tried, ", "), strings.Join(listDir(dir), ", "))
}
