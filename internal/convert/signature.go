// Package convert holds the pieces shared by every DOCX to PDF conversion path:
// the error taxonomy, the ZIP and PDF signature gates, and PDF inspection.
package convert

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

const (
	// DocxContentType is the media type of an Office Open XML word-processing document.
	DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	// PDFContentType is the media type of a PDF document.
	PDFContentType = "application/pdf"

	// MinDocxSize is the smallest upload considered a plausible DOCX.
	MinDocxSize = 100

	// DefaultRenderTimeout is the worker's default budget for one rendering
	// subprocess. Callers of the worker must wait longer than this.
	DefaultRenderTimeout = 50 * time.Second

	excerptLen = 64
)

var (
	zipSignature = []byte("PK")
	pdfSignature = []byte("%PDF")
)

// HasZipSignature reports whether data starts with the ZIP local file header magic.
func HasZipSignature(data []byte) bool {
	return bytes.HasPrefix(data, zipSignature)
}

// HasPDFSignature reports whether data starts with %PDF.
func HasPDFSignature(data []byte) bool {
	return bytes.HasPrefix(data, pdfSignature)
}

// CheckDocx rejects buffers shorter than minSize or not starting with PK.
// Both failures are KindInvalidInput. The signature failure carries an excerpt
// of the rejected bytes.
func CheckDocx(data []byte, minSize int) error {
	if len(data) < minSize {
		return Errorf(KindInvalidInput, "document too small: %d bytes, need at least %d", len(data), minSize)
	}
	return CheckZipSignature(data)
}

// CheckZipSignature rejects buffers not starting with PK.
func CheckZipSignature(data []byte) error {
	if !HasZipSignature(data) {
		return Errorf(KindInvalidInput, "not a DOCX (ZIP) document, content starts with %s", Excerpt(data))
	}
	return nil
}

// CheckPDF rejects empty buffers and buffers not starting with %PDF, reporting kind.
func CheckPDF(data []byte, kind Kind) error {
	if len(data) == 0 {
		return Errorf(kind, "PDF output is empty")
	}
	if !HasPDFSignature(data) {
		return Errorf(kind, "output is not a PDF, content starts with %s", Excerpt(data))
	}
	return nil
}

// Excerpt returns a quoted prefix of data suitable for error messages and logs.
func Excerpt(data []byte) string {
	if len(data) > excerptLen {
		return fmt.Sprintf("%s (+%d bytes)", strconv.Quote(string(data[:excerptLen])), len(data)-excerptLen)
	}
	return strconv.Quote(string(data))
}
