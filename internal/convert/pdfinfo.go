package convert

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Cloud Functions have a read-only home directory; pdfcpu must not try to
// install its config file there.
func init() {
	api.DisableConfigDir()
}

// PageCount parses pdf with relaxed validation and returns its page count.
func PageCount(pdf []byte) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(pdf), cfg)
}
