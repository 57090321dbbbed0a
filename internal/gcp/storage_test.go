package gcp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("DOCX_TEST_SET", "value")
	t.Setenv("DOCX_TEST_EMPTY", "")

	assert.Equal(t, "value", GetEnv("DOCX_TEST_SET", "fallback"))
	assert.Equal(t, "", GetEnv("DOCX_TEST_EMPTY", "fallback"), "an explicitly empty variable is kept")
	assert.Equal(t, "fallback", GetEnv("DOCX_TEST_UNSET_VARIABLE", "fallback"))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t,
		"https://storage.googleapis.com/my-bucket/documents/converted_pdfs/report%201.pdf",
		PublicURL("my-bucket", "documents/converted_pdfs/report 1.pdf"))
}

func TestIsPermissionDenied(t *testing.T) {
	forbidden := &googleapi.Error{Code: 403, Message: "iam.serviceAccounts.signBlob denied"}

	assert.True(t, IsPermissionDenied(forbidden))
	assert.True(t, IsPermissionDenied(fmt.Errorf("signing: %w", forbidden)))
	assert.False(t, IsPermissionDenied(&googleapi.Error{Code: 404}))
	assert.False(t, IsPermissionDenied(errors.New("boom")))
}
