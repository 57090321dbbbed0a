package convert

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDocx(t *testing.T) {
	valid := append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0}, 200)...)

	tests := []struct {
		name     string
		data     []byte
		wantKind Kind
		wantMsg  string
	}{
		{name: "valid zip", data: valid},
		{name: "empty", data: nil, wantKind: KindInvalidInput, wantMsg: "too small"},
		{name: "short buffer with PK prefix", data: []byte("PK\x03\x04short"), wantKind: KindInvalidInput, wantMsg: "too small"},
		{name: "html page", data: bytes.Repeat([]byte("<html>"), 40), wantKind: KindInvalidInput, wantMsg: "<html>"},
		{name: "pdf instead of docx", data: append([]byte("%PDF-1.7"), bytes.Repeat([]byte{0}, 200)...), wantKind: KindInvalidInput, wantMsg: "%PDF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDocx(tt.data, MinDocxSize)
			if tt.wantKind == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestCheckPDF(t *testing.T) {
	assert.NoError(t, CheckPDF([]byte("%PDF-1.4 body"), KindInvalidOutput))

	err := CheckPDF(nil, KindInvalidOutput)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOutput))
	assert.Contains(t, err.Error(), "empty")

	err = CheckPDF([]byte(`{"error":"boom"}`), KindUpstreamConversionFailed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamConversionFailed))
	assert.Contains(t, err.Error(), "boom")
}

func TestError_KindSurvivesWrapping(t *testing.T) {
	base := Wrap(KindStorageAccessError, errors.New("403 forbidden"), "sign url")
	wrapped := fmt.Errorf("persist: %w", base)

	assert.Equal(t, KindStorageAccessError, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrStorageAccess))
	assert.False(t, errors.Is(wrapped, ErrInvalidInput))
	assert.Equal(t, "sign url: 403 forbidden", Message(wrapped))
	assert.Equal(t, "StorageAccessError: sign url: 403 forbidden", base.Error())
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "plain", Message(errors.New("plain")))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(Errorf(KindInvalidArgument, "x")))
	assert.True(t, IsClientError(Errorf(KindInvalidInput, "x")))
	assert.False(t, IsClientError(Errorf(KindConversionTimeout, "x")))
	assert.False(t, IsClientError(errors.New("x")))
}

func TestExcerpt_Truncates(t *testing.T) {
	got := Excerpt(bytes.Repeat([]byte("a"), 100))
	assert.Contains(t, got, "(+36 bytes)")
	assert.Equal(t, `"abc"`, Excerpt([]byte("abc")))
}

func TestPageCount_RejectsGarbage(t *testing.T) {
	_, err := PageCount([]byte("%PDF-1.4 not really a pdf"))
	assert.Error(t, err)
}
