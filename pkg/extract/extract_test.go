package extract

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	e := New()

	text, err := e.Extract([]byte("Test Case ID TC-1: login succeeds"), "text/plain")
	require.NoError(t, err)
	require.Equal(t, "Test Case ID TC-1: login succeeds", text)
}

func TestExtractPlainTextWithCharsetParameter(t *testing.T) {
	e := New()

	text, err := e.Extract([]byte("hello"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

func TestExtractEmptyFile(t *testing.T) {
	e := New()

	_, err := e.Extract(nil, "text/plain")
	require.Error(t, err)
}

func TestExtractSniffsMissingMediaType(t *testing.T) {
	e := New()

	text, err := e.Extract([]byte("plain words, no declared type"), "")
	require.NoError(t, err)
	require.Equal(t, "plain words, no declared type", text)
}

func TestExtractDecodesBinaryGarbageLeniently(t *testing.T) {
	e := New()

	// Invalid UTF-8 under an unknown declared type still decodes; malformed
	// sequences become replacement runes and the legible bytes survive.
	text, err := e.Extract([]byte{'t', 'e', 's', 't', 0xff, 0xfe, ' ', 'p', 'l', 'a', 'n', 0x80}, "application/octet-stream")
	require.NoError(t, err)
	require.True(t, utf8.ValidString(text))
	require.Contains(t, text, "test")
	require.Contains(t, text, "plan")
	require.Contains(t, text, string(utf8.RuneError))
}

func TestExtractCorruptPDF(t *testing.T) {
	e := New()

	_, err := e.Extract([]byte("%PDF-1.7 truncated"), MediaTypePDF)
	require.Error(t, err)
}

func TestExtractCorruptDocx(t *testing.T) {
	e := New()

	_, err := e.Extract([]byte("not a zip archive"), MediaTypeDocx)
	require.Error(t, err)
}

func TestNormalizeMediaType(t *testing.T) {
	require.Equal(t, "application/pdf", normalizeMediaType(" Application/PDF "))
	require.Equal(t, "text/plain", normalizeMediaType("text/plain; charset=iso-8859-1"))
	require.Equal(t, "", normalizeMediaType(""))
}
