// Package extract turns stored document bytes into plain text for the
// evaluation pipeline.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fumiama/go-docx"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extractor converts raw file bytes into plain text. The declared media type
// is a hint; implementations may sniff the bytes when it is missing or wrong.
type Extractor interface {
	Extract(data []byte, mediaType string) (string, error)
}

type extractor struct{}

// New returns the default extractor supporting PDF, DOCX and plain text.
func New() Extractor {
	return extractor{}
}

func (extractor) Extract(data []byte, mediaType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file")
	}

	mediaType = normalizeMediaType(mediaType)
	if mediaType == "" {
		mediaType = normalizeMediaType(mimetype.Detect(data).String())
	}

	switch mediaType {
	case MediaTypePDF:
		return extractPDF(data)
	case MediaTypeDocx:
		return extractDocx(data)
	default:
		// Anything else is treated as text. Malformed byte sequences decode
		// to the replacement rune, so byte-noise ends up rejected by the
		// classifier rather than aborting the evaluation.
		return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil
	}
}

func normalizeMediaType(mediaType string) string {
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	return mediaType
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var builder strings.Builder
	if _, err := io.Copy(&builder, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return builder.String(), nil
}

func extractDocx(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var builder strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch block := item.(type) {
		case *docx.Paragraph:
			builder.WriteString(block.String())
			builder.WriteByte('\n')
		case *docx.Table:
			builder.WriteString(block.String())
			builder.WriteByte('\n')
		}
	}

	return builder.String(), nil
}
