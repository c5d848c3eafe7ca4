package docai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
)

// IsPDF sniffs the %PDF- header.
func IsPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// PDFText reads the embedded text layer of a PDF without any remote call.
// Scanned documents without a text layer yield an empty string, and anything
// that is not a PDF is left to the next extractor.
type PDFText struct{}

func (PDFText) ExtractText(_ context.Context, data []byte, _ string) (text string, err error) {
	if !IsPDF(data) {
		return "", nil
	}
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf: malformed document: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		for _, row := range rows {
			var line strings.Builder
			for _, segment := range row.Content {
				line.WriteString(segment.S)
			}
			if s := strings.TrimSpace(line.String()); s != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// Chain tries each extractor in order and returns the first non-empty text.
// Errors are only reported when no extractor produced anything.
type Chain []Extractor

func (c Chain) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	var errs []error
	for _, extractor := range c {
		if extractor == nil {
			continue
		}
		text, err := extractor.ExtractText(ctx, data, mimeType)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			logrus.WithError(err).WithField("extractor", fmt.Sprintf("%T", extractor)).Warn("Text extraction failed, trying next extractor")
			errs = append(errs, err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", errors.Join(errs...)
}
