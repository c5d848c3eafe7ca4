// internal/services/coa_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/docai"
	"github.com/greenleaf/compliance-engine/internal/llm"
	"github.com/greenleaf/compliance-engine/internal/metrics"
	"github.com/greenleaf/compliance-engine/internal/models"
)

const aiExtractionFailed = "AI extraction failed"

// maxPromptRunes bounds how much certificate text is sent for extraction.
const maxPromptRunes = 24000

const coaSystemPrompt = `You read certificates of analysis (COAs) for hemp, kratom and related products.
Extract the batch or lot number, the cannabinoid potency in percent, the date the sample was tested, the testing laboratory's name,
the expiration date, and the pass/fail outcome for the pesticides, heavy_metals, microbials and residual_solvents panels.
Dates must be formatted YYYY-MM-DD. Any value that does not appear in the document must be null, never an empty string.
Set isValid to false and list the reasons in validationErrors when the certificate is incomplete, failing, or does not look like a COA.`

var nullableString = map[string]any{"type": []string{"string", "null"}}

var panelResult = map[string]any{
	"type": []string{"string", "null"},
	"enum": []any{"pass", "fail", "not_tested", nil},
}

var coaSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"batchNumber": nullableString,
		"potency": map[string]any{
			"type": []string{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cannabinoid": map[string]any{"type": "string"},
					"percent":     map[string]any{"type": "number"},
				},
				"required":             []string{"cannabinoid", "percent"},
				"additionalProperties": false,
			},
		},
		"testedAt":       nullableString,
		"labName":        nullableString,
		"expirationDate": nullableString,
		"contaminantResults": map[string]any{
			"type": []string{"object", "null"},
			"properties": map[string]any{
				models.PanelPesticides:       panelResult,
				models.PanelHeavyMetals:      panelResult,
				models.PanelMicrobials:       panelResult,
				models.PanelResidualSolvents: panelResult,
			},
			"required": []string{
				models.PanelPesticides, models.PanelHeavyMetals,
				models.PanelMicrobials, models.PanelResidualSolvents,
			},
			"additionalProperties": false,
		},
		"isValid": map[string]any{"type": "boolean"},
		"validationErrors": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{
		"batchNumber", "potency", "testedAt", "labName", "expirationDate",
		"contaminantResults", "isValid", "validationErrors",
	},
	"additionalProperties": false,
}

type aiPotency struct {
	Cannabinoid string  `json:"cannabinoid"`
	Percent     float64 `json:"percent"`
}

type aiCOA struct {
	BatchNumber        *string            `json:"batchNumber"`
	Potency            []aiPotency        `json:"potency"`
	TestedAt           *string            `json:"testedAt"`
	LabName            *string            `json:"labName"`
	ExpirationDate     *string            `json:"expirationDate"`
	ContaminantResults map[string]*string `json:"contaminantResults"`
	IsValid            bool               `json:"isValid"`
	ValidationErrors   []string           `json:"validationErrors"`
}

// COAData is the structured content of one certificate. Missing values are
// nil, never empty strings.
type COAData struct {
	BatchNumber        *string                   `json:"batch_number"`
	Potency            models.PotencyMap         `json:"potency"`
	TestedAt           *time.Time                `json:"tested_at"`
	LabName            *string                   `json:"lab_name"`
	ExpirationDate     *time.Time                `json:"expiration_date"`
	ContaminantResults models.ContaminantResults `json:"contaminant_results"`
	IsValid            bool                      `json:"is_valid"`
	ValidationErrors   []string                  `json:"validation_errors"`
}

type IngestResult struct {
	LabCertificateID uuid.UUID `json:"lab_certificate_id"`
	ExtractedData    COAData   `json:"extracted_data"`
	TextLength       int       `json:"text_length"`
}

type COAService struct {
	store     CatalogStore
	extractor docai.Extractor
	llm       llm.Client
	metrics   *metrics.Metrics
}

// NewCOAService falls back to the local PDF text layer when extractor is nil.
func NewCOAService(store CatalogStore, extractor docai.Extractor, client llm.Client, m *metrics.Metrics) *COAService {
	if extractor == nil {
		extractor = docai.PDFText{}
	}
	return &COAService{store: store, extractor: extractor, llm: client, metrics: m}
}

// EnsureProduct lets callers reject an upload before storing the file.
func (s *COAService) EnsureProduct(ctx context.Context, productID uuid.UUID) error {
	_, err := s.store.GetProduct(ctx, productID)
	return err
}

func (s *COAService) IngestCOA(ctx context.Context, productID uuid.UUID, file []byte, mimeType, sourceURL string) (*IngestResult, error) {
	if len(file) == 0 {
		return nil, apierr.Validation(apierr.CodeValidation, "certificate file is empty")
	}
	if strings.TrimSpace(sourceURL) == "" {
		return nil, apierr.Validation(apierr.CodeValidation, "certificate URL is required")
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	text := s.extractText(ctx, file, mimeType)

	data, aiOK := s.extractWithAI(ctx, text)
	applyRegexFallback(&data, text)
	s.metrics.IncCOAIngestion(aiOK)

	cert := &models.LabCertificate{
		ProductID:          product.ID,
		URL:                sourceURL,
		BatchNumber:        data.BatchNumber,
		Potency:            data.Potency,
		TestedAt:           data.TestedAt,
		LabName:            data.LabName,
		ExpirationDate:     data.ExpirationDate,
		ContaminantResults: data.ContaminantResults,
		IsValid:            data.IsValid,
		ValidationErrors:   data.ValidationErrors,
		ParsedByAI:         true,
		TextLength:         len(text),
	}
	if err := s.store.CreateLabCertificate(ctx, cert); err != nil {
		return nil, err
	}

	patch := models.ProductPatch{
		LabTestURL:      &sourceURL,
		BatchNumber:     data.BatchNumber,
		ExpirationDate:  data.ExpirationDate,
		RequiresLabTest: models.BoolPtr(false),
	}
	if err := s.store.UpdateProduct(ctx, product.ID, patch); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"product_id":         product.ID,
		"lab_certificate_id": cert.ID,
		"ai_extraction":      aiOK,
		"is_valid":           data.IsValid,
		"text_length":        cert.TextLength,
	}).Info("COA ingested")

	return &IngestResult{
		LabCertificateID: cert.ID,
		ExtractedData:    data,
		TextLength:       cert.TextLength,
	}, nil
}

// extractText never fails: an unusable extractor result degrades to the raw
// bytes so later passes still see something.
func (s *COAService) extractText(ctx context.Context, file []byte, mimeType string) string {
	raw := string(file)
	if s.extractor == nil || strings.HasPrefix(mimeType, "text/") {
		return raw
	}

	text, err := s.extractor.ExtractText(ctx, file, mimeType)
	if err != nil {
		logrus.WithError(err).Warn("Document text extraction failed, using raw bytes")
		return raw
	}
	if strings.TrimSpace(text) == "" {
		logrus.Warn("Document text extraction returned no text, using raw bytes")
		return raw
	}
	return text
}

// extractWithAI reports false with an all-null result when the completion
// call or its response is unusable.
func (s *COAService) extractWithAI(ctx context.Context, text string) (COAData, bool) {
	failed := COAData{IsValid: false, ValidationErrors: []string{aiExtractionFailed}}

	prompt := text
	if utf8.RuneCountInString(prompt) > maxPromptRunes {
		prompt = string([]rune(prompt)[:maxPromptRunes])
	}

	raw, err := s.llm.GenerateJSON(ctx, coaSystemPrompt, "Certificate text:\n"+prompt, "coa_extraction", coaSchema)
	if err != nil {
		logrus.WithError(err).Warn("COA AI extraction failed")
		return failed, false
	}

	var parsed aiCOA
	if err := json.Unmarshal(raw, &parsed); err != nil {
		logrus.WithError(err).Warn("COA AI extraction returned unusable JSON")
		return failed, false
	}
	return normalizeAICOA(parsed), true
}

func normalizeAICOA(in aiCOA) COAData {
	out := COAData{
		BatchNumber:      nonEmpty(in.BatchNumber),
		LabName:          nonEmpty(in.LabName),
		IsValid:          in.IsValid,
		ValidationErrors: []string{},
	}
	for _, msg := range in.ValidationErrors {
		if msg = strings.TrimSpace(msg); msg != "" {
			out.ValidationErrors = append(out.ValidationErrors, msg)
		}
	}

	for _, field := range []struct {
		name string
		in   *string
		out  **time.Time
	}{
		{"testedAt", in.TestedAt, &out.TestedAt},
		{"expirationDate", in.ExpirationDate, &out.ExpirationDate},
	} {
		value := nonEmpty(field.in)
		if value == nil {
			continue
		}
		if t, ok := parseCOADate(*value); ok {
			*field.out = &t
		} else {
			out.ValidationErrors = append(out.ValidationErrors, fmt.Sprintf("unreadable %s %q", field.name, *value))
		}
	}

	if len(in.Potency) > 0 {
		out.Potency = models.PotencyMap{}
		for _, p := range in.Potency {
			name := strings.TrimSpace(p.Cannabinoid)
			if name != "" {
				out.Potency[strings.ToUpper(name)] = p.Percent
			}
		}
		if len(out.Potency) == 0 {
			out.Potency = nil
		}
	}

	if len(in.ContaminantResults) > 0 {
		out.ContaminantResults = models.ContaminantResults{}
		for panel, result := range in.ContaminantResults {
			if r := nonEmpty(result); r != nil {
				out.ContaminantResults[panel] = models.ContaminantResult(*r)
			}
		}
		if len(out.ContaminantResults) == 0 {
			out.ContaminantResults = nil
		}
	}
	return out
}

var (
	batchPattern = regexp.MustCompile(`(?i)\b(?:batch|lot)\s*(?:#|no\.?|number|id)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{2,})`)
	datePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|\d{1,2}-\d{1,2}-\d{4})\b`)
	labPattern   = regexp.MustCompile(`(?im)\blab(?:oratory)?(?:\s+name)?\s*:\s*([^\r\n]+)`)
	thcaPattern  = regexp.MustCompile(`(?i)\bTHC-?A\b[^0-9\r\n]{0,24}(\d{1,3}(?:\.\d+)?)\s*%`)
)

// applyRegexFallback fills only the fields the AI pass left nil.
func applyRegexFallback(data *COAData, text string) {
	if data.BatchNumber == nil {
		if m := batchPattern.FindStringSubmatch(text); m != nil {
			data.BatchNumber = &m[1]
		}
	}
	if data.TestedAt == nil {
		if m := datePattern.FindStringSubmatch(text); m != nil {
			if t, ok := parseCOADate(m[1]); ok {
				data.TestedAt = &t
			}
		}
	}
	if data.LabName == nil {
		if m := labPattern.FindStringSubmatch(text); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				data.LabName = &name
			}
		}
	}
	if data.Potency == nil {
		if m := thcaPattern.FindStringSubmatch(text); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
				data.Potency = models.PotencyMap{"THCA": pct}
			}
		}
	}
}

var coaDateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "01-02-2006", "1-2-2006", "January 2, 2006", "Jan 2, 2006"}

func parseCOADate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range coaDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
