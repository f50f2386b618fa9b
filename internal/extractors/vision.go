package extractors

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

var _ driven.TextExtractor = (*VisionOCR)(nil)

const (
	// DefaultVisionURL is the Cloud Vision REST endpoint
	DefaultVisionURL = "https://vision.googleapis.com/v1"

	// DefaultVisionPageLimit bounds how many PDF pages are sent for OCR
	DefaultVisionPageLimit = 2

	engineVisionImage = "vision_image"
	engineVisionPDF   = "vision_pdf"
)

// VisionConfig configures the Cloud Vision OCR extractor.
type VisionConfig struct {
	APIKey    string
	BaseURL   string
	PageLimit int
	Timeout   time.Duration
	RetryMax  int
	Logger    *slog.Logger
}

// VisionOCR runs DOCUMENT_TEXT_DETECTION on images (images:annotate) and on
// the first pages of PDFs (files:annotate).
type VisionOCR struct {
	apiKey    string
	baseURL   string
	pageLimit int
	client    *retryablehttp.Client
}

// NewVisionOCR creates the OCR extractor.
func NewVisionOCR(cfg VisionConfig) (*VisionOCR, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: vision API key is required", domain.ErrInvalidInput)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultVisionURL
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = DefaultVisionPageLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = timeout
	client.Logger = logger

	return &VisionOCR{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		pageLimit: pageLimit,
		client:    client,
	}, nil
}

func (v *VisionOCR) SupportedTypes() []string {
	return []string{"image/*", "application/pdf"}
}

func (v *VisionOCR) Priority() int {
	return 50
}

func (v *VisionOCR) Name() string {
	return "vision"
}

var documentTextFeature = []map[string]string{{"type": "DOCUMENT_TEXT_DETECTION"}}

// Extract OCRs content. Confidence is the mean block confidence.
func (v *VisionOCR) Extract(ctx context.Context, content []byte, mimeType string) (*domain.ExtractedText, error) {
	encoded := base64.StdEncoding.EncodeToString(content)

	if baseMIMEType(mimeType) == "application/pdf" {
		pages := make([]int, v.pageLimit)
		for i := range pages {
			pages[i] = i + 1
		}
		body := map[string]any{
			"requests": []map[string]any{{
				"inputConfig": map[string]string{"content": encoded, "mimeType": "application/pdf"},
				"features":    documentTextFeature,
				"pages":       pages,
			}},
		}
		raw, err := v.post(ctx, "/files:annotate", body)
		if err != nil {
			return nil, err
		}
		return collectAnnotations(gjson.GetBytes(raw, "responses.0.responses"), engineVisionPDF)
	}

	body := map[string]any{
		"requests": []map[string]any{{
			"image":    map[string]string{"content": encoded},
			"features": documentTextFeature,
		}},
	}
	raw, err := v.post(ctx, "/images:annotate", body)
	if err != nil {
		return nil, err
	}
	return collectAnnotations(gjson.GetBytes(raw, "responses"), engineVisionImage)
}

// collectAnnotations folds AnnotateImageResponse entries into one text.
func collectAnnotations(responses gjson.Result, engine string) (*domain.ExtractedText, error) {
	var texts []string
	var confSum float64
	var confN, pages int

	for _, r := range responses.Array() {
		if msg := r.Get("error.message"); msg.Exists() {
			return nil, fmt.Errorf("vision annotate error: %s", msg.String())
		}
		annotation := r.Get("fullTextAnnotation")
		if !annotation.Exists() {
			continue
		}
		if text := annotation.Get("text").String(); text != "" {
			texts = append(texts, text)
		}
		for _, page := range annotation.Get("pages").Array() {
			pages++
			for _, block := range page.Get("blocks").Array() {
				if c := block.Get("confidence"); c.Exists() {
					confSum += c.Float()
					confN++
				}
			}
		}
	}

	out := &domain.ExtractedText{
		Text:      strings.TrimSpace(strings.Join(texts, "\n")),
		Engine:    engine,
		PageCount: max(1, pages),
	}
	if confN > 0 {
		out.Confidence = confSum / float64(confN)
	}
	return out, nil
}

func (v *VisionOCR) post(ctx context.Context, path string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := v.baseURL + path + "?key=" + url.QueryEscape(v.apiKey)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(respBody, "error.message"); msg.Exists() {
			return nil, fmt.Errorf("vision API returned status %d: %s", resp.StatusCode, msg.String())
		}
		return nil, fmt.Errorf("vision API returned status %d", resp.StatusCode)
	}
	return respBody, nil
}
