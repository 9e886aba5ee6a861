// Package gemini implements llm.Extractor against the Gemini API. The PDF is
// passed inline and the model is pinned to JSON output mode; all shape
// assumptions beyond "valid JSON per the canonical schema" live in the
// normalizer, not here.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/llm"
	"github.com/aipe-tech/dataextract/internal/schema"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string
	Model       string        // e.g. "gemini-2.5-pro"
	Temperature float32       // 0 for deterministic structured output
	Timeout     time.Duration // per-call ceiling
}

type Client struct {
	cfg    Config
	client *genai.Client
	model  *genai.GenerativeModel
	log    *slog.Logger
}

// NewClient builds the client and pre-configures the generative model for
// structured JSON output.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-pro"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.SystemPrompt)},
	}

	return &Client{cfg: cfg, client: client, model: model, log: logger}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Extract issues exactly one GenerateContent call with the PDF attached.
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) (llm.RawResult, error) {
	start := time.Now()
	c.log.Info("llm.extract.start",
		"model", c.cfg.Model,
		"document_bytes", len(req.Document),
		"corrective", req.Corrective != "",
	)

	if len(req.Document) == 0 {
		return llm.RawResult{}, fmt.Errorf("gemini: empty document: %w", common.ErrInvalidDocument)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx,
		genai.Blob{MIMEType: "application/pdf", Data: req.Document},
		genai.Text(llm.UserPrompt(req)),
	)
	if err != nil {
		classified := classify(err)
		c.log.Error("llm.extract.call_failed",
			"error", err,
			"reason", common.ReasonFor(classified),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.RawResult{}, classified
	}

	content := collectText(resp)
	if content == "" {
		c.log.Error("llm.extract.empty_response", "elapsed_ms", time.Since(start).Milliseconds())
		return llm.RawResult{}, fmt.Errorf("gemini: empty response: %w", common.ErrMalformedResponse)
	}
	raw := []byte(stripFences(content))

	if err := schema.Validate(raw); err != nil {
		c.log.Error("llm.extract.schema_validation_failed",
			"error", err,
			"content_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.RawResult{JSON: raw, ModelName: c.cfg.Model},
			fmt.Errorf("gemini: %v: %w", err, common.ErrMalformedResponse)
	}

	c.log.Info("llm.extract.ok",
		"content_bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.RawResult{JSON: raw, ModelName: c.cfg.Model}, nil
}

// collectText concatenates all text parts of the first candidate.
func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}

// stripFences removes a markdown code fence the model sometimes wraps JSON in
// despite the JSON response mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
