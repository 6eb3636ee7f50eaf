package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NirnayK/InvoxAI-sub000/internal/common"
	"github.com/NirnayK/InvoxAI-sub000/internal/llm"
)

// Extract implements llm.Extractor against the generateContent endpoint. The
// file goes inline as base64; the invoice schema rides along as a
// structured-output constraint. The raw response text is returned as-is —
// parsing and fallback handling are the invoker's job.
func (c *Client) Extract(ctx context.Context, req llm.ExtractRequest) ([]byte, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", req.Model,
		"temp", c.cfg.Temperature,
		"mime_type", req.MimeType,
		"file_bytes", len(req.FileBytes),
		"filename_hint", req.FilenameHint,
	)

	body := map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]any{
				{"text": buildSystemInstruction(req)},
			},
		},
		"contents": []map[string]any{
			{
				"role": "user",
				"parts": []map[string]any{
					{"text": buildUserPrompt(req.FilenameHint)},
					{"inlineData": map[string]any{
						"mimeType": req.MimeType,
						"data":     base64.StdEncoding.EncodeToString(req.FileBytes),
					}},
				},
			},
		},
		"generationConfig": map[string]any{
			"temperature":      c.cfg.Temperature,
			"responseMimeType": "application/json",
			"responseSchema":   responseSchema(),
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + req.Model + ":generateContent"
	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}

	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "model", req.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var gc struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &gc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(gc.Candidates) == 0 {
		c.logger.Error("llm.extract.no_candidates",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("no candidates in gemini response")
	}

	var b strings.Builder
	for _, part := range gc.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	content := strings.TrimSpace(b.String())

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"model", req.Model,
		"content_bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []byte(content), nil
}

func buildSystemInstruction(req llm.ExtractRequest) string {
	currency := req.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}
	parts := []string{
		"You are an invoice parser. Return ONLY JSON that matches the response schema.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Currency must be a 3-letter ISO 4217 code; default to " + currency + " if uncertain.",
		"All money amounts are decimal strings with up to two fraction digits.",
		"If taxes appear, put them in 'tax'; never fold them into line item amounts.",
		"Include every billed position under 'line_items'.",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(filename string) string {
	var b strings.Builder
	b.WriteString("Extract the structured invoice data from the attached document.")
	if filename != "" {
		b.WriteString("\nFilename: ")
		b.WriteString(filename)
	}
	return b.String()
}

// responseSchema is the OpenAPI-style subset generateContent accepts; it
// mirrors llm.BuildInvoiceJSONSchema without the JSON-Schema-only keywords.
func responseSchema() map[string]any {
	decimal := map[string]any{"type": "STRING"}
	lineItem := map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"description": map[string]any{"type": "STRING"},
			"quantity":    decimal,
			"unit_price":  decimal,
			"amount":      decimal,
		},
		"required": []string{"description", "amount"},
	}
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"vendor_name":    map[string]any{"type": "STRING"},
			"invoice_number": map[string]any{"type": "STRING"},
			"invoice_date":   map[string]any{"type": "STRING"},
			"due_date":       map[string]any{"type": "STRING"},
			"subtotal":       decimal,
			"tax":            decimal,
			"total":          decimal,
			"currency_code":  map[string]any{"type": "STRING"},
			"line_items":     map[string]any{"type": "ARRAY", "items": lineItem},
			"notes":          map[string]any{"type": "STRING"},
		},
		"required": []string{"vendor_name", "invoice_date", "total", "currency_code"},
	}
}
