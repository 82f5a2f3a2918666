package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultModelEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModelName     = "gpt-4o-mini"

	// Document text beyond this many bytes is not sent to the model.
	maxModelInputBytes = 200000
)

const systemPrompt = "You are an information extraction engine for shipping documents. " +
	"Return ONLY valid JSON matching the provided schema. " +
	"If a field is not present, omit it. " +
	"Normalize dates to YYYY-MM-DD. Numbers are plain numerals, use '.' as decimal."

// schemaDescription is sent to the model verbatim to describe the target schema.
var schemaDescription = map[string]map[string]string{
	"shipper":   {"name": "str", "address": "str", "contact": "str", "email": "str", "phone": "str", "vat": "str"},
	"consignee": {"name": "str", "address": "str", "vat": "str"},
	"notify":    {"name": "str", "address": "str", "email": "str", "phone": "str"},
	"refs": {
		"shipment_no": "str", "order_no_internal": "str", "customer_po": "str",
		"delivery_no": "str", "customer_no": "str",
		"loading_date": "YYYY-MM-DD", "scheduled_delivery_date": "YYYY-MM-DD",
	},
	"shipping": {"shipping_point": "str", "incoterms": "str", "way_of_forwarding": "str", "pol": "str", "pod": "str"},
	"cargo":    {"description": "str", "packaging": "list[str]", "net_kg": "float", "gross_kg": "float"},
	"marks":    {"carton_marks": "str", "labelling": "str"},
	"bl":       {"type": "str"},
}

// ModelConfig holds the configuration for the model fill pass.
type ModelConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// ModelFiller fills fields the rules pass left unresolved by asking an
// OpenAI-compatible chat completions endpoint for a JSON document.
type ModelFiller struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewModelFiller creates a ModelFiller. An empty API key is allowed; it just
// means the deployment has no model configured and the filler stays nil at the
// call site.
func NewModelFiller(cfg ModelConfig) *ModelFiller {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultModelEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultModelName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &ModelFiller{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat respFormat    `json:"response_format"`
	Messages       []chatMessage `json:"messages"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// FillMissing asks the model for a complete schema document given the document
// text and the values already resolved by the rules pass.
func (f *ModelFiller) FillMissing(ctx context.Context, fullText string, partial map[string]any) (map[string]any, error) {
	if len(fullText) > maxModelInputBytes {
		fullText = fullText[:maxModelInputBytes]
	}

	userPayload, err := json.Marshal(map[string]any{
		"task":                   "Extract and normalize fields for a shipping instruction form.",
		"required_output_schema": schemaDescription,
		"known_partial_values":   partial,
		"document_text":          fullText,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling model request payload: %v", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:          f.model,
		Temperature:    0,
		ResponseFormat: respFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userPayload)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling model request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating model request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling model endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model endpoint returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading model response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding model response: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("model response has no choices")
	}

	var filled map[string]any
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &filled); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON content: %v", err)
	}
	return filled, nil
}
