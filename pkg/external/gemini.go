package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/medirisk-server/internal/domain"
)

// ProviderGemini is the provider name reported in enhancement metadata
const ProviderGemini = "gemini"

// maxErrorBody bounds how much of a failed response body is kept in errors
const maxErrorBody = 512

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GeminiClient calls the Gemini generateContent endpoint
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	generation GenerationConfig
	safety     []SafetySetting
	httpClient *http.Client
}

// GenerateContentRequest is the generateContent request body
type GenerateContentRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
	SafetySettings   []SafetySetting  `json:"safetySettings"`
}

// Content is one conversation turn
type Content struct {
	Parts []Part `json:"parts"`
}

// Part is one text part of a turn
type Part struct {
	Text string `json:"text"`
}

// GenerationConfig holds sampling parameters
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// SafetySetting sets the block threshold for one harm category
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GenerateContentResponse is the subset of the response that is interpreted
type GenerateContentResponse struct {
	Candidates []struct {
		Content Content `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient creates a Gemini client. The HTTP client carries no
// timeout of its own; callers bound each call through the context.
func NewGeminiClient(config domain.EnhancementConfig) *GeminiClient {
	safety := make([]SafetySetting, 0, len(harmCategories))
	for _, category := range harmCategories {
		safety = append(safety, SafetySetting{Category: category, Threshold: config.SafetyThreshold})
	}

	return &GeminiClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		model:   config.Model,
		generation: GenerationConfig{
			Temperature:     config.Temperature,
			TopK:            config.TopK,
			TopP:            config.TopP,
			MaxOutputTokens: config.MaxOutputTokens,
		},
		safety:     safety,
		httpClient: &http.Client{},
	}
}

// Name implements domain.TextProvider
func (c *GeminiClient) Name() string { return ProviderGemini }

// Model implements domain.TextProvider
func (c *GeminiClient) Model() string { return c.model }

// Generate sends one generateContent call and returns the first candidate's text.
// HTTP 503 and transport failures are transient; every other failure is fatal.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", &domain.ProviderFatalError{Provider: ProviderGemini, Err: errors.New("API key not configured")}
	}

	body, err := json.Marshal(GenerateContentRequest{
		Contents:         []Content{{Parts: []Part{{Text: prompt}}}},
		GenerationConfig: c.generation,
		SafetySettings:   c.safety,
	})
	if err != nil {
		return "", &domain.ProviderFatalError{Provider: ProviderGemini, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &domain.ProviderFatalError{Provider: ProviderGemini, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error would leak the key through its URL
		return "", &domain.ProviderTransientError{Provider: ProviderGemini, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode == http.StatusServiceUnavailable {
			return "", &domain.ProviderTransientError{Provider: ProviderGemini, StatusCode: resp.StatusCode, Err: statusErr}
		}
		return "", &domain.ProviderFatalError{Provider: ProviderGemini, StatusCode: resp.StatusCode, Err: statusErr}
	}

	var parsed GenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &domain.ProviderFatalError{Provider: ProviderGemini, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 || parsed.Candidates[0].Content.Parts[0].Text == "" {
		return "", &domain.ProviderFatalError{Provider: ProviderGemini, StatusCode: resp.StatusCode, Err: errors.New("response contained no candidate text")}
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
