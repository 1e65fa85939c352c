package insights

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured
const DefaultModel = "gemini-2.0-flash"

// ErrEmptyResponse is returned when the model completes without any text
var ErrEmptyResponse = errors.New("empty model response")

// Generator produces a single text completion for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator implements Generator on the Google GenAI SDK
type GeminiGenerator struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiGenerator creates a Gemini backed generator
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature: genai.Ptr[float32](0.4),
		},
	}, nil
}

// Generate sends the prompt as a single user turn and returns the reply text
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Model returns the configured model name
func (g *GeminiGenerator) Model() string {
	return g.model
}

var quotaMarkers = []string{"quota", "resource_exhausted", "resource exhausted", "rate limit"}

var statusTooManyRequests = regexp.MustCompile(`\b429\b`)

// ClassifyError maps a generator error to a fallback reason.
// API errors are classified by status code; other errors by their message since
// providers report quota exhaustion inconsistently.
func ClassifyError(err error) FallbackReason {
	if err == nil {
		return ReasonNone
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return ReasonUpstreamQuota
	}

	msg := strings.ToLower(err.Error())
	if statusTooManyRequests.MatchString(msg) {
		return ReasonUpstreamQuota
	}
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return ReasonUpstreamQuota
		}
	}
	return ReasonUpstreamError
}
