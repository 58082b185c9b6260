package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"infra-insight/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 2048
	DefaultTimeout     = 60 * time.Second
)

type OpenAIOptions struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIGenerator asks an OpenAI-compatible chat completions endpoint for
// recommendations.
type OpenAIGenerator struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	log         *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func NewOpenAIGenerator(opts OpenAIOptions, log *zap.Logger) (*OpenAIGenerator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &OpenAIGenerator{
		apiKey:      opts.APIKey,
		model:       opts.Model,
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		temperature: opts.Temperature,
		maxTokens:   DefaultMaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		log:         log,
	}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, result models.AnalysisResult) ([]models.Recommendation, error) {
	request := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(result)},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}

	body, err := g.makeRequest(ctx, "/chat/completions", request)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API request failed: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in OpenAI response")
	}

	recs, err := ParseRecommendations(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	g.log.Info("recommendations generated",
		zap.String("model", g.model),
		zap.Int("count", len(recs)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return recs, nil
}

func (g *OpenAIGenerator) makeRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// ParseRecommendations decodes a JSON array of recommendations, tolerating a
// surrounding markdown code fence. Records without an id get a generated one.
func ParseRecommendations(content string) ([]models.Recommendation, error) {
	content = stripCodeFence(content)

	var recs []models.Recommendation
	if err := json.Unmarshal([]byte(content), &recs); err != nil {
		return nil, fmt.Errorf("recommendations are not a JSON array: %w", err)
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = "rec-" + uuid.NewString()
		}
		if recs[i].Parameters == nil {
			recs[i].Parameters = map[string]interface{}{}
		}
	}
	return recs, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
