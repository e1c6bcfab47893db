package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// MaxTranscriptChars bounds the transcript text sent for summarization.
const MaxTranscriptChars = 1500

const systemPrompt = "You are an assistant that extracts structured information from call transcripts."

const promptTemplate = `You are logging customer support phone calls. The customer has called and explained an issue.
Caller transcription:
%q

Please extract a short descriptive title (up to 8 words), a longer summary (1-3 sentences), a priority level, and, when stated, the caller's name, company, and any system or device information.
Respond only with a JSON object with the following keys:
    "title": "...",
    "description": "...",
    "priority": "critical|high|medium|low|none",
    "name": "...",
    "company": "...",
    "system_info": "..."`

// Verify interface compliance at compile time.
var _ Summarizer = (*OpenAIClient)(nil)

// OpenAIClient implements Summarizer using the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// ClientConfig configures the OpenAI summarizer.
type ClientConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewOpenAIClient creates a summarizer backed by the OpenAI API.
func NewOpenAIClient(cfg ClientConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("summary: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// jsonObjectPattern finds the first JSON object embedded in model output,
// which may be wrapped in prose or code fences.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Summarize sends the transcript to the chat completions API and parses the
// structured fields out of the reply.
func (c *OpenAIClient) Summarize(ctx context.Context, transcript string) (*Result, error) {
	if len(transcript) > MaxTranscriptChars {
		transcript = transcript[:MaxTranscriptChars]
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(promptTemplate, transcript)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("summary: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("summary: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summary: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("summary: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("summary: api status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("summary: parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("summary: response has no choices")
	}

	return parseResult(parsed.Choices[0].Message.Content)
}

// parseResult extracts and validates the structured fields from raw model
// output.
func parseResult(content string) (*Result, error) {
	match := jsonObjectPattern.FindString(content)
	if match == "" {
		return nil, fmt.Errorf("summary: no JSON object in model output")
	}
	var res Result
	if err := json.Unmarshal([]byte(match), &res); err != nil {
		return nil, fmt.Errorf("summary: malformed JSON in model output: %w", err)
	}
	if res.Title == "" || res.Description == "" || res.Priority == "" {
		return nil, fmt.Errorf("summary: incomplete structured output")
	}
	res.Priority = normalizePriority(res.Priority)
	return &res, nil
}

// normalizePriority maps model output onto the issue priority enum.
func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "urgent", "critical":
		return "critical"
	case "high":
		return "high"
	case "medium":
		return "medium"
	case "low":
		return "low"
	case "none":
		return "none"
	default:
		return "unknown"
	}
}
