package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/tader68/spdata/pkg/ratelimit"
)

const openAIBaseURL = "https://api.openai.com"

// openaiClient talks to the OpenAI chat completions API
type openaiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	limiter *ratelimit.SlidingWindow
}

func newOpenAIClient(cfg Config) *openaiClient {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return &openaiClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		http:    cfg.HTTPClient,
		limiter: limiterFor(cfg.Limiters, "openai", model),
	}
}

func (c *openaiClient) Provider() string     { return "openai" }
func (c *openaiClient) ModelVersion() string { return c.model }

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string, or []contentPart for vision
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends a text-only prompt
func (c *openaiClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, []chatMessage{{Role: "user", Content: prompt}})
}

// GenerateWithMedia supports images only: the file is inlined as a base64
// data URL. Audio and video need a transcription pipeline this backend does
// not have.
func (c *openaiClient) GenerateWithMedia(ctx context.Context, prompt, mediaPath, mediaKind string) (string, error) {
	if mediaKind != "image" {
		return "", fmt.Errorf("%w: openai cannot evaluate %s directly", ErrMediaUnsupported, mediaKind)
	}

	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return "", fmt.Errorf("failed to read media file %s: %w", mediaPath, err)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeTypeForPath(mediaPath), base64.StdEncoding.EncodeToString(data))
	return c.chat(ctx, []chatMessage{{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		},
	}})
}

func (c *openaiClient) chat(ctx context.Context, messages []chatMessage) (string, error) {
	if c.limiter != nil {
		c.limiter.Acquire()
	}

	payload := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0.3,
		"max_tokens":  4000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read openai response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("openai returned unparseable response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("openai error %d %s: %s", resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
		}
		return "", fmt.Errorf("openai error: HTTP %d", resp.StatusCode)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
