package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tader68/spdata/pkg/ratelimit"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com"

	// How long to wait for Gemini to finish processing an uploaded media
	// file before giving up and cleaning the remote file.
	geminiUploadWaitMax  = 5 * time.Minute
	geminiUploadPollRate = time.Second
)

// geminiClient talks to the Gemini REST API
type geminiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	limiter *ratelimit.SlidingWindow
}

func newGeminiClient(cfg Config) *geminiClient {
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &geminiClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		http:    cfg.HTTPClient,
		limiter: limiterFor(cfg.Limiters, "gemini", model),
	}
}

func (c *geminiClient) Provider() string     { return "gemini" }
func (c *geminiClient) ModelVersion() string { return c.model }

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"file_data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *geminiError `json:"error"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Generate sends a text-only prompt
func (c *geminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []geminiPart{{Text: prompt}})
}

// GenerateWithMedia uploads the media file, waits for Gemini to process it,
// then prompts with a reference to the uploaded file. The processing wait is
// hard-capped; on timeout the remote file is deleted best-effort.
func (c *geminiClient) GenerateWithMedia(ctx context.Context, prompt, mediaPath, mediaKind string) (string, error) {
	fileURI, mimeType, err := c.uploadMedia(ctx, mediaPath)
	if err != nil {
		return "", err
	}

	return c.generate(ctx, []geminiPart{
		{Text: prompt},
		{FileData: &geminiFileData{MimeType: mimeType, FileURI: fileURI}},
	})
}

func (c *geminiClient) generate(ctx context.Context, parts []geminiPart) (string, error) {
	if c.limiter != nil {
		c.limiter.Acquire()
	}

	var req geminiRequest
	req.Contents = make([]struct {
		Parts []geminiPart `json:"parts"`
	}, 1)
	req.Contents[0].Parts = parts
	req.GenerationConfig.Temperature = 0.3
	req.GenerationConfig.MaxOutputTokens = 4000

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("gemini returned unparseable response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("gemini error %d %s: %s", resp.StatusCode, parsed.Error.Status, parsed.Error.Message)
		}
		return "", fmt.Errorf("gemini error: HTTP %d", resp.StatusCode)
	}

	for _, cand := range parsed.Candidates {
		var texts []string
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, ""), nil
		}
	}
	return "", fmt.Errorf("gemini returned no text content")
}

type geminiFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

// uploadMedia pushes the file to the Gemini files endpoint and polls until
// the remote side finishes processing it
func (c *geminiClient) uploadMedia(ctx context.Context, mediaPath string) (uri, mimeType string, err error) {
	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to read media file %s: %w", mediaPath, err)
	}
	mimeType = mimeTypeForPath(mediaPath)

	url := fmt.Sprintf("%s/upload/v1beta/files?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("X-Goog-Upload-Protocol", "raw")
	req.Header.Set("X-Goog-File-Name", filepath.Base(mediaPath))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("gemini media upload failed: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("gemini media upload failed: HTTP %d: %s", resp.StatusCode, respData)
	}

	var wrapper struct {
		File geminiFile `json:"file"`
	}
	if err := json.Unmarshal(respData, &wrapper); err != nil {
		return "", "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	file := wrapper.File

	deadline := time.Now().Add(geminiUploadWaitMax)
	for file.State == "PROCESSING" {
		if time.Now().After(deadline) {
			c.deleteFile(file.Name)
			return "", "", fmt.Errorf("timed out waiting for gemini to process media %s", mediaPath)
		}
		time.Sleep(geminiUploadPollRate)

		file, err = c.getFile(ctx, file.Name)
		if err != nil {
			return "", "", err
		}
	}
	if file.State == "FAILED" {
		c.deleteFile(file.Name)
		return "", "", fmt.Errorf("gemini failed to process media %s", mediaPath)
	}

	if file.MimeType != "" {
		mimeType = file.MimeType
	}
	return file.URI, mimeType, nil
}

func (c *geminiClient) getFile(ctx context.Context, name string) (geminiFile, error) {
	url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, name, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return geminiFile{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return geminiFile{}, fmt.Errorf("failed to poll media state: %w", err)
	}
	defer resp.Body.Close()

	var file geminiFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return geminiFile{}, fmt.Errorf("failed to parse media state: %w", err)
	}
	return file, nil
}

// deleteFile removes a remote file. Best effort: the remote side also
// expires files on its own after 48 hours.
func (c *geminiClient) deleteFile(name string) {
	url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, name, c.apiKey)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return
	}
	if resp, err := c.http.Do(req); err == nil {
		resp.Body.Close()
	}
}

func mimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
