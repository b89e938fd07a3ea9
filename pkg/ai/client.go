package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tader68/spdata/pkg/ratelimit"
)

var (
	// ErrUnsupportedProvider is returned for providers outside the supported set
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrMissingAPIKey is returned when a client is built without credentials
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrMediaUnsupported is returned when a provider cannot handle the media kind
	ErrMediaUnsupported = errors.New("media kind not supported by provider")
)

// Client is the capability surface the job engine needs from one AI
// provider. Implementations are safe to call from a single dedicated worker
// goroutine; rate limiting against provider quotas happens inside the client
// via the shared limiter registry.
type Client interface {
	// Generate sends a text prompt and returns the model's text response
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateWithMedia sends a prompt together with a local media file
	GenerateWithMedia(ctx context.Context, prompt, mediaPath, mediaKind string) (string, error)
	// Provider returns the provider name ("gemini", "openai")
	Provider() string
	// ModelVersion returns the concrete model in use
	ModelVersion() string
}

// Config selects and configures a provider client
type Config struct {
	Provider string
	APIKey   string
	Model    string // empty selects the provider default

	// Limiters is the shared per-(provider,model) admission registry.
	// Nil disables client-side rate limiting.
	Limiters *ratelimit.Registry

	// HTTPClient overrides the default transport (tests)
	HTTPClient *http.Client

	// BaseURL overrides the provider endpoint (tests)
	BaseURL string
}

const (
	defaultGeminiModel = "gemini-2.5-flash"
	defaultOpenAIModel = "gpt-4o"
)

// New builds a client for the configured provider. The provider set is
// closed: adding one means adding a type here, not string checks elsewhere.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}

	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return newGeminiClient(cfg), nil
	case "openai", "chatgpt":
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// DefaultModel returns the model used when a request names only a provider
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "gemini":
		return defaultGeminiModel
	case "openai", "chatgpt":
		return defaultOpenAIModel
	default:
		return ""
	}
}

// limiterFor resolves the shared window for a provider/model pair, or nil
func limiterFor(reg *ratelimit.Registry, provider, model string) *ratelimit.SlidingWindow {
	if reg == nil {
		return nil
	}
	return reg.ForModel(provider, model)
}
