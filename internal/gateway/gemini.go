// File: internal/gateway/gemini.go

// Package gateway asks an LLM for replacement locators once every known tier
// has failed. The engine treats this package as best-effort: any error here
// simply ends the gateway tier.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xkilldash9x/relock/internal/config"
	"github.com/xkilldash9x/relock/internal/engine"
	"github.com/xkilldash9x/relock/internal/locator"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnavailable marks a transient gateway fault (network, quota, 5xx). The
// engine converts it into continued progress toward exhaustion.
var ErrUnavailable = errors.New("suggestion gateway unavailable")

// PageContextFunc supplies a bounded digest of the live page for the prompt.
// It may be nil; suggestions are then made from the attempt history alone.
type PageContextFunc func(ctx context.Context) (string, error)

// -- Gemini API request/response structures (internal to this file) --

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// suggestion is the JSON shape the model is instructed to emit.
type suggestion struct {
	Strategy string `json:"strategy"`
	Value    string `json:"value"`
}

// GeminiGateway implements engine.Gateway against the Gemini generateContent
// API. One Suggest call is one HTTP request; retry policy belongs to the
// caller's next resolution, not to this client.
type GeminiGateway struct {
	apiKey      string
	endpoint    string
	httpClient  *http.Client
	limiter     *rate.Limiter
	pageContext PageContextFunc
	cfg         config.GatewayConfig
	logger      *zap.Logger
}

var _ engine.Gateway = (*GeminiGateway)(nil)

// NewGemini initializes the gateway client.
func NewGemini(cfg config.GatewayConfig, pageContext PageContextFunc, logger *zap.Logger) (*GeminiGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	rps := cfg.RequestsPerMinute / 60
	if rps <= 0 {
		rps = 0.1
	}

	return &GeminiGateway{
		apiKey:      cfg.APIKey,
		endpoint:    endpoint,
		cfg:         cfg,
		pageContext: pageContext,
		httpClient:  &http.Client{Timeout: cfg.APITimeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		logger:      logger.Named("gateway.gemini"),
	}, nil
}

// Suggest asks the model for candidate descriptors given everything that
// already failed. Returned candidates are validated and ordered as the model
// ranked them; unusable entries are dropped, not fatal.
func (g *GeminiGateway) Suggest(ctx context.Context, id locator.Identity, history []engine.Attempt) ([]locator.Descriptor, error) {
	// Budget guard: a drifted page under a big test suite could otherwise
	// hammer the API once per broken element.
	if !g.limiter.Allow() {
		return nil, fmt.Errorf("%w: request rate limit exceeded", ErrUnavailable)
	}

	prompt := g.buildPrompt(ctx, id, history)

	body, err := json.Marshal(geminiRequestPayload{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      g.cfg.Temperature,
			ResponseMimeType: "application/json",
			MaxOutputTokens:  g.cfg.MaxOutputTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("Gateway returned non-OK status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(respBody, 512)))
		return nil, fmt.Errorf("%w: API status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload geminiResponsePayload
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response payload: %v", ErrUnavailable, err)
	}
	if len(payload.Candidates) == 0 {
		return nil, fmt.Errorf("%w: API returned no candidates", ErrUnavailable)
	}

	var text strings.Builder
	for _, part := range payload.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return g.parseSuggestions(text.String()), nil
}

// buildPrompt assembles the healing prompt: identity, every failed attempt
// with its outcome, and (when available) a digest of the live page.
func (g *GeminiGateway) buildPrompt(ctx context.Context, id locator.Identity, history []engine.Attempt) string {
	var b strings.Builder
	b.WriteString("You are repairing broken element locators for a browser test.\n")
	fmt.Fprintf(&b, "Target element key: %s\n\n", id.String())
	b.WriteString("Every locator below failed against the current page:\n")
	for _, a := range history {
		fmt.Fprintf(&b, "- strategy=%s value=%s outcome=%s (tier %s)\n",
			a.Descriptor.Strategy, a.Descriptor.Value, a.Outcome, a.Tier)
	}

	if g.pageContext != nil {
		digest, err := g.pageContext(ctx)
		if err != nil {
			g.logger.Warn("Failed to capture page digest for prompt", zap.Error(err))
		} else if digest != "" {
			b.WriteString("\nVisible interactive elements on the current page:\n")
			b.WriteString(digest)
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Respond with ONLY a JSON array of replacement locators, best first, like:
[{"strategy":"css","value":"button[type=\"submit\"]"},{"strategy":"xpath","value":"//button[normalize-space()='Submit']"}]
Allowed strategies: id, css, xpath, name, class, tag, link-text, partial-link-text.
Prefer attributes that survive page redesigns (type, name, aria-*, visible text).`)
	return b.String()
}

// parseSuggestions tolerates fenced output and skips malformed entries.
func (g *GeminiGateway) parseSuggestions(raw string) []locator.Descriptor {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var suggestions []suggestion
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		// Some models wrap the array in an object despite instructions.
		var wrapped struct {
			Locators []suggestion `json:"locators"`
		}
		if err2 := json.Unmarshal([]byte(raw), &wrapped); err2 != nil || len(wrapped.Locators) == 0 {
			g.logger.Warn("Failed to parse gateway suggestions", zap.Error(err))
			return nil
		}
		suggestions = wrapped.Locators
	}

	out := make([]locator.Descriptor, 0, len(suggestions))
	for _, s := range suggestions {
		d, err := locator.New(s.Strategy, s.Value)
		if err != nil {
			g.logger.Warn("Discarding unusable suggestion",
				zap.String("strategy", s.Strategy),
				zap.String("value", s.Value),
				zap.Error(err))
			continue
		}
		out = append(out, d)
	}
	return out
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
