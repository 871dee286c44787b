// Package gemini adapts the Google Gemini generate-content API to the
// relay's turn-based conversation model. Backend outcomes are reported as a
// discriminated Result so callers switch on a kind instead of inspecting
// error strings.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/agka1/agka-tg-bot/internal/session"
)

const (
	ModelFlash = "gemini-2.5-flash"
	ModelPro   = "gemini-2.5-pro"
)

// ModelFor maps a stored model preference to a backend model identifier.
// Anything other than the pro preference selects the flash model.
func ModelFor(preference string) string {
	if preference == session.PreferencePro {
		return ModelPro
	}
	return ModelFlash
}

// Kind classifies a generation outcome.
type Kind int

const (
	// KindText carries a usable reply.
	KindText Kind = iota
	// KindEmpty means the backend answered without usable content
	// (e.g. safety-filtered).
	KindEmpty
	// KindRateLimited means the backend reported quota exhaustion.
	KindRateLimited
	// KindError covers every other backend failure.
	KindError
)

// Result is the outcome of one generation call.
type Result struct {
	Kind Kind
	Text string
	Err  error
}

// Client wraps the genai SDK client with a bounded per-request timeout.
type Client struct {
	client  *genai.Client
	timeout time.Duration
}

func NewClient(ctx context.Context, apiKey string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("missing gemini api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{client: c, timeout: timeout}, nil
}

// Generate sends the full bounded history as context and classifies the
// outcome. It never returns a Go error; failures come back as Result kinds.
func (c *Client) Generate(ctx context.Context, model string, history []session.Turn) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, model, contentsFromTurns(history), nil)
	if err != nil {
		return classify(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Result{Kind: KindEmpty}
	}
	return Result{Kind: KindText, Text: text}
}

func contentsFromTurns(history []session.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		role := genai.Role(genai.RoleUser)
		if t.Role == session.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return contents
}

func classify(err error) Result {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED") {
			return Result{Kind: KindRateLimited, Err: err}
		}
	}
	return Result{Kind: KindError, Err: err}
}
