// Package gemini is the Google Gemini chat provider. It speaks the same
// ChatMessage contract as the OpenAI client so the engine can switch
// providers by configuration.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// generator is the slice of *genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	getter      Getter
	paramPrefix string
	temperature *float32

	mu  sync.Mutex
	gen generator
}

type Option func(*Client)

func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = &t }
}

// NewClient returns a client whose API key is read from
// <paramPrefix>/gemini-token on first use.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("gemini: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}
	c := &Client{getter: ps, paramPrefix: paramPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// models builds the genai client on first success. A failed token read or
// client construction is retried on the next call.
func (c *Client) models(ctx context.Context) (generator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != nil {
		return c.gen, nil
	}
	raw, err := c.getter.GetParameter(ctx, c.paramPrefix+"/gemini-token")
	if err != nil {
		return nil, fmt.Errorf("gemini: fetch token from paramstore: %w", err)
	}
	var tp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return nil, fmt.Errorf("gemini: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return nil, errors.New("gemini: API token is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  tp.Token,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.gen = client.Models
	return c.gen, nil
}

// Chat sends the conversation and returns the text of the first candidate.
// System messages become the system instruction.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	if model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	gen, err := c.models(ctx)
	if err != nil {
		return "", err
	}

	system, contents := toContents(messages)
	if len(contents) == 0 {
		return "", errors.New("gemini: no user content to send")
	}
	cfg := &genai.GenerateContentConfig{Temperature: c.temperature}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := gen.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

func toContents(messages []domain.ChatMessage) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant", "model", string(domain.RoleBot):
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
