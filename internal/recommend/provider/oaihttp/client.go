// Package oaihttp ranks candidates through an OpenAI-compatible chat completions endpoint.
package oaihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider"
)

const maxErrorBody = 1 << 20

type Client struct {
	id      string
	baseURL string
	apiKey  string
	model   string

	chatCompletionsPath string
	jsonMode            string
	timeout             time.Duration

	httpClient *http.Client
}

func New(cfg config.ProviderConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("oai_http: base_url required")
	}
	chatPath := strings.TrimSpace(cfg.ChatCompletionsPath)
	if chatPath == "" {
		chatPath = "/chat/completions"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.JSONMode))
	if mode == "" {
		mode = "json_object"
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		id:                  strings.TrimSpace(cfg.ID),
		baseURL:             baseURL,
		apiKey:              resolveAPIKey(cfg),
		model:               model,
		chatCompletionsPath: chatPath,
		jsonMode:            mode,
		timeout:             cfg.Timeout.Duration,
		httpClient:          &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.ProviderConfig, httpClient *http.Client) (*Client, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

// resolveAPIKey prefers the inline key, then api_key_env. A value in api_key_env that already
// looks like a key is used literally.
func resolveAPIKey(cfg config.ProviderConfig) string {
	if k := strings.TrimSpace(cfg.APIKey); k != "" {
		return k
	}
	env := strings.TrimSpace(cfg.APIKeyEnv)
	if env == "" {
		return ""
	}
	if strings.HasPrefix(env, "sk-") {
		return env
	}
	return strings.TrimSpace(os.Getenv(env))
}

func (c *Client) Name() string { return c.id }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"choices"`
}

func (c *Client) Rank(ctx context.Context, req provider.Request) (string, error) {
	if c.apiKey == "" {
		return "", provider.NewError(recommend.ErrConfig, c.id, errors.New("api key missing"))
	}

	msgs := []chatMessage{
		{Role: "system", Content: req.Prompt.System},
		{Role: "user", Content: req.Prompt.User},
	}
	body := chatCompletionRequest{Model: c.model, Messages: msgs, Temperature: 0}
	switch c.jsonMode {
	case "json_object":
		body.ResponseFormat = map[string]any{"type": "json_object"}
	case "prompt":
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: "Return ONLY valid JSON. Do not include markdown or commentary."})
	}

	var resp chatCompletionResponse
	if err := c.doJSON(ctx, http.MethodPost, c.chatCompletionsPath, body, &resp, req.TraceID); err != nil {
		return "", c.wrap(err)
	}
	text := extractChatText(resp)
	if strings.TrimSpace(text) == "" {
		return "", provider.NewError(recommend.ErrParsing, c.id, errors.New("empty upstream completion"))
	}
	return text, nil
}

func (c *Client) wrap(err error) error {
	var he *HTTPError
	if errors.As(err, &he) {
		return provider.NewError(provider.ClassifyStatus(he.StatusCode), c.id, err)
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return provider.NewError(recommend.ErrParsing, c.id, err)
	}
	return provider.NewError(provider.Classify(err), c.id, err)
}

func extractChatText(resp chatCompletionResponse) string {
	for _, ch := range resp.Choices {
		if strings.TrimSpace(ch.Message.Content) != "" {
			return ch.Message.Content
		}
		if strings.TrimSpace(ch.Text) != "" {
			return ch.Text
		}
	}
	return ""
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any, traceID string) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx2 := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx2, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if traceID != "" {
		req.Header.Set("X-Request-Id", traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode chat completion: %w", err)
	}
	return nil
}
