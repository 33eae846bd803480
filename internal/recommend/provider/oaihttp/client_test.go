package oaihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-recommender/internal/config"
	"github.com/yungbote/neurobridge-recommender/internal/recommend"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/prompt"
	"github.com/yungbote/neurobridge-recommender/internal/recommend/provider"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, v any) *http.Response {
	b, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(b)),
	}
}

func baseCfg() config.ProviderConfig {
	return config.ProviderConfig{
		ID:      "openai",
		Type:    "oai_http",
		BaseURL: "http://upstream/v1/",
		Model:   "gpt-test",
		APIKey:  "sk-test",
		Timeout: config.Duration{Duration: 2 * time.Second},
	}
}

func TestRankSendsChatCompletion(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/v1/chat/completions" {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
				t.Fatalf("authorization=%q", got)
			}
			var in chatCompletionRequest
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				t.Fatalf("decode req: %v", err)
			}
			if in.Model != "gpt-test" || in.Temperature != 0 {
				t.Fatalf("model=%q temperature=%v", in.Model, in.Temperature)
			}
			if in.ResponseFormat["type"] != "json_object" {
				t.Fatalf("response_format=%v", in.ResponseFormat)
			}
			if len(in.Messages) != 2 || in.Messages[0].Role != "system" || in.Messages[1].Content != `{"limit":1}` {
				t.Fatalf("messages=%+v", in.Messages)
			}
			return jsonResponse(http.StatusOK, map[string]any{
				"choices": []any{map[string]any{"message": map[string]any{"content": `{"items":[]}`}}},
			}), nil
		}),
	}

	c, err := NewWithHTTPClient(baseCfg(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	out, err := c.Rank(context.Background(), provider.Request{Prompt: prompt.Prompt{System: "sys", User: `{"limit":1}`}})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if out != `{"items":[]}` {
		t.Fatalf("out=%q", out)
	}
}

func TestRankClassifiesHTTPErrors(t *testing.T) {
	cases := map[int]recommend.ErrorClass{
		http.StatusUnauthorized:        recommend.ErrUnauthorized,
		http.StatusTooManyRequests:     recommend.ErrRateLimited,
		http.StatusBadRequest:          recommend.ErrBadRequest,
		http.StatusBadGateway:          recommend.ErrUpstream,
		http.StatusGatewayTimeout:      recommend.ErrTimeout,
		http.StatusInternalServerError: recommend.ErrUpstream,
	}
	for status, want := range cases {
		status := status
		client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(status, map[string]any{"error": "nope"}), nil
		})}
		c, err := NewWithHTTPClient(baseCfg(), client)
		if err != nil {
			t.Fatalf("NewWithHTTPClient: %v", err)
		}
		_, err = c.Rank(context.Background(), provider.Request{})
		if got := provider.Classify(err); got != want {
			t.Fatalf("status=%d got=%q want=%q", status, got, want)
		}
	}
}

func TestMissingAPIKeyIsConfigError(t *testing.T) {
	cfg := baseCfg()
	cfg.APIKey = ""
	cfg.APIKeyEnv = "RECS_TEST_UNSET_OPENAI_KEY"
	c, err := NewWithHTTPClient(cfg, &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected without a key")
		return nil, nil
	})})
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	_, err = c.Rank(context.Background(), provider.Request{})
	if provider.Classify(err) != recommend.ErrConfig {
		t.Fatalf("got %v", err)
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("RECS_TEST_OPENAI_KEY", "from-env")
	if got := resolveAPIKey(config.ProviderConfig{APIKeyEnv: "RECS_TEST_OPENAI_KEY"}); got != "from-env" {
		t.Fatalf("env key=%q", got)
	}
	if got := resolveAPIKey(config.ProviderConfig{APIKeyEnv: "sk-literal"}); got != "sk-literal" {
		t.Fatalf("literal key=%q", got)
	}
}

func TestEmptyCompletionIsParsingError(t *testing.T) {
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, map[string]any{"choices": []any{}}), nil
	})}
	c, _ := NewWithHTTPClient(baseCfg(), client)
	_, err := c.Rank(context.Background(), provider.Request{})
	if provider.Classify(err) != recommend.ErrParsing {
		t.Fatalf("got %v", err)
	}
}
