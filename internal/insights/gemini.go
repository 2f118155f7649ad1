package insights

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"budgetbot/internal/retry"
)

var ErrEmptyResponse = errors.New("gemini returned no text")

// Generator turns a prompt into a short narrative.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	retryOpts  []retry.Option
}

type GeminiOption func(*GeminiClient)

func WithGeminiBaseURL(u string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithGeminiRetry(p retry.Policy, opts ...retry.Option) GeminiOption {
	return func(c *GeminiClient) {
		c.policy = p
		c.retryOpts = opts
	}
}

func NewGeminiClient(apiKey, model string, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		policy:     retry.Exponential(2, 250*time.Millisecond),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})
	if err != nil {
		return "", fmt.Errorf("marshaling gemini request: %w", err)
	}
	endpoint := c.baseURL + "/models/" + url.PathEscape(c.model) + ":generateContent"

	var text string
	_, err = retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("calling gemini: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("gemini returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
		}

		var out geminiResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return retry.Permanent(fmt.Errorf("decoding gemini response: %w", err))
		}
		var sb strings.Builder
		for _, cand := range out.Candidates {
			for _, p := range cand.Content.Parts {
				sb.WriteString(p.Text)
			}
			if sb.Len() > 0 {
				break
			}
		}
		if sb.Len() == 0 {
			return retry.Permanent(ErrEmptyResponse)
		}
		text = strings.TrimSpace(sb.String())
		return nil
	}, c.retryOpts...)
	if err != nil {
		return "", err
	}
	return text, nil
}
