package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ai-platform/aiplatform/internal/config"
)

// LocalClient is the local-fallback chat provider. When an OpenAI-compatible
// endpoint is configured it proxies to it; otherwise it produces a canned
// simulated reply so conversation keeps working with no upstream at all.
type LocalClient struct {
	cfg        config.LocalConfig
	httpClient *http.Client
}

// NewLocalClient creates the local fallback provider.
func NewLocalClient(cfg config.LocalConfig) *LocalClient {
	return &LocalClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *LocalClient) Name() string { return "local" }

// Available reports whether the fallback is enabled. The stub path needs no
// credentials, so enabled means available.
func (c *LocalClient) Available() bool {
	return c.cfg.Enabled
}

// Invoke answers a chat completion, proxying when an endpoint is configured.
func (c *LocalClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Capability != ChatCompletion {
		return nil, Errorf(KindInvalidInput, "local model does not support "+string(req.Capability))
	}

	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return &Response{Text: c.simulate(req.Prompt)}, nil
	}
	return c.proxy(ctx, req)
}

func (c *LocalClient) simulate(prompt string) string {
	return "[本地模型] " + truncate(prompt, 60) + " —— 本地模型当前以模拟模式运行，已收到您的消息。"
}

func (c *LocalClient) proxy(ctx context.Context, req Request) (*Response, error) {
	body := map[string]any{
		"model": "qwen2.5b-local",
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens":  1000,
		"temperature": 0.7,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Errorf(KindInvalidInput, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, Errorf(KindInvalidInput, "create request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, Errorf(KindUpstream, fmt.Sprintf("API error %d: %s", resp.StatusCode, string(respBody)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, Errorf(KindParse, "decode response: "+err.Error())
	}
	if len(out.Choices) == 0 {
		return nil, Errorf(KindParse, "local model response carried no choices")
	}
	return &Response{Text: out.Choices[0].Message.Content}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
