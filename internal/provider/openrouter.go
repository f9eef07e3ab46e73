package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ai-platform/aiplatform/internal/config"
)

// OpenRouterClient talks to an OpenAI-compatible chat-completions API.
type OpenRouterClient struct {
	cfg        config.OpenRouterConfig
	httpClient *http.Client
	base64For  func(fileName string) (string, error) // converts local uploads for multimodal calls
}

// NewOpenRouterClient creates the remote chat-completion provider.
// base64For resolves local upload file names to base64 payloads; it may be
// nil when multimodal analysis of local files is not needed.
func NewOpenRouterClient(cfg config.OpenRouterConfig, base64For func(string) (string, error)) *OpenRouterClient {
	return &OpenRouterClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		base64For:  base64For,
	}
}

func (c *OpenRouterClient) Name() string { return "openrouter" }

// Available reports whether an API key is configured.
func (c *OpenRouterClient) Available() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// chatMessage is the OpenAI message format. Content is either a plain string
// or a list of content parts for multimodal requests.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Invoke performs a chat completion. When req.ImageURL is set the prompt is
// sent as a multimodal message so the model analyzes the image.
func (c *OpenRouterClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Capability != ChatCompletion {
		return nil, Errorf(KindInvalidInput, "openrouter does not support "+string(req.Capability))
	}

	msg, err := c.buildMessage(req)
	if err != nil {
		return nil, err
	}

	body := chatRequest{
		Model:       c.resolveModel(req.Model),
		Messages:    []chatMessage{msg},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.7,
	}

	var out chatResponse
	if err := c.post(ctx, "/chat/completions", body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, Errorf(KindParse, "chat completion response carried no choices")
	}
	return &Response{Text: out.Choices[0].Message.Content}, nil
}

// resolveModel substitutes the configured default and maps the pseudo local
// model id onto its actual remote counterpart.
func (c *OpenRouterClient) resolveModel(model string) string {
	if model == "" || model == "qwen2.5b-local" {
		return c.cfg.Model
	}
	return model
}

func (c *OpenRouterClient) buildMessage(req Request) (chatMessage, error) {
	if req.ImageURL == "" {
		return chatMessage{Role: "user", Content: req.Prompt}, nil
	}

	// Local uploads cannot be fetched by the remote API; embed as base64.
	url := req.ImageURL
	if c.base64For != nil && strings.Contains(url, "/api/files/") {
		fileName := url[strings.LastIndex(url, "/")+1:]
		b64, err := c.base64For(fileName)
		if err != nil {
			return chatMessage{}, Errorf(KindInvalidInput, "read attached image: "+err.Error())
		}
		url = "data:image/png;base64," + b64
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = "请分析这张图片"
	}
	return chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: url, Detail: "auto"}},
		},
	}, nil
}

func (c *OpenRouterClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return Errorf(KindInvalidInput, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return Errorf(KindInvalidInput, "create request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Errorf(KindUpstream, fmt.Sprintf("API error %d: %s", resp.StatusCode, string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Errorf(KindParse, "decode response: "+err.Error())
	}
	return nil
}

// classifyTransportError maps network-level failures onto the error taxonomy.
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return Errorf(KindTimeout, err.Error())
	}
	return Errorf(KindUnavailable, err.Error())
}
