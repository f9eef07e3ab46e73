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

// DashScopeClient talks to the DashScope image-synthesis API. Generation is
// asynchronous upstream: a task is submitted, then polled until it reaches a
// terminal state, and the resulting image URL is returned to the caller.
type DashScopeClient struct {
	cfg        config.DashScopeConfig
	httpClient *http.Client

	pollInterval time.Duration
	maxPolls     int
}

// NewDashScopeClient creates the image-synthesis provider.
func NewDashScopeClient(cfg config.DashScopeConfig) *DashScopeClient {
	return &DashScopeClient{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: 2 * time.Second,
		maxPolls:     30,
	}
}

func (c *DashScopeClient) Name() string { return "dashscope" }

// Available reports whether an API key is configured.
func (c *DashScopeClient) Available() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

type synthesisInput struct {
	Prompt       string `json:"prompt"`
	BaseImageURL string `json:"base_image_url,omitempty"`
}

type synthesisParams struct {
	Style string `json:"style,omitempty"`
	Size  string `json:"size,omitempty"`
	N     int    `json:"n"`
}

type synthesisRequest struct {
	Model      string          `json:"model"`
	Input      synthesisInput  `json:"input"`
	Parameters synthesisParams `json:"parameters"`
}

type synthesisTask struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
	} `json:"output"`
	Message string `json:"message"`
}

// Invoke submits an image-synthesis task and waits for its result.
func (c *DashScopeClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	switch req.Capability {
	case ImageFromText, ImageFromImage:
	default:
		return nil, Errorf(KindInvalidInput, "dashscope does not support "+string(req.Capability))
	}

	model := req.Model
	if model == "" || model == "qwen2.5b-local" {
		model = c.cfg.Model
	}
	size := req.Size
	if size == "" {
		size = c.cfg.Size
	}

	body := synthesisRequest{
		Model: model,
		Input: synthesisInput{Prompt: req.Prompt},
		Parameters: synthesisParams{
			Style: req.ArtStyle,
			Size:  size,
			N:     1,
		},
	}
	if req.Capability == ImageFromImage {
		if req.ImageURL == "" {
			return nil, Errorf(KindInvalidInput, "image-to-image requires a source image")
		}
		body.Input.BaseImageURL = req.ImageURL
	}

	taskID, err := c.submit(ctx, body)
	if err != nil {
		return nil, err
	}
	return c.waitForResult(ctx, taskID)
}

func (c *DashScopeClient) submit(ctx context.Context, body synthesisRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", Errorf(KindInvalidInput, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/services/aigc/text2image/image-synthesis",
		bytes.NewReader(payload))
	if err != nil {
		return "", Errorf(KindInvalidInput, "create request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("X-DashScope-Async", "enable")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", Errorf(KindUpstream, fmt.Sprintf("API error %d: %s", resp.StatusCode, string(respBody)))
	}

	var task synthesisTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return "", Errorf(KindParse, "decode task response: "+err.Error())
	}
	if task.Output.TaskID == "" {
		return "", Errorf(KindParse, "task response carried no task_id")
	}
	return task.Output.TaskID, nil
}

func (c *DashScopeClient) waitForResult(ctx context.Context, taskID string) (*Response, error) {
	for i := 0; i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, Errorf(KindTimeout, "image generation cancelled: "+ctx.Err().Error())
		case <-time.After(c.pollInterval):
		}

		task, err := c.queryTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch task.Output.TaskStatus {
		case "SUCCEEDED":
			if len(task.Output.Results) == 0 || task.Output.Results[0].URL == "" {
				return nil, Errorf(KindParse, "succeeded task carried no image url")
			}
			return &Response{ImageURL: task.Output.Results[0].URL}, nil
		case "FAILED", "CANCELED":
			return nil, Errorf(KindUpstream, "image generation failed: "+task.Message)
		}
		// PENDING / RUNNING: keep polling
	}
	return nil, Errorf(KindTimeout, "image generation did not finish in time")
}

func (c *DashScopeClient) queryTask(ctx context.Context, taskID string) (*synthesisTask, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, Errorf(KindInvalidInput, "create request: "+err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, Errorf(KindUpstream, fmt.Sprintf("API error %d: %s", resp.StatusCode, string(respBody)))
	}

	var task synthesisTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, Errorf(KindParse, "decode task status: "+err.Error())
	}
	return &task, nil
}
