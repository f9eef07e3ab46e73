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

// MeshyClient talks to the Meshy text-to-3D API. Create and refine return a
// provider task id immediately; callers poll the status endpoint until the
// task reaches a terminal state.
type MeshyClient struct {
	cfg        config.MeshyConfig
	httpClient *http.Client
}

// NewMeshyClient creates the 3D-generation provider.
func NewMeshyClient(cfg config.MeshyConfig) *MeshyClient {
	return &MeshyClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *MeshyClient) Name() string { return "meshy" }

// Available reports whether an API key is configured.
func (c *MeshyClient) Available() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Invoke dispatches on capability: create and refine submit tasks, status
// fetches the raw task payload for the caller to relay.
func (c *MeshyClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	switch req.Capability {
	case ThreeDCreate:
		return c.createTask(ctx, map[string]any{
			"prompt":        sanitizePrompt(req.Prompt),
			"mode":          "preview",
			"art_style":     sanitizePrompt(req.ArtStyle),
			"should_remesh": false,
			"seed":          req.Seed,
		})
	case ThreeDRefine:
		if req.TaskID == "" {
			return nil, Errorf(KindInvalidInput, "refine requires a preview task id")
		}
		return c.createTask(ctx, map[string]any{
			"mode":            "refine",
			"preview_task_id": req.TaskID,
			"prompt":          sanitizePrompt(req.Prompt),
		})
	case ThreeDStatus:
		return c.taskStatus(ctx, req.TaskID)
	default:
		return nil, Errorf(KindInvalidInput, "meshy does not support "+string(req.Capability))
	}
}

// createTask submits a text-to-3d task. The upstream response must carry the
// task id in its "result" field; anything else is a parse failure and no
// task record may be persisted from it.
func (c *MeshyClient) createTask(ctx context.Context, body map[string]any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Errorf(KindInvalidInput, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/text-to-3d", bytes.NewReader(payload))
	if err != nil {
		return nil, Errorf(KindInvalidInput, "create request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, Errorf(KindUpstream, fmt.Sprintf("create task failed: %d / %s", resp.StatusCode, string(raw)))
	}

	var parsed struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, Errorf(KindParse, "decode task response: "+err.Error())
	}
	if parsed.Result == "" {
		return nil, Errorf(KindParse, "task response carried no result task id")
	}
	return &Response{TaskID: parsed.Result, Raw: raw}, nil
}

func (c *MeshyClient) taskStatus(ctx context.Context, taskID string) (*Response, error) {
	if taskID == "" {
		return nil, Errorf(KindInvalidInput, "task id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/text-to-3d/"+taskID, nil)
	if err != nil {
		return nil, Errorf(KindInvalidInput, "create request: "+err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, Errorf(KindUpstream, fmt.Sprintf("query task failed: %d", resp.StatusCode))
	}
	return &Response{TaskID: taskID, Raw: raw}, nil
}

// sanitizePrompt strips Unicode space separators that break the upstream
// JSON parser.
func sanitizePrompt(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 0x2000 && r <= 0x200F) || (r >= 0x2028 && r <= 0x202F) ||
			(r >= 0x205F && r <= 0x206F) || r == 0x00A0 {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
