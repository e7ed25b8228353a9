// Package sd is an HTTP client for Stable Diffusion web UI servers.
// It implements domain.ImageBackend: one client serves any number of
// endpoint addresses, so the dispatcher can fan a request across them.
package sd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/yuna-network/yuna/internal/domain"
)

// ─── Client ─────────────────────────────────────────────────────────────────

// Client talks to Stable Diffusion web UI API endpoints.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a client. Per-attempt deadlines come from the request
// context, so the underlying http.Client carries no timeout of its own.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

// txt2imgPayload is the wire format of POST /sdapi/v1/txt2img.
type txt2imgPayload struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Steps          int     `json:"steps"`
	CfgScale       float64 `json:"cfg_scale"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Seed           int64   `json:"seed"`
	BatchSize      int     `json:"batch_size"`
	NIter          int     `json:"n_iter"`
	SamplerName    string  `json:"sampler_name"`
}

// txt2imgResponse carries the generated images as base64 strings.
type txt2imgResponse struct {
	Images []string `json:"images"`
}

// Generate runs a text-to-image request against one endpoint and returns
// the decoded image bytes.
func (c *Client) Generate(ctx context.Context, address string, req domain.GenerationRequest) ([][]byte, error) {
	payload := txt2imgPayload{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		CfgScale:       req.CfgScale,
		Width:          req.Width,
		Height:         req.Height,
		Seed:           req.Seed,
		BatchSize:      req.BatchSize,
		NIter:          1,
		SamplerName:    req.SamplerName,
	}

	var resp txt2imgResponse
	if err := c.post(ctx, address, "/sdapi/v1/txt2img", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 {
		return nil, fmt.Errorf("endpoint %s returned no images", address)
	}

	images := make([][]byte, 0, len(resp.Images))
	for i, enc := range resp.Images {
		img, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decode image %d from %s: %w", i, address, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// ListModels returns the models installed on one endpoint.
func (c *Client) ListModels(ctx context.Context, address string) ([]domain.ModelInfo, error) {
	var models []domain.ModelInfo
	if err := c.get(ctx, address, "/sdapi/v1/sd-models", &models); err != nil {
		return nil, err
	}
	return models, nil
}

// SamplerInfo describes a sampler exposed by an endpoint.
type SamplerInfo struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// ListSamplers returns the samplers available on one endpoint.
func (c *Client) ListSamplers(ctx context.Context, address string) ([]SamplerInfo, error) {
	var samplers []SamplerInfo
	if err := c.get(ctx, address, "/sdapi/v1/samplers", &samplers); err != nil {
		return nil, err
	}
	return samplers, nil
}

// ─── HTTP Plumbing ──────────────────────────────────────────────────────────

func (c *Client) post(ctx context.Context, address, path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(address, path), bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, address, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(address, path), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Keep a slice of the body for diagnostics; remote errors are
		// plain text or JSON depending on the failure.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL, err)
	}
	return nil
}

func joinURL(address, path string) string {
	return strings.TrimRight(address, "/") + path
}
