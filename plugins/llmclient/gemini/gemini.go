// Package gemini 基于 google.golang.org/genai 的 Gemini 生成器。
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"google.golang.org/genai"

	"ppsplan/pkg/contract"
)

// Options: Gemini API 最小必需。
type Options struct {
	BaseURL   string `json:"base_url"`    // 为空使用 SDK 默认端点
	Model     string `json:"model"`       // 默认 gemini-2.0-flash
	APIKeyEnv string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey    string `json:"api_key"`
	// 生成温度（可选）。
	Temperature *float32 `json:"temperature,omitempty"`
}

func (o *Options) defaults() {
	if o.Model == "" {
		o.Model = "gemini-2.0-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
}

// Client: 缺少密钥时仍可构造，调用时返回 CREDENTIAL_MISSING。
type Client struct {
	opts Options
	key  string

	mu sync.Mutex
	gc *genai.Client
}

// New 构造客户端；SDK 客户端在首次调用时惰性创建。
func New(opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	o.defaults()
	key := strings.TrimSpace(o.APIKey)
	if key == "" && o.APIKeyEnv != "" {
		key = strings.TrimSpace(os.Getenv(o.APIKeyEnv))
	}
	return &Client{opts: o, key: key}, nil
}

func (c *Client) client(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gc != nil {
		return c.gc, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  c.key,
		Backend: genai.BackendGeminiAPI,
	}
	if c.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(c.opts.BaseURL, "/") + "/"}
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w: %v", contract.ErrInvalidInput, err)
	}
	c.gc = gc
	return gc, nil
}

// Generate 发送单轮 user 提示词并返回首个候选文本。
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.key == "" {
		return "", contract.ErrCredentialMissing
	}
	gc, err := c.client(ctx)
	if err != nil {
		return "", err
	}
	var cfg *genai.GenerateContentConfig
	if c.opts.Temperature != nil {
		cfg = &genai.GenerateContentConfig{Temperature: c.opts.Temperature}
	}
	resp, err := gc.Models.GenerateContent(ctx, c.opts.Model, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}, cfg)
	if err != nil {
		return "", classify(ctx, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", contract.ErrResponseInvalid
	}
	return text, nil
}

// classify 将 SDK 错误映射为契约错误分类。
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ae genai.APIError
	var pae *genai.APIError
	switch {
	case errors.As(err, &ae):
	case errors.As(err, &pae) && pae != nil:
		ae = *pae
	default:
		// 非 API 错误均为传输失败（连接被拒、DNS、超时等）
		return fmt.Errorf("%w: %v", contract.ErrNetwork, err)
	}
	switch {
	case ae.Code == http.StatusTooManyRequests:
		return contract.ErrRateLimited
	case ae.Code == http.StatusBadRequest && strings.Contains(ae.Message, "API key not valid"):
		return contract.ErrCredentialInvalid
	default:
		return &contract.HTTPError{Status: ae.Code, Message: ae.Message}
	}
}

var _ contract.Generator = (*Client)(nil)
