// Package openai 基于 github.com/sashabaranov/go-openai 的 OpenAI 兼容生成器。
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"ppsplan/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL     string   `json:"base_url"`    // 例如 https://api.openai.com/v1
	Model       string   `json:"model"`       // 为空则使用默认
	APIKeyEnv   string   `json:"api_key_env"` // 优先从环境变量读取
	APIKey      string   `json:"api_key"`     // 明文传入（不推荐，按需用于测试）
	Temperature *float32 `json:"temperature,omitempty"`
	// 第三方兼容（OpenRouter/本地网关等）：追加/覆盖请求头。
	ExtraHeaders map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
}

type Client struct {
	c     *goopenai.Client
	key   string
	model string
	temp  *float32
}

// New 构造客户端。缺少密钥时仍可构造，调用时返回 CREDENTIAL_MISSING。
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
	cfg := goopenai.DefaultConfig(key)
	cfg.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if len(o.ExtraHeaders) > 0 {
		cfg.HTTPClient = &http.Client{Transport: headerTransport{base: http.DefaultTransport, headers: o.ExtraHeaders}}
	}
	return &Client{c: goopenai.NewClientWithConfig(cfg), key: key, model: o.Model, temp: o.Temperature}, nil
}

// headerTransport 为每个请求追加固定请求头。
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range t.headers {
		if k != "" {
			r.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(r)
}

// Generate: 单次调用，同步返回首个 choice 的内容。
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.key == "" {
		return "", contract.ErrCredentialMissing
	}
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if c.temp != nil {
		req.Temperature = *c.temp
	}
	resp, err := c.c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", contract.ErrResponseInvalid
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	status, msg := 0, ""
	var ae *goopenai.APIError
	var re *goopenai.RequestError
	switch {
	case errors.As(err, &ae):
		status, msg = ae.HTTPStatusCode, ae.Message
	case errors.As(err, &re):
		status = re.HTTPStatusCode
		if re.Err != nil {
			msg = re.Err.Error()
		}
	default:
		return fmt.Errorf("%w: %v", contract.ErrNetwork, err)
	}
	switch status {
	case http.StatusTooManyRequests:
		return contract.ErrRateLimited
	case http.StatusUnauthorized:
		return contract.ErrCredentialInvalid
	default:
		return &contract.HTTPError{Status: status, Message: msg}
	}
}

var _ contract.Generator = (*Client)(nil)
