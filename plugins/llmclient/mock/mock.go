// Package mock 是无网络的确定性生成器，用于联调与测试。
package mock

import (
	"context"
	"strings"
	"time"

	"ppsplan/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	Prefix string `json:"prefix"` // 输出前缀，默认 "MOCK"
	// APIKey: 仅用于限流分组（调试用），不参与任何网络请求。
	APIKey string `json:"api_key"`
	// ResponseMode:
	//  - "" / "task": 回显提示词中 "TUGAS:" 之后的任务句（默认）；
	//  - "quoted": 同上，但包一层双引号（验证输出规整）；
	//  - "echo": 原样回显整个提示词；
	//  - "empty": 返回空白文本。
	ResponseMode string `json:"response_mode,omitempty"`
	// DelayMS: 每次调用的模拟延迟（响应取消）。
	DelayMS int `json:"delay_ms,omitempty"`
}

type Client struct {
	prefix string
	mode   string
	delay  time.Duration
}

func New(opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Prefix == "" {
		o.Prefix = "MOCK"
	}
	mode := strings.TrimSpace(o.ResponseMode)
	if mode == "" {
		mode = "task"
	}
	return &Client{prefix: o.Prefix, mode: mode, delay: time.Duration(o.DelayMS) * time.Millisecond}, nil
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch c.mode {
	case "echo":
		return c.prefix + ": " + prompt, nil
	case "empty":
		return "  ", nil
	case "quoted":
		return `"` + c.prefix + ": " + task(prompt) + `"`, nil
	default:
		return c.prefix + ": " + task(prompt), nil
	}
}

// task 取 "TUGAS:" 之后到第一个句点的内容；缺失时取首行。
func task(p string) string {
	if i := strings.Index(p, "TUGAS:"); i >= 0 {
		s := strings.TrimSpace(p[i+len("TUGAS:"):])
		if j := strings.Index(s, "."); j >= 0 {
			s = s[:j]
		}
		return s
	}
	line, _, _ := strings.Cut(p, "\n")
	return strings.TrimSpace(line)
}

var _ contract.Generator = (*Client)(nil)
