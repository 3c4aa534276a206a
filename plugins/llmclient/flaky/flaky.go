// Package flaky 是带状态的调试生成器，用于演练重试与失败标记。
package flaky

import (
	"context"
	"os"
	"sync/atomic"

	"ppsplan/pkg/contract"
)

// Options 定义可选项。
type Options struct {
	Prefix string `json:"prefix"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
	// RateLimited: 开头连续返回 RATE_LIMIT 的次数，默认 1。
	RateLimited int `json:"rate_limited,omitempty"`
}

// Client:
// 前 RateLimited 次调用返回 ErrRateLimited；
// 下一次返回空白文本（RESPONSE_INVALID）；
// 之后返回 "<prefix>: ok #n"。
type Client struct {
	prefix  string
	logPath string
	limited int32
	count   atomic.Int32
}

// New 构造 Client。
func New(opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Prefix == "" {
		o.Prefix = "FLAKY"
	}
	if o.RateLimited <= 0 {
		o.RateLimited = 1
	}
	return &Client{prefix: o.Prefix, logPath: o.LogPath, limited: int32(o.RateLimited)}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Generate 实现 contract.Generator。
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n := c.count.Add(1)
	switch {
	case n <= c.limited:
		c.log("rate_limited")
		return "", contract.ErrRateLimited
	case n == c.limited+1:
		c.log("empty")
		return " ", nil
	default:
		c.log("ok")
		return c.prefix + ": ok", nil
	}
}

// Calls 返回累计调用次数。
func (c *Client) Calls() int { return int(c.count.Load()) }

var _ contract.Generator = (*Client)(nil)
