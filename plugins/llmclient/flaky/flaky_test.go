package flaky

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ppsplan/pkg/contract"
)

// TestSequence 限流 → 空白 → 成功
func TestSequence(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "flaky.log")
	c, _ := New(&Options{RateLimited: 2, LogPath: logPath})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.Generate(ctx, "p"); !errors.Is(err, contract.ErrRateLimited) {
			t.Fatalf("第 %d 次应限流: %v", i+1, err)
		}
	}
	if out, err := c.Generate(ctx, "p"); err != nil || strings.TrimSpace(out) != "" {
		t.Fatalf("第 3 次应为空白: %q %v", out, err)
	}
	if out, err := c.Generate(ctx, "p"); err != nil || out != "FLAKY: ok" {
		t.Fatalf("第 4 次应成功: %q %v", out, err)
	}
	if c.Calls() != 4 {
		t.Fatalf("调用计数错误: %d", c.Calls())
	}
	b, err := os.ReadFile(logPath)
	if err != nil || string(b) != "rate_limited\nrate_limited\nempty\nok\n" {
		t.Fatalf("日志错误: %q %v", b, err)
	}
}
