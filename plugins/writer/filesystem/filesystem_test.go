package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ppsplan/pkg/contract"
)

func noTmp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// TestWriteAtomicReplace 原子写入并替换已有文件
func TestWriteAtomicReplace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := New(&Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	id := contract.ArtifactID("Hasil PPS - 2026-01-02.csv")
	for _, v := range []string{"v1", "v2"} {
		if err := w.Write(context.Background(), id, bytes.NewBufferString(v)); err != nil {
			t.Fatalf("write %s: %v", v, err)
		}
	}
	b, err := os.ReadFile(filepath.Join(dir, string(id)))
	if err != nil || string(b) != "v2" {
		t.Fatalf("expect replaced content v2, got %q %v", b, err)
	}
	noTmp(t, dir)
}

// TestWriteFlattens 仅保留基名；非法名拒绝
func TestWriteFlattens(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	p, err := w.Path("../../etc/Hasil.doc")
	if err != nil || p != filepath.Join(dir, "Hasil.doc") {
		t.Fatalf("path: %q %v", p, err)
	}
	for _, id := range []string{"..", ".", ""} {
		if _, err := w.Path(contract.ArtifactID(id)); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("id %q expect invalid, got %v", id, err)
		}
	}
}

// TestWriteNonAtomic 直接覆盖写
func TestWriteNonAtomic(t *testing.T) {
	dir := t.TempDir()
	a := false
	w, _ := New(&Options{OutputDir: dir, Atomic: &a})
	if err := w.Write(context.Background(), "out.txt", bytes.NewBufferString("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if b, _ := os.ReadFile(filepath.Join(dir, "out.txt")); string(b) != "v" {
		t.Fatalf("file not created")
	}
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "a.txt", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx error, got %v", err)
	}
}

// TestNewDefaults 缺省输出目录为当前目录
func TestNewDefaults(t *testing.T) {
	w, err := New(nil)
	if err != nil || w.root != "." || !w.atomic {
		t.Fatalf("defaults: %+v %v", w, err)
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// TestWriteAtomicCopyError 原子写入时拷贝失败不留临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	if err := w.Write(context.Background(), "a.txt", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp files left %v", entries)
	}
}

// TestReaderWithCtxCancel reader 在读取前取消
func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	if _, err := r.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expect ctx error")
	}
}
