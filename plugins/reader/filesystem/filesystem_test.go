package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"ppsplan/pkg/contract"
)

func collect(t *testing.T, r *FileSystem, roots ...string) ([]string, error) {
	t.Helper()
	var ids []string
	err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		ids = append(ids, filepath.Base(string(id)))
		return nil
	})
	return ids, err
}

// TestIterateSingleFile 读取单文件
func TestIterateSingleFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "PPS.xlsx")
	os.WriteFile(fp, []byte("hello"), 0o644)
	var got []byte
	err := New(nil).Iterate(context.Background(), []string{fp}, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		got = append(got, b...)
		if id != contract.NormalizeFileID(fp) {
			t.Fatalf("file id mismatch %s", id)
		}
		return nil
	})
	if err != nil || string(got) != "hello" {
		t.Fatalf("iterate: %v %q", err, string(got))
	}
}

// TestIterateDirFilters 扩展名过滤、锁文件跳过、排除目录与稳定顺序
func TestIterateDirFilters(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.CSV", "a.xlsx", "~$a.xlsx", "notes.txt"} {
		os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644)
	}
	os.Mkdir(filepath.Join(dir, "arsip"), 0o755)
	os.WriteFile(filepath.Join(dir, "arsip", "old.xlsx"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "c.csv"), []byte("x"), 0o644)

	ids, err := collect(t, New(&Options{ExcludeDirNames: []string{"ARSIP"}}), dir)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	want := []string{"c.csv", "a.xlsx", "b.CSV"}
	if len(ids) != len(want) {
		t.Fatalf("unexpected files %#v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("顺序错误: %#v", ids)
		}
	}
}

// TestIterateUnsupportedFile 显式给出不支持的文件
func TestIterateUnsupportedFile(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(fp, []byte("x"), 0o644)
	if _, err := collect(t, New(nil), fp); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect ErrInvalidInput, got %v", err)
	}
	if _, err := collect(t, New(&Options{Extensions: []string{"txt"}}), fp); err != nil {
		t.Fatalf("自定义扩展名应接受: %v", err)
	}
	if _, err := collect(t, New(nil)); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("空 roots 应报错")
	}
}

// TestIterateYieldError yield 出错时中止
func TestIterateYieldError(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "b.csv"), []byte("x"), 0o644)
	boom := errors.New("boom")
	n := 0
	err := New(nil).Iterate(context.Background(), []string{dir}, func(contract.FileID, io.ReadCloser) error {
		n++
		return boom
	})
	if !errors.Is(err, boom) || n != 1 {
		t.Fatalf("应在首个错误处停止: %v n=%d", err, n)
	}
}

// TestIterateCanceled 取消
func TestIterateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Iterate(ctx, []string{t.TempDir()}, func(contract.FileID, io.ReadCloser) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect canceled, got %v", err)
	}
}

// TestIterateMissing 不存在的路径
func TestIterateMissing(t *testing.T) {
	if _, err := collect(t, New(nil), filepath.Join(t.TempDir(), "none.xlsx")); err == nil {
		t.Fatalf("expect error")
	}
}
