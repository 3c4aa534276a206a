package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "ppsplan/internal/config"
)

const inputCSV = "Kode EP,Uraian Elemen Penilaian,Rekomendasi Hasil Survey,Rencana Perbaikan\n" +
	"1.1.1.1,Desc A,Rek A,\n" +
	"1.1.1.2,Desc B,,RTL lama\n" +
	"bad,Desc C,,\n"

// workdir 切换到临时目录并写入默认配置与输入文件。
func workdir(t *testing.T, mut func(*cfgpkg.Config)) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := cfgpkg.DefaultTemplateConfig()
	zero := 0
	cfg.Batch.CooldownMS = &zero
	if mut != nil {
		mut(&cfg)
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("config.json", b, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("pps.csv", []byte(inputCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := run(append([]string{"--status=false"}, args...), &out, &errb)
	return code, out.String(), errb.String()
}

func TestRunInitConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	code, out, _ := runCLI(t, "init-config", "conf")
	if code != 0 {
		t.Fatalf("run return %d", code)
	}
	if !strings.Contains(out, "config.json") {
		t.Fatalf("应输出生成的文件: %q", out)
	}
	if _, err := os.Stat(filepath.Join("conf", ".env")); err != nil {
		t.Fatalf(".env 未生成: %v", err)
	}
	// 再次执行不覆盖、不报错
	if code, out, _ := runCLI(t, "init-config", "conf"); code != 0 || out != "" {
		t.Fatalf("重复执行应跳过: %d %q", code, out)
	}
}

// 导入 → 批量生成 → 单条 → 导出 的完整流程（mock 生成器 + sqlite 快照）。
func TestRunFlow(t *testing.T) {
	workdir(t, nil)

	code, out, errs := runCLI(t, "import", "pps.csv")
	if code != 0 {
		t.Fatalf("import 返回 %d: %s", code, errs)
	}
	if !strings.Contains(out, "2 条目，跳过 1 行") {
		t.Fatalf("import 输出错误: %q", out)
	}

	code, out, errs = runCLI(t, "generate", "pps.csv", "--field", "rtl", "--chunk-size", "1")
	if code != 0 {
		t.Fatalf("generate 返回 %d: %s", code, errs)
	}
	if !strings.Contains(out, "总数=1 成功=1 失败=0 取消=0") {
		t.Fatalf("generate 输出错误: %q", out)
	}
	// 已持久化：再次运行无事可做
	code, out, _ = runCLI(t, "generate", "pps.csv", "--field", "rtl")
	if code != 0 || !strings.Contains(out, "没有需要生成") {
		t.Fatalf("第二次 generate 应无事可做: %d %q", code, out)
	}

	code, out, errs = runCLI(t, "fill", "pps.csv", "--item", "1.1.1.2-1", "--field", "indikator")
	if code != 0 || !strings.Contains(out, "[success]") {
		t.Fatalf("fill 失败: %d %q %s", code, out, errs)
	}

	code, out, errs = runCLI(t, "summarize", "pps.csv")
	if code != 0 || !strings.Contains(out, "MOCK") {
		t.Fatalf("summarize 失败: %d %q %s", code, out, errs)
	}

	code, _, errs = runCLI(t, "export", "pps.csv", "--format", "csv", "--out", "hasil")
	if code != 0 {
		t.Fatalf("export 返回 %d: %s", code, errs)
	}
	matches, _ := filepath.Glob(filepath.Join("hasil", "Hasil PPS - *.csv"))
	if len(matches) != 1 {
		t.Fatalf("导出文件缺失: %v", matches)
	}
	b, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(b), "RTL lama") || !strings.Contains(string(b), "MOCK") {
		t.Fatalf("导出内容错误: %s", b)
	}

	code, out, _ = runCLI(t, "template", "--out", "hasil")
	if code != 0 || !strings.HasPrefix(out, "Template PPS - ") {
		t.Fatalf("template 失败: %d %q", code, out)
	}

	code, out, _ = runCLI(t, "inventory", "pps.csv")
	if code != 0 || !strings.Contains(out, "Judul Dokumen") {
		t.Fatalf("inventory 失败: %d %q", code, out)
	}
}

func TestRunConfigErrors(t *testing.T) {
	workdir(t, nil)
	if code, _, _ := runCLI(t, "--config", "missing.json", "import", "pps.csv"); code != 3 {
		t.Fatalf("缺失配置应返回 3, got %d", code)
	}
	if code, _, _ := runCLI(t, "--llm", "nope", "import", "pps.csv"); code != 3 {
		t.Fatalf("未知 provider 应返回 3, got %d", code)
	}
	if code, _, _ := runCLI(t, "generate", "pps.csv"); code != 3 {
		t.Fatalf("缺少 --field 应返回 3, got %d", code)
	}
	if code, _, _ := runCLI(t, "generate", "pps.csv", "--field", "waktu"); code != 3 {
		t.Fatalf("无生成任务的字段应返回 3, got %d", code)
	}

	workdir(t, func(c *cfgpkg.Config) { c.Options.Reader = json.RawMessage(`{"unknown":1}`) })
	if code, _, _ := runCLI(t, "import", "pps.csv"); code != 3 {
		t.Fatalf("装配失败应返回 3, got %d", code)
	}
}

func TestRunInputErrors(t *testing.T) {
	workdir(t, nil)
	if err := os.WriteFile("empty.csv", []byte("Kode EP,Uraian\nbad,x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, _, _ := runCLI(t, "import", "empty.csv"); code != 3 {
		t.Fatalf("EMPTY_INPUT 应返回 3, got %d", code)
	}
	if code, _, _ := runCLI(t, "fill", "pps.csv", "--item", "x-9", "--field", "rtl"); code != 3 {
		t.Fatalf("未知条目应返回 3, got %d", code)
	}
}

// 缺少凭证：标记写入字段，退出码 1。
func TestRunCredentialMissing(t *testing.T) {
	workdir(t, nil)
	t.Setenv("GOOGLE_API_KEY", "")
	code, out, _ := runCLI(t, "--llm", "gemini", "fill", "pps.csv", "--item", "1.1.1.1-0", "--field", "rtl")
	if code != 1 {
		t.Fatalf("应返回 1, got %d", code)
	}
	if !strings.Contains(out, "Gagal diproses: CREDENTIAL_MISSING") {
		t.Fatalf("应写入失败标记: %q", out)
	}
}

func TestWithOutputDir(t *testing.T) {
	cfg := cfgpkg.DefaultTemplateConfig()
	withOutputDir("x")(&cfg)
	var m map[string]any
	if err := json.Unmarshal(cfg.Options.Writer, &m); err != nil {
		t.Fatal(err)
	}
	if m["output_dir"] != "x" || m["atomic"] != true {
		t.Fatalf("应只替换 output_dir: %v", m)
	}
	before := string(cfg.Options.Writer)
	withOutputDir(" ")(&cfg)
	if string(cfg.Options.Writer) != before {
		t.Fatal("空目录不应修改选项")
	}
}

func TestPreflightCheckOutputDir(t *testing.T) {
	dir := t.TempDir()
	cfg := cfgpkg.DefaultTemplateConfig()
	withOutputDir(filepath.Join(dir, "new"))(&cfg)
	if err := preflightCheckOutputDir(cfg); err != nil {
		t.Fatalf("父目录可写时应通过: %v", err)
	}
	file := filepath.Join(dir, "f")
	_ = os.WriteFile(file, nil, 0o644)
	withOutputDir(file)(&cfg)
	if err := preflightCheckOutputDir(cfg); err == nil {
		t.Fatal("文件路径应失败")
	}
}

func TestParseField(t *testing.T) {
	if f, err := parseField(" RTL "); err != nil || f != "corrective_plan" {
		t.Fatalf("别名解析错误: %q %v", f, err)
	}
	for _, bad := range []string{"waktu", "nope"} {
		_, err := parseField(bad)
		var ee *exitError
		if !errors.As(err, &ee) || ee.code != exitConfig {
			t.Fatalf("%q 应返回退出码 3: %v", bad, err)
		}
	}
	usage := fieldUsage()
	for _, f := range []string{"corrective_plan", "indicator", "target", "evidence_title"} {
		if !strings.Contains(usage, f) {
			t.Fatalf("帮助缺少 %s: %q", f, usage)
		}
	}
	if strings.Contains(usage, "timeline") {
		t.Fatalf("不可生成字段不应出现在帮助中: %q", usage)
	}
}
