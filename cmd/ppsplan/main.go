package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "ppsplan/internal/config"
	"ppsplan/internal/diag"
	"ppsplan/internal/pipeline"
)

// 退出码：0 成功；1 运行期失败；3 配置或输入错误。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 携带退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configError(stage string, err error) error {
	return &exitError{code: exitConfig, err: fmt.Errorf("%s: %w", stage, err)}
}

// runtimeError: 输入类错误（空文件、未知条目/字段等）归为 3，其余为 1。
func runtimeError(err error) error {
	switch diag.Classify(err) {
	case diag.CodeInput, diag.CodeInvariant:
		return &exitError{code: exitConfig, err: err}
	default:
		return &exitError{code: exitRuntime, err: err}
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	if err := cfgpkg.LoadDotEnv(".env"); err != nil {
		fprintf(stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}
	a := &app{
		stdout:  stdout,
		stderr:  stderr,
		environ: os.Environ,
		corrID:  uuid.NewString(),
		start:   time.Now(),
	}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	a.shutdown(err == nil)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if !errors.As(err, &ee) {
		// cobra 自身的用法错误
		fprintf(stderr, "%v\n", err)
		return exitConfig
	}
	if !errors.Is(err, context.Canceled) {
		fprintf(stderr, "失败: %v\n", err)
	}
	if a.log != nil {
		code := diag.Classify(err)
		a.log.Error("cli", string(code), "first error", &a.start)
		if code != diag.CodeUnknown {
			diag.IncError("cli", string(code))
		}
	}
	return ee.code
}

// globalFlags: 所有子命令共享的旗标。
type globalFlags struct {
	config      string
	llm         string
	owner       string
	namespace   string
	logLevel    string
	status      bool
	metricsAddr string
}

// app: 一次 CLI 调用的上下文。
type app struct {
	stdout, stderr io.Writer
	environ        func() []string
	corrID         string
	start          time.Time
	flags          globalFlags

	cfg     cfgpkg.Config
	log     *diag.Logger
	comp    pipeline.Components
	metrics *http.Server
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ppsplan",
		Short: "PPS 整改计划工具：导入评审表、补全注释字段、导出报告",
		Long: `ppsplan 读取以层级代码（章.标准.准则.要素）组织的评审电子表格，
与已保存的快照协调，并调用文本生成服务批量补全整改计划、指标、目标与证据文档。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.config, "config", "", "配置文件路径（JSON 或 YAML）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	pf.StringVar(&a.flags.llm, "llm", "", "provider 名称（覆盖配置）")
	pf.StringVar(&a.flags.owner, "owner", "", "快照所有者（覆盖配置）")
	pf.StringVar(&a.flags.namespace, "namespace", "", "快照命名空间（覆盖配置）")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "日志等级 debug|info|warn|error")
	pf.BoolVar(&a.flags.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "Prometheus 指标监听地址，例如 127.0.0.1:9090")

	root.AddCommand(
		a.importCommand(),
		a.generateCommand(),
		a.fillCommand(),
		a.summarizeCommand(),
		a.inventoryCommand(),
		a.exportCommand(),
		a.templateCommand(),
		a.watchCommand(),
		a.initConfigCommand(),
	)
	return root
}

// configPath: --config > PPSPLAN_CONFIG_FILE > ./config.json > ./config.yaml。
func (a *app) configPath() string {
	if a.flags.config != "" {
		return a.flags.config
	}
	for _, kv := range a.environ() {
		if v, ok := strings.CutPrefix(kv, cfgpkg.EnvPrefix+"CONFIG_FILE="); ok && v != "" {
			return v
		}
	}
	for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// setup 解析配置、应用 CLI 覆盖与 tweak，装配组件并返回 Pipeline。
func (a *app) setup(tweak func(*cfgpkg.Config)) (*pipeline.Pipeline, error) {
	cfg, err := cfgpkg.Resolve(a.configPath(), a.environ())
	if err != nil {
		return nil, configError("配置解析失败", err)
	}
	cfg = cfgpkg.Merge(cfg, cfgpkg.Config{
		LLM:       a.flags.llm,
		Owner:     a.flags.owner,
		Namespace: a.flags.namespace,
		Logging:   cfgpkg.Logging{Level: a.flags.logLevel},
	})
	if tweak != nil {
		tweak(&cfg)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		a.dumpConfig(cfg)
		return nil, configError("配置校验失败", err)
	}
	a.cfg = cfg

	level := strings.TrimSpace(cfg.Logging.Level)
	if level == "" {
		level = "info"
	}
	a.log = diag.NewLogger(a.corrID, level)

	if err := preflightCheckOutputDir(cfg); err != nil {
		return nil, configError("输出目录不可写或无法创建", err)
	}
	if err := a.serveMetrics(); err != nil {
		return nil, configError("指标监听失败", err)
	}

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return nil, configError("装配失败", err)
	}
	a.comp = comp

	term := diag.NewTerminal(a.stderr, a.flags.status)
	diag.SetTerminal(term)
	term.RunStart(cfg.Batch.ChunkSize, cfg.LLM)
	a.logEffective(cfg)

	p, err := pipeline.New(comp, set, a.log)
	if err != nil {
		return nil, configError("装配失败", err)
	}
	return p, nil
}

// logEffective: debug 输出运行时配置（不含密钥）。
func (a *app) logEffective(cfg cfgpkg.Config) {
	kv := map[string]string{
		"namespace":      cfg.Namespace,
		"owner":          cfg.Owner,
		"chunk_size":     fmt.Sprintf("%d", cfg.Batch.ChunkSize),
		"llm":            cfg.LLM,
		"reader":         cfg.Components.Reader,
		"prompt_builder": cfg.Components.PromptBuilder,
		"store":          cfg.Components.Store,
		"writer":         cfg.Components.Writer,
	}
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		var s struct {
			BaseURL string `json:"base_url"`
			Model   string `json:"model"`
		}
		_ = json.Unmarshal(p.Options, &s)
		if s.BaseURL != "" {
			kv["base_url"] = s.BaseURL
		}
		if s.Model != "" {
			kv["model"] = s.Model
		}
	}
	a.log.DebugStart("config", "effective", "", "", kv)
}

func (a *app) serveMetrics() error {
	addr := strings.TrimSpace(a.flags.metricsAddr)
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", diag.MetricsHandler())
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = a.metrics.Serve(ln) }()
	return nil
}

// shutdown 释放存储、指标服务与终端。
func (a *app) shutdown(ok bool) {
	if a.comp.Store != nil {
		if err := a.comp.Store.Close(); err != nil {
			fprintf(a.stderr, "关闭存储失败: %v\n", err)
		}
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
	}
	if t := diag.GetTerminal(); t != nil {
		t.RunFinish(ok, time.Since(a.start))
		diag.SetTerminal(nil)
	}
	if a.log != nil {
		if ok {
			diag.IncOp("cli", "finish", "success")
			diag.ObserveDuration("cli", "finish", time.Since(a.start).Milliseconds())
		}
		_ = a.log.Sync()
	}
}

func (a *app) dumpConfig(c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fprintf(a.stderr, "有效配置:\n%s\n", b)
}

func fprintf(w io.Writer, format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 目录存在则尝试创建并删除临时文件；不存在则检查父目录可写。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	name := strings.TrimSpace(cfg.Components.Writer)
	if name == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && !st.IsDir():
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case err == nil:
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(dir)
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmpd)
}
