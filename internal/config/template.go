package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 使用 mock 生成器与合理限额（本地/离线调试友好）；
// - 快照写入 ./ppsplan.db，导出写到 ./out；
// - 选项给出全部键与安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Namespace:          d.Namespace,
		Owner:              d.Owner,
		Batch:              d.Batch,
		CallTimeoutSeconds: 60,
		AutosaveDelayMS:    1000,
		BytesPerToken:      4,
		Logging:            Logging{Level: "info"},
		Components:         d.Components,
		LLM:                "mock",
		Provider: map[string]Provider{
			"mock": {
				Client:  "mock",
				Options: json.RawMessage(`{"prefix":"","api_key":"","response_mode":"","delay_ms":0}`),
				Limits:  Limits{RPM: 60, TPM: 100000, MaxTokensPerReq: 8192},
			},
			"gemini": {
				Client: "gemini",
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "gemini-2.0-flash",
  "api_key_env": "GOOGLE_API_KEY",
  "api_key": ""
}`),
				Limits: Limits{RPM: 15, TPM: 1000000, MaxTokensPerReq: 0},
			},
			"openai": {
				Client: "openai",
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "",
  "api_key_env": "OPENAI_API_KEY",
  "api_key": "",
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 0, TPM: 0, MaxTokensPerReq: 0},
			},
		},
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "out"],
  "extensions": [".xlsx", ".csv"]
}`)
	cfg.Options.PromptBuilder = json.RawMessage(`{
  "templates": {},
  "inline_summary_template": "",
  "summary_template_path": ""
}`)
	cfg.Options.Store = json.RawMessage(`{"path": "ppsplan.db"}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.Decoders = map[string]json.RawMessage{
		"xlsx": json.RawMessage(`{"sheet": ""}`),
		"csv":  json.RawMessage(`{"comma": ","}`),
	}
	return cfg
}

// EnvTemplate 返回 .env 模板内容：全部支持的覆盖项与常见供应商密钥。
func EnvTemplate() string {
	var b strings.Builder
	b.WriteString("# ppsplan .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置文件（JSON 或 YAML）\n")
	b.WriteString(EnvPrefix + "CONFIG_FILE=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUTS", "NAMESPACE", "OWNER", "LLM", "LOG_LEVEL", "CHUNK_SIZE", "COOLDOWN_MS", "CALL_TIMEOUT_SECONDS", "AUTOSAVE_DELAY_MS"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择与选项\n")
	for _, k := range []string{"COMPONENTS_READER", "COMPONENTS_PROMPT_BUILDER", "COMPONENTS_STORE", "COMPONENTS_WRITER", "OPTIONS_STORE_JSON", "OPTIONS_WRITER_JSON"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	for _, name := range []string{"gemini", "openai"} {
		b.WriteString("\n# Provider 覆盖（" + name + "）\n")
		for _, k := range []string{"CLIENT", "LIMITS_RPM", "LIMITS_TPM", "LIMITS_MAX_TOKENS_PER_REQ", "OPTIONS_JSON"} {
			b.WriteString(EnvPrefix + "PROVIDER__" + name + "__" + k + "=\n")
		}
	}
	b.WriteString("\n# 常见供应商 API Key（由生成器读取，不带前缀）\n")
	b.WriteString("GOOGLE_API_KEY=\n")
	b.WriteString("OPENAI_API_KEY=\n")
	return b.String()
}

// WriteInit 在 dir 下生成 config.json 与 .env（已存在则跳过，不覆盖）。
// 返回实际写入的文件路径。
func WriteInit(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(DefaultTemplateConfig(), "", "  ")
	if err != nil {
		return nil, err
	}
	var written []string
	for _, f := range []struct {
		name string
		body []byte
	}{
		{"config.json", append(b, '\n')},
		{".env", []byte(EnvTemplate())},
	} {
		p := filepath.Join(dir, f.name)
		ok, err := createExclusive(p, f.body)
		if err != nil {
			return written, err
		}
		if ok {
			written = append(written, p)
		}
	}
	return written, nil
}

func createExclusive(path string, body []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
