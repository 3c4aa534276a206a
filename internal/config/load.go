package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix: 环境变量覆盖层前缀。
const EnvPrefix = "PPSPLAN_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：LLM 不设默认（必须由配置文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Namespace: "default-app-id",
		Owner:     "local",
		Batch:     Batch{ChunkSize: 5, CooldownMS: intPtr(1500)},
		Components: Components{
			Reader:        "fs",
			PromptBuilder: "accreditation",
			Store:         "sqlite",
			Writer:        "fs",
		},
	}
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSON。
// 两种格式都经过同一严格 JSON 解码，未知字段均报错。
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if raw, err = yamlToJSON(raw); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	return LoadJSON("", raw)
}

// yamlToJSON: YAML 文档 → 等价 JSON（用于复用严格解码与原样 Options）。
func yamlToJSON(raw []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv 把 .env 文件载入进程环境（不覆盖已存在的变量）；文件不存在不是错误。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("dotenv %s: %w", path, err)
	}
	return nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if v := strings.TrimSpace(over.Namespace); v != "" {
		out.Namespace = v
	}
	if v := strings.TrimSpace(over.Owner); v != "" {
		out.Owner = v
	}
	if over.Batch.ChunkSize != 0 {
		out.Batch.ChunkSize = over.Batch.ChunkSize
	}
	// CooldownMS 的 0 具有语义（不等待），仅 nil 视为未覆盖。
	if over.Batch.CooldownMS != nil {
		out.Batch.CooldownMS = intPtr(*over.Batch.CooldownMS)
	}
	if over.CallTimeoutSeconds != 0 {
		out.CallTimeoutSeconds = over.CallTimeoutSeconds
	}
	if over.AutosaveDelayMS != 0 {
		out.AutosaveDelayMS = over.AutosaveDelayMS
	}
	if over.BytesPerToken != 0 {
		out.BytesPerToken = over.BytesPerToken
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.PromptBuilder != "" {
		out.Components.PromptBuilder = over.Components.PromptBuilder
	}
	if over.Components.Store != "" {
		out.Components.Store = over.Components.Store
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Provider（完整替换对应键）
	if len(over.Provider) > 0 {
		prov := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			prov[k] = v
		}
		for k, v := range over.Provider {
			prov[k] = v
		}
		out.Provider = prov
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.PromptBuilder) > 0 {
		out.Options.PromptBuilder = cloneRaw(over.Options.PromptBuilder)
	}
	if len(over.Options.Store) > 0 {
		out.Options.Store = cloneRaw(over.Options.Store)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Decoders) > 0 {
		dec := make(map[string]json.RawMessage, len(out.Options.Decoders)+len(over.Options.Decoders))
		for k, v := range out.Options.Decoders {
			dec[k] = v
		}
		for k, v := range over.Options.Decoders {
			dec[k] = cloneRaw(v)
		}
		out.Options.Decoders = dec
	}

	if strings.TrimSpace(over.LLM) != "" {
		out.LLM = strings.TrimSpace(over.LLM)
	}
	return out
}

// envVars: PPSPLAN_ 前缀下的标量键。
type envVars struct {
	Inputs             []string `env:"INPUTS" envSeparator:","`
	Namespace          string   `env:"NAMESPACE"`
	Owner              string   `env:"OWNER"`
	LLM                string   `env:"LLM"`
	LogLevel           string   `env:"LOG_LEVEL"`
	ChunkSize          int      `env:"CHUNK_SIZE"`
	CooldownMS         *int     `env:"COOLDOWN_MS"`
	CallTimeoutSeconds int      `env:"CALL_TIMEOUT_SECONDS"`
	AutosaveDelayMS    int      `env:"AUTOSAVE_DELAY_MS"`
	Reader             string   `env:"COMPONENTS_READER"`
	PromptBuilder      string   `env:"COMPONENTS_PROMPT_BUILDER"`
	Store              string   `env:"COMPONENTS_STORE"`
	Writer             string   `env:"COMPONENTS_WRITER"`
	StoreOptions       string   `env:"OPTIONS_STORE_JSON"`
	WriterOptions      string   `env:"OPTIONS_WRITER_JSON"`
}

// EnvOverlay 从环境变量构建一个 Config 覆盖。
// 标量键见 envVars；provider 定义使用
// PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,TPM,MAX_TOKENS_PER_REQ} / PROVIDER__<name>__OPTIONS_JSON。
func EnvOverlay(environ []string) (Config, error) {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			m[k] = v
		}
	}
	var ev envVars
	if err := env.ParseWithOptions(&ev, env.Options{Prefix: EnvPrefix, Environment: m}); err != nil {
		return Config{}, fmt.Errorf("env: %w", err)
	}
	over := Config{
		Inputs:             trimAll(ev.Inputs),
		Namespace:          ev.Namespace,
		Owner:              ev.Owner,
		LLM:                strings.TrimSpace(ev.LLM),
		Logging:            Logging{Level: ev.LogLevel},
		Batch:              Batch{ChunkSize: ev.ChunkSize, CooldownMS: ev.CooldownMS},
		CallTimeoutSeconds: ev.CallTimeoutSeconds,
		AutosaveDelayMS:    ev.AutosaveDelayMS,
		Components: Components{
			Reader:        strings.TrimSpace(ev.Reader),
			PromptBuilder: strings.TrimSpace(ev.PromptBuilder),
			Store:         strings.TrimSpace(ev.Store),
			Writer:        strings.TrimSpace(ev.Writer),
		},
	}
	if s := strings.TrimSpace(ev.StoreOptions); s != "" {
		over.Options.Store = json.RawMessage(s)
	}
	if s := strings.TrimSpace(ev.WriterOptions); s != "" {
		over.Options.Writer = json.RawMessage(s)
	}

	prov := map[string]Provider{}
	for key, val := range m {
		nk := strings.TrimPrefix(key, EnvPrefix)
		if !strings.HasPrefix(nk, "PROVIDER__") {
			continue
		}
		parts := strings.Split(nk, "__")
		if len(parts) < 3 {
			continue
		}
		name := strings.TrimSpace(parts[1])
		p := prov[name]
		changed := false
		switch strings.Join(parts[2:], "__") {
		case "CLIENT":
			if tv := strings.TrimSpace(val); tv != "" {
				p.Client = tv
				changed = true
			}
		case "LIMITS_RPM":
			if v, err := atoi(val); err == nil {
				p.Limits.RPM = v
				changed = true
			}
		case "LIMITS_TPM":
			if v, err := atoi(val); err == nil {
				p.Limits.TPM = v
				changed = true
			}
		case "LIMITS_MAX_TOKENS_PER_REQ":
			if v, err := atoi(val); err == nil {
				p.Limits.MaxTokensPerReq = v
				changed = true
			}
		case "OPTIONS_JSON":
			// 原样 JSON；空值视为未设置，避免清空现有配置
			if strings.TrimSpace(val) != "" {
				p.Options = json.RawMessage(val)
				changed = true
			}
		}
		// 仅在发生有效变更时记录该 provider；避免空值覆盖配置文件
		if changed {
			prov[name] = p
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

// Resolve: Defaults → 配置文件（可选）→ 环境变量。CLI 覆盖由调用方再 Merge。
func Resolve(path string, environ []string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = Merge(cfg, fileCfg)
	}
	over, err := EnvOverlay(environ)
	if err != nil {
		return Config{}, err
	}
	return Merge(cfg, over), nil
}

func intPtr(v int) *int { return &v }

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func trimAll(in []string) []string {
	var out []string
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
