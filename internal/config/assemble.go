package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ppsplan/internal/pipeline"
	"ppsplan/internal/rate"
	"ppsplan/pkg/contract"
	"ppsplan/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
	}
	if strings.TrimSpace(cfg.Namespace) == "" {
		return errors.New("config: namespace empty")
	}
	if strings.TrimSpace(cfg.Owner) == "" {
		return errors.New("config: owner empty")
	}
	if cfg.Batch.ChunkSize < 1 {
		return errors.New("config: batch.chunk_size must be >= 1")
	}
	if cfg.Batch.CooldownMS != nil && *cfg.Batch.CooldownMS < 0 {
		return errors.New("config: batch.cooldown_ms must be >= 0")
	}
	if cfg.CallTimeoutSeconds < 0 || cfg.AutosaveDelayMS < 0 || cfg.BytesPerToken < 0 {
		return errors.New("config: timeouts and bytes_per_token must be >= 0")
	}
	if cfg.LLM == "" {
		return errors.New("config: llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return fmt.Errorf("config: provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return fmt.Errorf("config: provider %q missing client", cfg.LLM)
	}
	if registry.Generator[prov.Client] == nil {
		return fmt.Errorf("config: llm client %q not registered", prov.Client)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.PromptBuilder, d.PromptBuilder); registry.PromptBuilder[name] == nil {
		return fmt.Errorf("config: prompt_builder %q not registered", name)
	}
	if name := effName(cfg.Components.Store, d.Store); registry.Store[name] == nil {
		return fmt.Errorf("config: store %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	for ext := range cfg.Options.Decoders {
		if registry.Decoder[ext] == nil {
			return fmt.Errorf("config: decoder %q not registered", ext)
		}
	}
	return nil
}

// Assemble 构造 Components 与 Settings（含限流 Gate+Key）。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// 返回的 Store 需由调用方 Close。
func Assemble(cfg Config) (comp pipeline.Components, set pipeline.Settings, err error) {
	if err := Validate(cfg); err != nil {
		return comp, set, err
	}
	d := Defaults().Components

	if comp.Reader, err = registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader); err != nil {
		return comp, set, fmt.Errorf("reader: %w", err)
	}
	if comp.PromptBuilder, err = registry.PromptBuilder[effName(cfg.Components.PromptBuilder, d.PromptBuilder)](cfg.Options.PromptBuilder); err != nil {
		return comp, set, fmt.Errorf("prompt_builder: %w", err)
	}
	if comp.Writer, err = registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer); err != nil {
		return comp, set, fmt.Errorf("writer: %w", err)
	}

	comp.Decoders = make(map[string]contract.TableDecoder, len(registry.Decoder))
	for _, ext := range sortedKeys(registry.Decoder) {
		if comp.Decoders[ext], err = registry.Decoder[ext](cfg.Options.Decoders[ext]); err != nil {
			return comp, set, fmt.Errorf("decoder %s: %w", ext, err)
		}
	}
	comp.Exporters = make(map[string]contract.Exporter, len(registry.Exporter))
	for _, format := range sortedKeys(registry.Exporter) {
		if comp.Exporters[format], err = registry.Exporter[format](nil); err != nil {
			return comp, set, fmt.Errorf("exporter %s: %w", format, err)
		}
	}
	if t, ok := comp.Exporters["xlsx"].(contract.TemplateWriter); ok {
		comp.Template = t
	}

	// 生成器
	prov := cfg.Provider[cfg.LLM]
	if comp.Generator, err = registry.Generator[prov.Client](prov.Options); err != nil {
		return comp, set, fmt.Errorf("llm %s: %w", cfg.LLM, err)
	}

	// 存储最后构造，之前的失败不会留下打开的数据库
	if comp.Store, err = registry.Store[effName(cfg.Components.Store, d.Store)](cfg.Options.Store); err != nil {
		return comp, set, fmt.Errorf("store: %w", err)
	}

	// 限流 Gate（按 provider 限额构造；分组键从 options 中派生 API Key）
	// 默认使用 API Key 派生分组键（更稳定）；若失败则退化为 provider 名称。
	key, derr := rate.DeriveKeyFromProviderOptions(prov.Client, prov.Options)
	if derr != nil {
		key = rate.LimitKey(cfg.LLM)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: prov.Limits.RPM, TPM: prov.Limits.TPM, MaxTokensPerReq: prov.Limits.MaxTokensPerReq},
	}, nil)

	set = pipeline.Settings{
		Namespace:       cfg.Namespace,
		Owner:           cfg.Owner,
		LLM:             cfg.LLM,
		ChunkSize:       cfg.Batch.ChunkSize,
		CallTimeout:     time.Duration(cfg.CallTimeoutSeconds) * time.Second,
		MaxTokensPerReq: prov.Limits.MaxTokensPerReq,
		BytesPerToken:   cfg.BytesPerToken,
		AutosaveDelay:   time.Duration(cfg.AutosaveDelayMS) * time.Millisecond,
		Gate:            gate,
		GateKey:         key,
	}
	if cfg.Batch.CooldownMS != nil {
		set.Cooldown = time.Duration(*cfg.Batch.CooldownMS) * time.Millisecond
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
