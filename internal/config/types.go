package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Inputs: watch/import 的缺省输入根（命令行参数优先）。
	Inputs []string `json:"inputs"`
	// 快照键的命名空间与所有者。
	Namespace string `json:"namespace"`
	Owner     string `json:"owner"`

	Batch Batch `json:"batch"`
	// CallTimeoutSeconds: 单次生成调用上限；0 使用默认 60 秒。
	CallTimeoutSeconds int `json:"call_timeout_seconds"`
	// AutosaveDelayMS: 最后一次修改到写入快照的静默时长；0 使用默认 1 秒。
	AutosaveDelayMS int `json:"autosave_delay_ms"`
	// BytesPerToken: 提示词 token 估算参数；0 使用默认 4。
	BytesPerToken int     `json:"bytes_per_token"`
	Logging       Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// LLM Provider 选择与定义。
	LLM      string              `json:"llm"`
	Provider map[string]Provider `json:"provider"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Batch: 批量生成的分块参数。
type Batch struct {
	ChunkSize int `json:"chunk_size"`
	// CooldownMS: 分块之间的等待；0 表示不等待，nil 表示未设置。
	CooldownMS *int `json:"cooldown_ms,omitempty"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
// 解码器按输入扩展名、导出器按导出格式选择，不在此配置。
type Components struct {
	Reader        string `json:"reader"`
	PromptBuilder string `json:"prompt_builder"`
	Store         string `json:"store"`
	Writer        string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader        json.RawMessage `json:"reader"`
	PromptBuilder json.RawMessage `json:"prompt_builder"`
	Store         json.RawMessage `json:"store"`
	Writer        json.RawMessage `json:"writer"`
	// Decoders: 键为扩展名（xlsx、csv）。
	Decoders map[string]json.RawMessage `json:"decoders"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client"`
	Options json.RawMessage `json:"options"`
	Limits  Limits          `json:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `json:"rpm"`
	TPM             int `json:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req"`
}
