package config

import "errors"

// EventsConfig 事件流与后端配置
type EventsConfig struct {
	// Buffer 每个订阅者的事件缓冲
	Buffer int `json:"buffer" yaml:"buffer" toml:"buffer"`

	// PollBudget 单次唤醒中每个事件源最多处理的条目数
	PollBudget int `json:"poll_budget" yaml:"poll_budget" toml:"poll_budget"`
}

// DefaultEventsConfig 返回默认事件配置
func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		Buffer:     100_000,
		PollBudget: 128,
	}
}

// Validate 验证事件配置
func (c EventsConfig) Validate() error {
	if c.Buffer <= 0 {
		return errors.New("event buffer must be positive")
	}
	if c.PollBudget <= 0 {
		return errors.New("poll budget must be positive")
	}
	return nil
}
