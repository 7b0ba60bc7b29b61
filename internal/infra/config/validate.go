package config

import (
	"fmt"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found, allowing callers
// to inspect all issues at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateLLM(cfg, ve)
	validateAgent(cfg, ve)
	validateEvents(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	}
	if cfg.Server.RateLimit.Enabled {
		if cfg.Server.RateLimit.RequestsPerMin <= 0 {
			ve.Add("server.rate_limit.requests_per_min must be > 0")
		}
		if cfg.Server.RateLimit.BurstSize <= 0 {
			ve.Add("server.rate_limit.burst_size must be > 0")
		}
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.BaseURL == "" {
		ve.Add("llm.base_url must not be empty")
	}
	if cfg.LLM.Model == "" {
		ve.Add("llm.model must not be empty")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		ve.Add("llm.temperature must be in [0, 2], got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens <= 0 {
		ve.Add("llm.max_tokens must be > 0")
	}
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.MaxIterations <= 0 {
		ve.Add("agent.max_iterations must be > 0")
	}
	if cfg.Agent.HistoryLimit <= 0 {
		ve.Add("agent.history_limit must be > 0")
	}
}

func validateEvents(cfg *Config, ve *ValidationError) {
	if cfg.Events.BufferSize <= 0 {
		ve.Add("events.buffer_size must be > 0")
	}
	if cfg.Events.KeepAliveInterval <= 0 {
		ve.Add("events.keepalive_interval must be > 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level must be one of debug/info/warn/error, got %q", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter must be stdout or noop, got %q", cfg.Tracer.Exporter)
	}
}
