package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError collects every problem found in a configuration
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid configuration:")
	for _, p := range e.Problems {
		sb.WriteString("\n--> ")
		sb.WriteString(p)
	}
	return sb.String()
}

// Validate checks a defaulted configuration
func Validate(cfg *CastwallConfig) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		add("port %d out of range", cfg.Port)
	}
	if cfg.Session.SecretKey != "" && len(cfg.Session.SecretKey) < 32 {
		add("session.secret_key must be at least 32 characters")
	}

	r := cfg.Registry
	if r.ClientTimeout <= 0 {
		add("registry.client_timeout must be positive")
	}
	if r.ReapInterval <= 0 {
		add("registry.reap_interval must be positive")
	}
	if r.QueueCapacity < 1 {
		add("registry.queue_capacity must be at least 1")
	}
	if r.ReadTimeout <= 0 {
		add("registry.read_timeout must be positive")
	}
	if r.MaxWindows < 1 {
		add("registry.max_windows must be at least 1")
	}

	cp := cfg.Compositor
	if cp.TileWidth < 1 || cp.TileHeight < 1 {
		add("compositor tile size %dx%d must be positive", cp.TileWidth, cp.TileHeight)
	}
	if cp.MaxWidth < 1 {
		add("compositor.max_width must be positive")
	}
	if cp.JPEGQuality < 1 || cp.JPEGQuality > 100 {
		add("compositor.jpeg_quality %d out of range 1-100", cp.JPEGQuality)
	}

	if cfg.Broadcast.MinInterval < 0 || cfg.Broadcast.IdleInterval < 0 {
		add("broadcast intervals must not be negative")
	}

	switch cfg.Capture.Type {
	case "synthetic":
		if cfg.Capture.Synthetic.Windows < 0 {
			add("capture.synthetic.windows must not be negative")
		}
	case "directory":
		if cfg.Capture.Directory.Path == "" {
			add("capture.directory.path is required")
		}
	case "command":
		if len(cfg.Capture.Command.Commands) == 0 {
			add("capture.command.commands is empty")
		}
		for i, c := range cfg.Capture.Command.Commands {
			if len(c.Args) == 0 {
				add("capture.command.commands[%d] has no args", i)
			}
		}
	default:
		add("unknown capture.type %q", cfg.Capture.Type)
	}

	switch cfg.Notifier.Type {
	case "none", "log":
	case "redis":
		if cfg.Notifier.Redis.Addr == "" {
			add("notifier.redis.addr is required")
		}
	default:
		add("unknown notifier.type %q", cfg.Notifier.Type)
	}

	if cfg.Audit.Enabled {
		switch cfg.Audit.Database.Type {
		case "sqlite", "mysql", "postgres":
		default:
			add("unsupported audit.database.type %q", cfg.Audit.Database.Type)
		}
		if cfg.Audit.Retain < 1 {
			add("audit.retain must be at least 1")
		}
	}

	if cfg.Tracing.Enabled && (cfg.Tracing.SamplerRate < 0 || cfg.Tracing.SamplerRate > 1) {
		add("tracing.sampler_rate must be within 0.0~1.0")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
