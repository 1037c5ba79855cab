package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// Output formats accepted by --format.
const (
	FormatText  = "text"
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Progress styles accepted by --progress.
const (
	ProgressDots = "dots"
	ProgressBar  = "bar"
	ProgressNone = "none"
)

const (
	minTimeout = time.Millisecond
	maxTimeout = 5 * time.Second
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// Threads is the worker count, in [1, model.MaxWorkers].
	Threads int

	// Timeout is the per-probe connect timeout, uniform for all workers.
	Timeout time.Duration

	// Format selects how the result is rendered: text, table, json or yaml.
	Format string

	// Progress selects the per-probe progress indicator on stderr.
	Progress string

	// Output, when set, is a file the rendered report is written to
	// atomically, in addition to stdout.
	Output string

	// Proxy is an optional SOCKS5 proxy URL all probes are tunnelled through.
	Proxy string

	// Container, when set, names a Docker container whose IP address is
	// scanned instead of a positional address.
	Container string

	Log LogConfig
}

// LogConfig configures the diagnostic logger.
type LogConfig struct {
	Level  string
	Format string

	// File enables rotated file logging in addition to stderr.
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Threads:  model.DefaultWorkers,
		Timeout:  time.Second,
		Format:   FormatText,
		Progress: ProgressDots,
		Log: LogConfig{
			Level:      "warn",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Threads < 1 || c.Threads > model.MaxWorkers {
		return model.NewCLIError(model.ExitUsage,
			fmt.Sprintf("number of threads must be between 1 and %d, got %d", model.MaxWorkers, c.Threads))
	}
	if c.Timeout < minTimeout || c.Timeout > maxTimeout {
		return model.NewCLIError(model.ExitUsage,
			fmt.Sprintf("timeout must be between %s and %s, got %s", minTimeout, maxTimeout, c.Timeout))
	}

	switch c.Format {
	case FormatText, FormatTable, FormatJSON, FormatYAML:
	default:
		return model.NewCLIError(model.ExitUsage,
			fmt.Sprintf("invalid format %q: valid values are text, table, json, yaml", c.Format))
	}

	switch c.Progress {
	case ProgressDots, ProgressBar, ProgressNone:
	default:
		return model.NewCLIError(model.ExitUsage,
			fmt.Sprintf("invalid progress style %q: valid values are dots, bar, none", c.Progress))
	}

	if c.Proxy != "" && !strings.HasPrefix(c.Proxy, "socks5://") && !strings.HasPrefix(c.Proxy, "socks5h://") {
		return model.NewCLIError(model.ExitUsage,
			fmt.Sprintf("invalid proxy %q: only socks5:// and socks5h:// are supported", c.Proxy))
	}
	return nil
}

// ParseAddress validates a positional target address. IPv4, IPv6 (optionally
// bracketed, optionally zoned) and IPv4-mapped IPv6 literals are accepted;
// host names are not.
func ParseAddress(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, model.WrapCLIError(model.ExitUsage, "invalid IP address", err)
	}
	return addr.Unmap(), nil
}
