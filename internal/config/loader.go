package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// EnvPrefix is prepended to every environment variable, e.g. PORTSWEEP_THREADS.
const EnvPrefix = "PORTSWEEP"

// flagKeys maps configuration keys to the CLI flags that override them.
var flagKeys = map[string]string{
	"threads":    "threads",
	"timeout":    "timeout",
	"format":     "format",
	"progress":   "progress",
	"output":     "output",
	"proxy":      "proxy",
	"container":  "container",
	"log.level":  "log-level",
	"log.format": "log-format",
	"log.file":   "log-file",
}

// Loader resolves a Config from flags, environment, a config file and defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults and environment binding applied.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("threads", d.Threads)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("format", d.Format)
	v.SetDefault("progress", d.Progress)
	v.SetDefault("output", "")
	v.SetDefault("proxy", "")
	v.SetDefault("container", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxsize", d.Log.MaxSize)
	v.SetDefault("log.maxbackups", d.Log.MaxBackups)
	v.SetDefault("log.maxage", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)

	return &Loader{v: v}
}

// BindFlags lets explicitly set flags take precedence over every other
// source. Flags missing from fs are skipped.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return model.WrapCLIError(model.ExitUsage, fmt.Sprintf("failed to load %s", path), err)
	}
	return nil
}

// Load reads configFile (if non-empty), resolves every key and validates the
// result.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile != "" {
		if err := l.readConfigFile(configFile); err != nil {
			return nil, err
		}
	}

	threads, err := parseThreads(l.v.Get("threads"))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitUsage, "failed to parse number of threads", err)
	}
	timeout, err := cast.ToDurationE(l.v.Get("timeout"))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitUsage, "failed to parse timeout", err)
	}

	cfg := &Config{
		Threads:   threads,
		Timeout:   timeout,
		Format:    strings.ToLower(l.v.GetString("format")),
		Progress:  strings.ToLower(l.v.GetString("progress")),
		Output:    l.v.GetString("output"),
		Proxy:     l.v.GetString("proxy"),
		Container: l.v.GetString("container"),
		Log: LogConfig{
			Level:      l.v.GetString("log.level"),
			Format:     l.v.GetString("log.format"),
			File:       l.v.GetString("log.file"),
			MaxSize:    l.v.GetInt("log.maxsize"),
			MaxBackups: l.v.GetInt("log.maxbackups"),
			MaxAge:     l.v.GetInt("log.maxage"),
			Compress:   l.v.GetBool("log.compress"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfigFile loads a YAML file through viper, or a JSON/JSONC file after
// stripping comments and trailing commas.
func (l *Loader) readConfigFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data, err := os.ReadFile(path)
		if err != nil {
			return model.WrapCLIError(model.ExitUsage, fmt.Sprintf("config file not readable: %s", path), err)
		}
		l.v.SetConfigType("json")
		if err := l.v.ReadConfig(bytes.NewReader(jsonc.ToJSON(data))); err != nil {
			return model.WrapCLIError(model.ExitUsage, fmt.Sprintf("failed to parse config file %s", path), err)
		}
	default:
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return model.WrapCLIError(model.ExitUsage, fmt.Sprintf("failed to read config file %s", path), err)
		}
	}
	return nil
}

// parseThreads converts the threads setting to an int. Strings, which come
// from flags and the environment, are parsed as decimal; cast would read a
// leading zero as octal. Numbers from YAML or JSON files go through cast.
func parseThreads(v interface{}) (int, error) {
	if s, ok := v.(string); ok {
		return strconv.Atoi(strings.TrimSpace(s))
	}
	return cast.ToIntE(v)
}
