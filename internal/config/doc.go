// Package config loads and validates the runtime configuration of portsweep.
//
// Values are resolved with the following precedence (highest first):
//   - command-line flags
//   - environment variables prefixed with PORTSWEEP_ (a .env file in the
//     working directory is loaded first, without overriding the real
//     environment)
//   - a configuration file given with --config: YAML, or JSON with comments
//     (JSONC, stripped with github.com/tidwall/jsonc)
//   - built-in defaults
//
// Configuration errors are returned as model.CLIError with ExitUsage so the
// CLI can reject them before any scanning starts.
package config
