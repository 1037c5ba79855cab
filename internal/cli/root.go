// Package cli implements the cobra-based command line for portsweep.
//
// The root command is the scan itself: "portsweep [flags] <address>". This
// file defines the command, its flags and the translation of errors into
// exit codes; scan.go holds the scan pipeline.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shinji-kodama/portsweep/internal/config"
	"github.com/shinji-kodama/portsweep/internal/model"
)

// usageLine is printed when the positional arguments have the wrong shape.
const usageLine = "usage: portsweep [-t threads] <ipaddr>"

var (
	// verbose raises the log level to debug.
	verbose bool

	// logger is replaced once the configuration has been resolved.
	logger = logrus.StandardLogger()

	// outputFormat is the resolved report format. Until the configuration
	// has been loaded it is empty and wantsJSON falls back to the flag and
	// the environment.
	outputFormat string
)

// Version, Commit and Date are injected from the main package at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// scanFlags holds the flags that are not resolved through config.Loader.
type scanFlags struct {
	configFile string
	envFile    string
}

// NewRootCommand creates the portsweep command.
func NewRootCommand() *cobra.Command {
	flags := &scanFlags{}
	outputFormat = ""

	cmd := &cobra.Command{
		Use:   "portsweep [flags] <address>",
		Short: "Concurrent TCP connect port scanner",
		Long: `portsweep probes every TCP port (0-65535) of a single IPv4 or IPv6 address
with a full connect and prints the ports that accepted, in ascending order.

The port space is split across workers by residue class: worker i of N probes
ports i, i+N, i+2N, ... so every port is probed exactly once.

Examples:
  portsweep 192.168.1.10
  portsweep -t 64 --timeout 300ms 10.0.0.5
  portsweep --format table --progress bar ::1
  portsweep --container web --format json -o web-ports.json`,

		Args: validateArgs,

		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, flags)
		},
	}

	d := config.Default()
	f := cmd.Flags()
	// A string flag: the count is parsed as decimal by config.Loader, so a
	// leading zero ("010") means ten rather than octal eight.
	f.StringP("threads", "t", strconv.Itoa(d.Threads), "Number of concurrent workers (1-65535)")
	f.Duration("timeout", d.Timeout, "Connect timeout per probe")
	f.String("format", d.Format, "Output format: text, table, json, yaml")
	f.String("progress", d.Progress, "Progress indicator on stderr: dots, bar, none")
	f.StringP("output", "o", "", "Also write the report to this file")
	f.String("proxy", "", "Tunnel probes through a SOCKS5 proxy (socks5://host:port)")
	f.String("container", "", "Scan the IP address of this Docker container")
	f.String("log-level", d.Log.Level, "Log level: trace, debug, info, warn, error")
	f.String("log-format", d.Log.Format, "Log format: text, json")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
	f.StringVar(&flags.configFile, "config", "", "Config file (YAML, JSON or JSONC)")
	f.StringVar(&flags.envFile, "env-file", ".env", "Load PORTSWEEP_* variables from this file if it exists")
	f.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	f.SortFlags = false

	cmd.SetFlagErrorFunc(flagError)

	return cmd
}

// validateArgs rejects extra positional arguments. Whether an address is
// required depends on --container, which may come from any config source,
// so that check happens once the configuration is resolved.
func validateArgs(_ *cobra.Command, args []string) error {
	if len(args) > 1 {
		return model.NewCLIError(model.ExitUsage, usageLine)
	}
	return nil
}

// flagError turns pflag parse failures into usage errors, keeping the
// historical message for an unparseable thread count.
func flagError(_ *cobra.Command, err error) error {
	if msg := err.Error(); strings.Contains(msg, "--threads") || strings.Contains(msg, "'t'") {
		return model.WrapCLIError(model.ExitUsage, "failed to parse number of threads", err)
	}
	return model.WrapCLIError(model.ExitUsage, usageLine, err)
}

// Execute runs the root command and exits with the code carried by its error.
func Execute(rootCmd *cobra.Command) {
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}

	printError(os.Stderr, wantsJSON(rootCmd.Flags()), err)
	os.Exit(int(ExitCodeFor(err)))
}

// ExitCodeFor returns the exit code for err. Errors that are not a CLIError
// map to ExitGeneralError.
func ExitCodeFor(err error) model.ExitCode {
	if err == nil {
		return model.ExitSuccess
	}
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return model.ExitGeneralError
}

// wantsJSON reports whether errors should be printed as JSON, which follows
// the report format however it was configured.
func wantsJSON(flags *pflag.FlagSet) bool {
	if outputFormat != "" {
		return outputFormat == config.FormatJSON
	}
	// The configuration failed to load; use the sources that need no parsing.
	if f := flags.Lookup("format"); f != nil && f.Changed {
		return strings.EqualFold(f.Value.String(), config.FormatJSON)
	}
	return strings.EqualFold(os.Getenv(config.EnvPrefix+"_FORMAT"), config.FormatJSON)
}

// printError writes err to w as "Error: <message>" or as a JSON object.
func printError(w io.Writer, asJSON bool, err error) {
	message, underlying := err.Error(), error(nil)
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		message, underlying = cliErr.Message, cliErr.Err
	}

	if asJSON {
		errObj := map[string]interface{}{"message": message}
		if underlying != nil {
			errObj["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	// Parse errors behind usage messages are only noise unless asked for.
	if underlying != nil && (verbose || ExitCodeFor(err) != model.ExitUsage) {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", message)
}

// VerboseLog logs a debug message; it is shown with -v or --log-level debug.
func VerboseLog(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}
