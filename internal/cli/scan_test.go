package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/portsweep/internal/config"
	"github.com/shinji-kodama/portsweep/internal/model"
	"github.com/shinji-kodama/portsweep/internal/report"
)

// runCommand executes the root command with args and returns its stdout,
// stderr and error. A missing env file keeps the working directory's .env
// out of the test.
func runCommand(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := NewRootCommand()
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func requireCode(t *testing.T, err error, code model.ExitCode) *model.CLIError {
	t.Helper()
	require.Error(t, err)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %T: %v", err, err)
	assert.Equal(t, code, cliErr.Code)
	return cliErr
}

// listen opens a loopback listener that accepts and drops connections.
func listen(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestScan_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		message string
	}{
		{"no address", nil, usageLine},
		{"two addresses", []string{"10.0.0.1", "10.0.0.2"}, usageLine},
		{"host name", []string{"example.com"}, "invalid IP address"},
		{"bad octet", []string{"256.1.1.1"}, "invalid IP address"},
		{"unparseable threads", []string{"-t", "many", "127.0.0.1"}, "failed to parse number of threads"},
		{"negative threads", []string{"-t", "-3", "127.0.0.1"}, "number of threads must be between 1 and 65535, got -3"},
		{"zero threads", []string{"-t", "0", "127.0.0.1"}, "number of threads must be between 1 and 65535, got 0"},
		{"hex threads", []string{"-t", "0x10", "127.0.0.1"}, "failed to parse number of threads"},
		{"dead proxy", []string{"--proxy", "socks5://127.0.0.1:1", "127.0.0.1"}, "proxy unreachable"},
		{"address with container", []string{"--container", "web", "127.0.0.1"}, "an address cannot be combined with --container"},
		{"http proxy", []string{"--proxy", "http://127.0.0.1:3128", "127.0.0.1"}, `invalid proxy "http://127.0.0.1:3128": only socks5:// and socks5h:// are supported`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := runCommand(t, context.Background(), tt.args...)
			cliErr := requireCode(t, err, model.ExitUsage)
			assert.Equal(t, tt.message, cliErr.Message)
			assert.Empty(t, stdout, "no scan output on rejection")
		})
	}
}

// TestScan_Cancelled renders the (empty) partial result and reports an
// interruption when the context is already done.
func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := runCommand(t, ctx, "--progress", "none", "127.0.0.1")
	requireCode(t, err, model.ExitInterrupted)
}

// TestScan_Loopback runs a full scan against a local listener.
func TestScan_Loopback(t *testing.T) {
	if testing.Short() {
		t.Skip("full port range scan")
	}
	p := listen(t)

	stdout, stderr, err := runCommand(t, context.Background(),
		"-t", "256", "--timeout", "500ms", "127.0.0.1")
	require.NoError(t, err)

	assert.Contains(t, stdout, fmt.Sprintf("Port %d is open\n", p))
	assert.Equal(t, model.MaxPort+2, len(stderr), "one dot per port and a newline")
}

// TestScan_JSONOutputFile writes the same JSON report to stdout and the
// output file.
func TestScan_JSONOutputFile(t *testing.T) {
	if testing.Short() {
		t.Skip("full port range scan")
	}
	p := listen(t)
	out := filepath.Join(t.TempDir(), "reports", "loopback.json")

	stdout, _, err := runCommand(t, context.Background(),
		"-t", "256", "--timeout", "500ms", "--format", "json", "--progress", "none", "-o", out, "127.0.0.1")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, stdout, string(data))

	var doc report.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "127.0.0.1", doc.Address)
	assert.Equal(t, 256, doc.Workers)
	assert.Contains(t, doc.OpenPorts, p)
	assert.Equal(t, model.MaxPort+1, doc.Summary.Probed)
}

// TestScan_EnvConfig picks up the worker count from the environment.
func TestScan_EnvConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	t.Setenv("PORTSWEEP_THREADS", "many")

	_, _, err := runCommand(t, ctx, "127.0.0.1")
	cliErr := requireCode(t, err, model.ExitUsage)
	assert.Equal(t, "failed to parse number of threads", cliErr.Message)
}

// TestScan_DecimalThreads reads leading zeros in -t as decimal. The context
// is already cancelled, so only the (empty) partial report is rendered.
func TestScan_DecimalThreads(t *testing.T) {
	for in, want := range map[string]int{"08": 8, "010": 10} {
		t.Run(in, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			stdout, _, err := runCommand(t, ctx,
				"-t", in, "--format", "json", "--progress", "none", "127.0.0.1")
			requireCode(t, err, model.ExitInterrupted)

			var doc report.Document
			require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
			assert.Equal(t, want, doc.Workers)
		})
	}
}

// TestScan_ErrorFormatFollowsConfig prints errors as JSON when the report
// format comes from the environment or a config file rather than the flag.
func TestScan_ErrorFormatFollowsConfig(t *testing.T) {
	t.Run("config file", func(t *testing.T) {
		cfgFile := filepath.Join(t.TempDir(), "portsweep.yaml")
		require.NoError(t, os.WriteFile(cfgFile, []byte("format: json\n"), 0o644))

		_, _, err := runCommand(t, context.Background(), "--config", cfgFile, "not-an-ip")
		requireCode(t, err, model.ExitUsage)
		assert.Equal(t, config.FormatJSON, outputFormat)
		assert.True(t, wantsJSON(pflag.NewFlagSet("unset", pflag.ContinueOnError)))
	})

	t.Run("environment before config loads", func(t *testing.T) {
		t.Setenv("PORTSWEEP_FORMAT", "json")
		cmd := NewRootCommand()
		assert.True(t, wantsJSON(cmd.Flags()))

		t.Setenv("PORTSWEEP_FORMAT", "text")
		assert.False(t, wantsJSON(cmd.Flags()))
	})

	t.Run("flag before config loads", func(t *testing.T) {
		cmd := NewRootCommand()
		require.NoError(t, cmd.Flags().Parse([]string{"--format", "json"}))
		assert.True(t, wantsJSON(cmd.Flags()))
	})
}
