package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/portsweep/internal/config"
	"github.com/shinji-kodama/portsweep/internal/docker"
	"github.com/shinji-kodama/portsweep/internal/logging"
	"github.com/shinji-kodama/portsweep/internal/model"
	"github.com/shinji-kodama/portsweep/internal/port"
	"github.com/shinji-kodama/portsweep/internal/report"
)

// runScan resolves the configuration and target, runs the scan and renders
// the result. On interruption the partial result is still rendered.
func runScan(cmd *cobra.Command, args []string, flags *scanFlags) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	// Step 1: Resolve configuration: flags > env (.env) > config file > defaults.
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return err
	}
	loader := config.NewLoader()
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loader.Load(flags.configFile)
	if err != nil {
		return err
	}
	// Errors from here on are printed in the same format as the report.
	outputFormat = cfg.Format

	log, err := logging.New(cfg.Log, stderr, verbose)
	if err != nil {
		return err
	}
	logger = log

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 2: Resolve the target address.
	addr, err := resolveAddress(ctx, cfg, args)
	if err != nil {
		return err
	}
	target, err := model.NewScanTarget(addr, cfg.Threads)
	if err != nil {
		return model.WrapCLIError(model.ExitUsage, "invalid scan target", err)
	}
	VerboseLog("Scanning %s with %d workers, timeout %s", target.Address, target.Workers, cfg.Timeout)

	// Step 3: Build the probe pipeline.
	dialer, err := port.NewProxyDialer(cfg.Proxy)
	if err != nil {
		return model.WrapCLIError(model.ExitUsage, "invalid proxy", err)
	}
	if cfg.Proxy != "" {
		// A dead proxy fails every probe the same way; catch it before scanning.
		if err := port.CheckProxy(ctx, cfg.Proxy, cfg.Timeout); err != nil {
			return model.WrapCLIError(model.ExitUsage, "proxy unreachable", err)
		}
		VerboseLog("Tunnelling probes through %s", cfg.Proxy)
	}

	// The progress total comes from the same partition the scanner uses.
	assignments, err := port.NewAllocator().Allocate(target)
	if err != nil {
		return model.WrapCLIError(model.ExitUsage, "invalid scan target", err)
	}
	total := port.TotalProbes(assignments)

	sink, err := report.NewSink(cfg.Progress, stderr, addr.String(), total)
	if err != nil {
		return model.WrapCLIError(model.ExitUsage, "invalid progress style", err)
	}

	scanner := port.NewScanner(
		port.NewTCPProber(dialer, cfg.Timeout),
		port.WithProgress(sink),
		port.WithLogger(log),
	)

	// Step 4: Scan, then render whatever was collected.
	result, scanErr := scanner.Scan(ctx, target)
	if result == nil {
		return model.WrapCLIError(model.ExitScanFailed, "scan failed", scanErr)
	}

	if err := writeReport(stdout, cfg, result); err != nil {
		return err
	}

	switch {
	case scanErr == nil:
		return nil
	case errors.Is(scanErr, context.Canceled):
		return model.NewCLIError(model.ExitInterrupted,
			fmt.Sprintf("scan interrupted after %d of %d probes; results are partial", result.Probed, total))
	default:
		return model.WrapCLIError(model.ExitScanFailed, "scan failed", scanErr)
	}
}

// resolveAddress returns the positional address, or the IP address of the
// container named by --container.
func resolveAddress(ctx context.Context, cfg *config.Config, args []string) (netip.Addr, error) {
	if cfg.Container == "" {
		if len(args) != 1 {
			return netip.Addr{}, model.NewCLIError(model.ExitUsage, usageLine)
		}
		return config.ParseAddress(args[0])
	}
	if len(args) > 0 {
		return netip.Addr{}, model.NewCLIError(model.ExitUsage, "an address cannot be combined with --container")
	}

	cli, err := docker.NewClient()
	if err != nil {
		return netip.Addr{}, err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return netip.Addr{}, err
	}
	VerboseLog("Connected to Docker daemon")

	addr, err := docker.ResolveAddress(ctx, cli.Inner(), cfg.Container)
	if err != nil {
		return netip.Addr{}, err
	}
	VerboseLog("Container %s resolved to %s", cfg.Container, addr)
	return addr, nil
}

// writeReport renders result to stdout and, when configured, to the output
// file.
func writeReport(stdout io.Writer, cfg *config.Config, result *model.ScanResult) error {
	var buf bytes.Buffer
	if err := report.Render(&buf, cfg.Format, result); err != nil {
		return model.WrapCLIError(model.ExitOutputFailed, "failed to render report", err)
	}

	if _, err := stdout.Write(buf.Bytes()); err != nil {
		return model.WrapCLIError(model.ExitOutputFailed, "failed to write report", err)
	}

	if cfg.Output != "" {
		if err := report.WriteFile(cfg.Output, buf.Bytes()); err != nil {
			return model.WrapCLIError(model.ExitOutputFailed,
				fmt.Sprintf("failed to write report to %s", cfg.Output), err)
		}
		VerboseLog("Report written to %s", cfg.Output)
	}
	return nil
}
