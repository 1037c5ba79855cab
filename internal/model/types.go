package model

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

const (
	// MaxPort is the highest valid TCP port number (2^16 - 1).
	MaxPort = 65535

	// MaxWorkers bounds the worker count. A stride larger than the port space
	// would leave workers with empty residue classes.
	MaxWorkers = 65535

	// DefaultWorkers is used when the caller does not specify a worker count.
	DefaultWorkers = 4
)

// Port is a TCP port number on ScanTarget.Address, in [0, MaxPort].
type Port uint16

// ScanTarget is the validated input of a scan: the address to probe and the
// number of concurrent workers. It is shared read-only by every worker.
type ScanTarget struct {
	// Address is the IPv4 or IPv6 address being scanned.
	Address netip.Addr

	// Workers is the number of concurrent workers, in [1, MaxWorkers].
	// It is also the stride of every WorkerAssignment.
	Workers int
}

// NewScanTarget validates its arguments and returns an immutable ScanTarget.
func NewScanTarget(addr netip.Addr, workers int) (ScanTarget, error) {
	t := ScanTarget{Address: addr, Workers: workers}
	if err := t.Validate(); err != nil {
		return ScanTarget{}, err
	}
	return t, nil
}

// Validate checks that the address is set and the worker count is in range.
func (t ScanTarget) Validate() error {
	if !t.Address.IsValid() {
		return fmt.Errorf("scan target: address must be a valid IP address")
	}
	if t.Workers < 1 || t.Workers > MaxWorkers {
		return fmt.Errorf("scan target: worker count %d out of range (1-%d)", t.Workers, MaxWorkers)
	}
	return nil
}

// SocketAddress returns the "host:port" dial string for the given port.
// IPv6 addresses are bracketed.
func (t ScanTarget) SocketAddress(p Port) string {
	return netip.AddrPortFrom(t.Address, uint16(p)).String()
}

// String returns a human-readable representation of the target.
func (t ScanTarget) String() string {
	return fmt.Sprintf("%s (%d workers)", t.Address, t.Workers)
}

// WorkerAssignment is the residue class a single worker is responsible for:
//
//	{Offset, Offset+Stride, Offset+2*Stride, ...} ∩ [0, MaxPort]
//
// For offsets 0..Stride-1 the classes are pairwise disjoint and their union is
// exactly [0, MaxPort].
type WorkerAssignment struct {
	Target ScanTarget
	Offset int
	Stride int
}

// Validate checks 0 <= Offset < Stride and Stride >= 1.
func (a WorkerAssignment) Validate() error {
	if a.Stride < 1 {
		return fmt.Errorf("worker assignment: stride %d must be positive", a.Stride)
	}
	if a.Offset < 0 || a.Offset >= a.Stride {
		return fmt.Errorf("worker assignment: offset %d out of range (0-%d)", a.Offset, a.Stride-1)
	}
	return nil
}

// Count returns the exact number of ports in the residue class.
// Every port <= MaxPort reachable from Offset by steps of Stride is counted,
// including the topmost one.
func (a WorkerAssignment) Count() int {
	if a.Stride < 1 || a.Offset < 0 || a.Offset > MaxPort {
		return 0
	}
	return (MaxPort-a.Offset)/a.Stride + 1
}

// Last returns the highest port in the residue class.
// It must only be called when Count() > 0.
func (a WorkerAssignment) Last() Port {
	return Port(a.Offset + (a.Count()-1)*a.Stride)
}

// Ports returns the residue class in ascending order.
func (a WorkerAssignment) Ports() []Port {
	n := a.Count()
	ports := make([]Port, 0, n)
	for k := 0; k < n; k++ {
		ports = append(ports, Port(a.Offset+k*a.Stride))
	}
	return ports
}

// OpenPortReport is a single open port flowing from a worker to the aggregator.
type OpenPortReport struct {
	Port   Port
	Worker int
}

// PortState is the classification of a single probe.
type PortState string

const (
	// StateOpen means the TCP handshake completed within the timeout.
	StateOpen PortState = "open"

	// StateClosed means the target actively refused the connection.
	StateClosed PortState = "closed"

	// StateFiltered covers timeouts, unreachable networks and every other
	// dial failure.
	StateFiltered PortState = "filtered"
)

// String returns the string representation of PortState.
func (s PortState) String() string {
	return string(s)
}

// IsValid checks whether the PortState value is one of the predefined states.
func (s PortState) IsValid() bool {
	switch s {
	case StateOpen, StateClosed, StateFiltered:
		return true
	default:
		return false
	}
}

// ParsePortState converts a string to a PortState.
func ParsePortState(s string) (PortState, error) {
	state := PortState(strings.ToLower(s))
	if !state.IsValid() {
		return "", fmt.Errorf("invalid port state: %q (valid: open, closed, filtered)", s)
	}
	return state, nil
}

// ProbeOutcome is the structured result of one probe. Only open ports reach
// the ScanResult; closed and filtered outcomes are absorbed, but the error is
// kept here so stricter reporting stays an additive change.
type ProbeOutcome struct {
	Port    Port
	Worker  int
	State   PortState
	Err     error
	Elapsed time.Duration
}

// ScanResult is the final output of a scan.
type ScanResult struct {
	// ID uniquely identifies this scan run in structured reports and logs.
	ID string

	Target  ScanTarget
	Timeout time.Duration

	StartedAt  time.Time
	FinishedAt time.Time

	// OpenPorts is strictly ascending and duplicate-free.
	OpenPorts []Port

	// Probed, Closed and Filtered summarise the structured probe outcomes.
	Probed   int
	Closed   int
	Filtered int
}

// Duration returns how long the scan took.
func (r *ScanResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitCode defines the CLI exit codes. Scripts can rely on these to tell
// input errors apart from environment and scan failures.
type ExitCode int

const (
	// ExitSuccess indicates the scan completed.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitUsage indicates invalid arguments or configuration: a bad address,
	// an unparseable worker count, or a malformed flag. No scan was started.
	ExitUsage ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// while resolving a --container target.
	ExitDockerNotRunning ExitCode = 3

	// ExitContainerNotFound indicates the --container target does not exist
	// or has no usable IP address.
	ExitContainerNotFound ExitCode = 4

	// ExitScanFailed indicates a worker failed unexpectedly.
	ExitScanFailed ExitCode = 5

	// ExitOutputFailed indicates the report could not be written.
	ExitOutputFailed ExitCode = 6

	// ExitInterrupted indicates the scan was cancelled by a signal.
	ExitInterrupted ExitCode = 130
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
