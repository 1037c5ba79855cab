package port

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// DefaultTimeout is the per-probe connect timeout.
const DefaultTimeout = time.Second

// Prober performs a single bounded-time probe of one port.
type Prober interface {
	Probe(ctx context.Context, target model.ScanTarget, p model.Port) model.ProbeOutcome
}

// TCPProber probes ports with a full TCP connect. Connections that succeed are
// closed immediately; nothing is sent.
type TCPProber struct {
	dialer  Dialer
	timeout time.Duration
}

// NewTCPProber creates a TCPProber. A nil dialer means a direct connection and
// a non-positive timeout means DefaultTimeout.
func NewTCPProber(dialer Dialer, timeout time.Duration) *TCPProber {
	if dialer == nil {
		dialer = NewDirectDialer()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPProber{dialer: dialer, timeout: timeout}
}

// Timeout returns the per-probe timeout, uniform for every worker of a scan.
func (p *TCPProber) Timeout() time.Duration {
	return p.timeout
}

// Probe connects to target:port once, with no retry.
func (p *TCPProber) Probe(ctx context.Context, target model.ScanTarget, port model.Port) model.ProbeOutcome {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", target.SocketAddress(port))
	out := model.ProbeOutcome{Port: port, Elapsed: time.Since(start)}

	if err == nil {
		_ = conn.Close()
		out.State = model.StateOpen
		return out
	}

	out.State = Classify(err)
	out.Err = err
	return out
}

// socksRefused is the text golang.org/x/net reports for a SOCKS5 reply of
// "connection refused", i.e. the proxy reached the target and was reset.
const socksRefused = "unknown error connection refused"

// Classify maps a dial error to a port state. An active refusal (RST) is
// "closed"; timeouts, unreachable hosts and every other failure are
// "filtered".
//
// Errors from a SOCKS dial are judged by the proxy's reply only. A failure
// to reach the proxy itself, including the proxy refusing the connection,
// says nothing about the target port and is never "closed".
func Classify(err error) model.PortState {
	if err == nil {
		return model.StateOpen
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && strings.HasPrefix(opErr.Op, "socks") {
		if opErr.Err != nil && strings.Contains(opErr.Err.Error(), socksRefused) {
			return model.StateClosed
		}
		return model.StateFiltered
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.StateClosed
	}
	// Some platforms (Windows) only surface the refusal as text.
	if strings.Contains(strings.ToLower(err.Error()), "refused") {
		return model.StateClosed
	}
	return model.StateFiltered
}
