package port

import (
	"context"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// fakeProber reports the ports in open as open and every other port as
// closed. It records how often each port was probed.
type fakeProber struct {
	open    map[model.Port]bool
	panicOn int
	counts  []atomic.Int32
}

func newFakeProber(open ...model.Port) *fakeProber {
	set := make(map[model.Port]bool, len(open))
	for _, p := range open {
		set[p] = true
	}
	return &fakeProber{
		open:    set,
		panicOn: -1,
		counts:  make([]atomic.Int32, model.MaxPort+1),
	}
}

func (f *fakeProber) Probe(_ context.Context, _ model.ScanTarget, p model.Port) model.ProbeOutcome {
	f.counts[p].Add(1)
	if int(p) == f.panicOn {
		panic("probe exploded")
	}
	if f.open[p] {
		return model.ProbeOutcome{Port: p, State: model.StateOpen}
	}
	return model.ProbeOutcome{Port: p, State: model.StateClosed, Err: refusedError()}
}

// cancellingProber cancels the scan after limit probes.
type cancellingProber struct {
	cancel context.CancelFunc
	limit  int64
	calls  atomic.Int64
}

func (c *cancellingProber) Probe(_ context.Context, _ model.ScanTarget, p model.Port) model.ProbeOutcome {
	if c.calls.Add(1) == c.limit {
		c.cancel()
	}
	return model.ProbeOutcome{Port: p, State: model.StateOpen}
}

// recordingSink counts Observe and Finish calls.
type recordingSink struct {
	mu       sync.Mutex
	observed int
	finished int
}

func (r *recordingSink) Observe(model.ProbeOutcome) {
	r.mu.Lock()
	r.observed++
	r.mu.Unlock()
}

func (r *recordingSink) Finish() {
	r.mu.Lock()
	r.finished++
	r.mu.Unlock()
}

// blackHoleDialer never completes a handshake; it waits for the context to
// expire, like a firewall that drops SYNs.
type blackHoleDialer struct{}

func (blackHoleDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	<-ctx.Done()
	return nil, &net.OpError{Op: "dial", Net: network, Err: ctx.Err()}
}

// refusingDialer answers every dial with ECONNREFUSED.
type refusingDialer struct{}

func (refusingDialer) DialContext(_ context.Context, network, _ string) (net.Conn, error) {
	return nil, &net.OpError{Op: "dial", Net: network, Err: refusedError()}
}

// selectiveDialer black-holes the addresses in drop and refuses the rest.
type selectiveDialer struct {
	drop map[string]bool
}

func (s selectiveDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if s.drop[address] {
		return blackHoleDialer{}.DialContext(ctx, network, address)
	}
	return refusingDialer{}.DialContext(ctx, network, address)
}

func refusedError() error {
	return os.NewSyscallError("connect", syscall.ECONNREFUSED)
}
