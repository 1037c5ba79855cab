package port

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// TestTCPProber_OpenAndClosed probes a real loopback listener, then probes the
// same port again after the listener is closed.
func TestTCPProber_OpenAndClosed(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := model.Port(l.Addr().(*net.TCPAddr).Port)

	target := mustTarget(t, 1)
	prober := NewTCPProber(nil, time.Second)

	out := prober.Probe(context.Background(), target, p)
	assert.Equal(t, model.StateOpen, out.State, "err=%v", out.Err)
	assert.NoError(t, out.Err)

	require.NoError(t, l.Close())
	time.Sleep(50 * time.Millisecond)

	out = prober.Probe(context.Background(), target, p)
	assert.Contains(t, []model.PortState{model.StateClosed, model.StateFiltered}, out.State)
	assert.Error(t, out.Err)
}

// TestTCPProber_TimeoutBounded uses a black-hole dialer: the probe must give
// up after the configured timeout and classify the port as filtered.
func TestTCPProber_TimeoutBounded(t *testing.T) {
	timeout := 100 * time.Millisecond
	prober := NewTCPProber(blackHoleDialer{}, timeout)

	start := time.Now()
	out := prober.Probe(context.Background(), mustTarget(t, 1), 9)
	elapsed := time.Since(start)

	assert.Equal(t, model.StateFiltered, out.State)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond, "probe must not block past the timeout")
}

// TestTCPProber_Defaults checks the nil dialer and zero timeout fallbacks.
func TestTCPProber_Defaults(t *testing.T) {
	prober := NewTCPProber(nil, 0)
	assert.Equal(t, DefaultTimeout, prober.Timeout())
	assert.NotNil(t, prober.dialer)
}

// TestClassify maps dial errors to port states.
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.PortState
	}{
		{"nil error is open", nil, model.StateOpen},
		{"syscall refusal", refusedError(), model.StateClosed},
		{"wrapped refusal", &net.OpError{Op: "dial", Net: "tcp", Err: refusedError()}, model.StateClosed},
		{
			"target refused behind proxy",
			&net.OpError{Op: "socks connect", Net: "tcp", Err: errors.New("unknown error connection refused")},
			model.StateClosed,
		},
		{
			"proxy itself refused",
			&net.OpError{Op: "socks connect", Net: "tcp", Err: &net.OpError{Op: "dial", Net: "tcp", Err: refusedError()}},
			model.StateFiltered,
		},
		{
			"target unreachable behind proxy",
			&net.OpError{Op: "socks connect", Net: "tcp", Err: errors.New("unknown error host unreachable")},
			model.StateFiltered,
		},
		{"timeout", context.DeadlineExceeded, model.StateFiltered},
		{"unreachable", errors.New("connect: network is unreachable"), model.StateFiltered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
