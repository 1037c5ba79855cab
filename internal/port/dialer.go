package port

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// Dialer opens a network connection. *net.Dialer satisfies it, and tests use
// it to inject black-hole or refusing transports.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDirectDialer returns a Dialer that connects straight to the target.
// The per-probe timeout comes from the context passed to DialContext.
func NewDirectDialer() Dialer {
	return &net.Dialer{}
}

// NewProxyDialer returns a Dialer that tunnels every probe through the proxy
// at rawURL (e.g. "socks5://127.0.0.1:1080"). An empty rawURL yields a direct
// dialer.
func NewProxyDialer(rawURL string) (Dialer, error) {
	if rawURL == "" {
		return NewDirectDialer(), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", rawURL, err)
	}

	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("unsupported proxy %q: %w", rawURL, err)
	}

	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd, nil
	}
	return contextDialer{d}, nil
}

// CheckProxy opens and closes one TCP connection to the proxy in rawURL, so
// an unreachable proxy is reported before any probe runs.
func CheckProxy(ctx context.Context, rawURL string, timeout time.Duration) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid proxy address %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid proxy address %q: missing host", rawURL)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", u.Host)
	if err != nil {
		return fmt.Errorf("connect to proxy %s: %w", u.Host, err)
	}
	return conn.Close()
}

// contextDialer adapts a proxy.Dialer without context support. The dial runs
// in its own goroutine; if the context ends first, the late connection is
// closed as soon as it arrives.
type contextDialer struct {
	inner proxy.Dialer
}

func (c contextDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}

	done := make(chan dialResult, 1)
	go func() {
		conn, err := c.inner.Dial(network, address)
		done <- dialResult{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
