// Package graphitesink sends tallierd's flush report to a downstream
// time-series sink over a fresh TCP connection per flush, grounded on
// original_source/tallier.py's Master._send_to_graphite.
package graphitesink

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// dialTimeout bounds how long connecting to the sink may take, so a dead
// or firewalled sink cannot stall the flush scheduler indefinitely.
const dialTimeout = 5 * time.Second

// Client opens one TCP connection per flush to addr, sends all report
// lines joined by "\n" with a trailing "\n", and closes — no framing
// beyond newlines, no acknowledgement expected, per §6.
type Client struct {
	addr string
}

// New returns a Client targeting addr ("host:port").
func New(addr string) *Client {
	return &Client{addr: addr}
}

// Send connects to the sink, writes all lines, and closes the connection.
// On connect or send failure the error is returned to the caller (which,
// per §7, logs and continues without retry or buffering); the flush
// interval is not extended and the current report is lost.
func (c *Client) Send(ctx context.Context, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("connecting to graphite sink %s: %w", c.addr, err)
	}
	defer conn.Close()

	payload := strings.Join(lines, "\n") + "\n"
	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("sending report to graphite sink %s: %w", c.addr, err)
	}
	return nil
}
