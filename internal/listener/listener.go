// Package listener owns the receive loop on tallierd's shared UDP socket
// and the per-worker accumulation bundle it feeds, grounded on
// original_source/tallier.py's Listener class and on the teacher's
// udpListen/s.in channel pattern in plugins/inputs/statsd/statsd.go.
package listener

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/logan/monitors/internal/sample"
	"github.com/logan/monitors/internal/selfstat"
)

// maxDatagramSize is the specified receive buffer size: the wire format's
// max parsed datagram size.
const maxDatagramSize = 1024

// keyCountPrefix marks the synthetic counter tracking exact per-key
// observation counts, regardless of sample kind.
const keyCountPrefix = "tallier._key_counts."

// Bundle is the accumulation target for one flush interval: counter sums
// and ordered timer-observation lists, keyed by normalized sample key.
type Bundle struct {
	Counters map[string]float64
	Timers   map[string][]float64
}

// NewBundle returns a freshly allocated, empty Bundle.
func NewBundle() *Bundle {
	return &Bundle{
		Counters: make(map[string]float64),
		Timers:   make(map[string][]float64),
	}
}

// accumulate applies one Sample's contribution per the data model invariant:
// counters get value/rate added, timers get value appended, and every
// sample increments its key's exact observation count.
func (b *Bundle) accumulate(s sample.Sample) {
	if s.Kind == sample.Counter {
		b.Counters[s.Key] += s.Value / s.SampleRate
	} else {
		b.Timers[s.Key] = append(b.Timers[s.Key], s.Value)
	}
	b.Counters[keyCountPrefix+s.Key]++
}

// datagram is one received UDP payload, queued from the socket-reading
// goroutine to the single accumulation goroutine.
type datagram struct {
	data []byte
	n    int
}

// flushRequest carries a reply channel the accumulation goroutine uses to
// hand back the swapped-out bundle plus the message/byte-count deltas
// embedded per the spec.
type flushRequest struct {
	reply chan *Bundle
}

// Listener receives datagrams on a shared UDP socket and accumulates them
// into a live Bundle that can be atomically swapped out via Flush.
//
// The read loop and the accumulation loop are split into two goroutines so
// that accumulation (including the flush swap) has exactly one owner and
// needs no mutex on the hot path — the "inject flush as a message into the
// receive loop" design the spec calls out as preferred.
type Listener struct {
	ID   int
	conn *net.UDPConn
	log  *logrus.Entry
	buf  int

	stats *selfstat.Stats

	in       chan datagram
	flushReq chan flushRequest
	stopped  chan struct{}

	messageCount     uint64
	byteCount        uint64
	lastMessageCount uint64
	lastByteCount    uint64
}

// New constructs a Listener over a shared UDP connection. bufSize controls
// the depth of the inbound channel between the socket reader and the
// accumulation goroutine (the "allowed pending messages" knob named after
// the teacher's AllowedPendingMessages field).
func New(id int, conn *net.UDPConn, stats *selfstat.Stats, bufSize int, log *logrus.Entry) *Listener {
	if bufSize <= 0 {
		bufSize = 10000
	}
	return &Listener{
		ID:       id,
		conn:     conn,
		log:      log.WithField("worker", id),
		stats:    stats,
		in:       make(chan datagram, bufSize),
		flushReq: make(chan flushRequest),
		stopped:  make(chan struct{}),
	}
}

// Run drives the receive loop until ctx is cancelled. It starts the
// socket-reading goroutine and then owns the single accumulation loop,
// which both drains received datagrams and answers Flush requests.
func (l *Listener) Run(ctx context.Context) {
	go l.readLoop(ctx)
	l.accumulateLoop(ctx)
}

// readLoop blocks on ReadFromUDP and forwards each datagram to the
// accumulation goroutine. Socket errors are logged and the loop continues;
// it only terminates on shutdown, per the spec's failure semantics.
func (l *Listener) readLoop(ctx context.Context) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.log.WithError(err).Warn("error reading from shared UDP socket")
			continue
		}

		if l.stats != nil {
			l.stats.UDPPacketsRecv.Inc()
			l.stats.UDPBytesRecv.Add(float64(n))
		}

		cp := make([]byte, n)
		copy(cp, buf[:n])

		select {
		case l.in <- datagram{data: cp, n: n}:
			if l.stats != nil {
				l.stats.SetPending(l.ID, len(l.in))
			}
		default:
			if l.stats != nil {
				l.stats.UDPPacketsDrop.Inc()
			}
			l.log.Warn("inbound datagram channel full, dropping datagram")
		}
	}
}

// accumulateLoop is the single owner of `live`. It never runs concurrently
// with itself, so accumulation and the flush swap are mutually exclusive
// without a mutex.
func (l *Listener) accumulateLoop(ctx context.Context) {
	defer close(l.stopped)
	live := NewBundle()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-l.in:
			start := time.Now()
			for _, s := range sample.Parse(d.data) {
				live.accumulate(s)
			}
			if l.stats != nil {
				l.stats.ParseTimeNS.Set(float64(time.Since(start).Nanoseconds()))
			}
			l.messageCount++
			l.byteCount += uint64(d.n)
		case req := <-l.flushReq:
			flushed := live
			live = NewBundle()

			mc := l.messageCount
			flushed.Counters[fmt.Sprintf("tallier.messages.child_%d", l.ID)] = float64(mc - l.lastMessageCount)
			l.lastMessageCount = mc

			bc := l.byteCount
			flushed.Counters[fmt.Sprintf("tallier.bytes.child_%d", l.ID)] = float64(bc - l.lastByteCount)
			l.lastByteCount = bc

			req.reply <- flushed
		}
	}
}

// Flush atomically replaces the live bundle with a fresh one and returns
// the former, with the worker's message/byte-count deltas since the last
// flush embedded into its counters. It must be called from outside the
// accumulation goroutine (typically the owning Worker).
func (l *Listener) Flush(ctx context.Context) (*Bundle, error) {
	reply := make(chan *Bundle, 1)
	select {
	case l.flushReq <- flushRequest{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case b := <-reply:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stopped is closed once the accumulation loop has exited after ctx was
// cancelled. MessageCount is only safe to read after Stopped is closed.
func (l *Listener) Stopped() <-chan struct{} {
	return l.stopped
}

// MessageCount returns the cumulative number of datagrams processed since
// start. It is only safe to call after the accumulation loop has stopped
// (i.e. during SHUTDOWN handling, after Stopped is closed), matching the
// spec's use for master-side bookkeeping at shutdown.
func (l *Listener) MessageCount() uint64 {
	return l.messageCount
}
