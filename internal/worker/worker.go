// Package worker implements tallierd's per-receiver Controller: one
// goroutine that owns a Listener and answers FLUSH/SHUTDOWN commands from
// the Master, grounded on original_source/tallier.py's Controller class.
package worker

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/logan/monitors/internal/listener"
	"github.com/logan/monitors/internal/selfstat"
)

// CommandKind distinguishes the two commands a Worker accepts from the
// Master, per the spec's "exactly two accepted commands".
type CommandKind int

const (
	// Flush requests the Listener's current bundle be swapped out and
	// returned.
	Flush CommandKind = iota
	// Shutdown requests the Worker terminate its receive path and report
	// back its final message count.
	Shutdown
)

// Command is sent over a Worker's command channel. Reply carries back
// either a flushed Bundle (for Flush) or the final message count (for
// Shutdown), tagged by Kind — the "typed channel carrying a tagged
// variant" design note from §9 of the spec.
type Command struct {
	Kind  CommandKind
	Reply chan Reply
}

// Reply is what a Worker sends back for a Command.
type Reply struct {
	Bundle       *listener.Bundle
	MessageCount uint64
}

// Worker owns exactly one Listener and processes commands from the Master
// sequentially over its Commands channel.
type Worker struct {
	ID       int
	Commands chan Command

	listener *listener.Listener
	log      *logrus.Entry
}

// New constructs a Worker bound to the shared UDP socket conn.
func New(id int, conn *net.UDPConn, stats *selfstat.Stats, readBufferDepth int, log *logrus.Entry) *Worker {
	entry := log.WithField("worker", id)
	return &Worker{
		ID:       id,
		Commands: make(chan Command),
		listener: listener.New(id, conn, stats, readBufferDepth, entry),
		log:      entry,
	}
}

// Run starts the Listener's receive loop and then processes Master
// commands until ctx is cancelled or a Shutdown command is handled.
// It does not return until the Listener's accumulation loop has stopped,
// so the caller can safely read the Worker's final message count from the
// Shutdown reply afterward.
func (w *Worker) Run(ctx context.Context) {
	listenerCtx, cancelListener := context.WithCancel(ctx)
	defer cancelListener()

	go w.listener.Run(listenerCtx)

	for {
		select {
		case <-ctx.Done():
			cancelListener()
			<-w.listener.Stopped()
			return
		case cmd := <-w.Commands:
			switch cmd.Kind {
			case Flush:
				bundle, err := w.listener.Flush(ctx)
				if err != nil {
					w.log.WithError(err).Warn("flush request failed, reporting empty bundle for this cycle")
					bundle = listener.NewBundle()
				}
				cmd.Reply <- Reply{Bundle: bundle}
			case Shutdown:
				cancelListener()
				<-w.listener.Stopped()
				cmd.Reply <- Reply{MessageCount: w.listener.MessageCount()}
				return
			default:
				w.log.WithField("kind", cmd.Kind).Warn("worker received unknown command from master")
			}
		}
	}
}
