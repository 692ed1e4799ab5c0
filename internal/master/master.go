// Package master implements tallierd's Master/Aggregator: binds the shared
// UDP socket, spawns N workers, drives the flush scheduler, merges worker
// bundles into a flush report, and ships it to the downstream sink.
// Grounded on original_source/tallier.py's Master class and on the
// teacher's Gather/report-building style in
// plugins/inputs/statsd/statsd.go.
package master

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/logan/monitors/internal/command"
	"github.com/logan/monitors/internal/config"
	"github.com/logan/monitors/internal/freqcounter"
	"github.com/logan/monitors/internal/graphitesink"
	"github.com/logan/monitors/internal/heartbeat"
	"github.com/logan/monitors/internal/listener"
	"github.com/logan/monitors/internal/selfstat"
	"github.com/logan/monitors/internal/worker"
)

// workerChannelDepth bounds how many datagrams a worker's Listener may
// queue between the socket reader and the accumulation goroutine before
// new datagrams are dropped, mirroring the teacher's
// AllowedPendingMessages knob.
const workerChannelDepth = 10000

// topStatsLogInterval throttles the "top stat keys" log line to roughly
// once a minute, matching tallier.py's `if time.time() - self._last_stat_msg >= 60`.
const topStatsLogInterval = 60 * time.Second

// Master owns the shared UDP socket, the worker pool, and the flush
// scheduler.
type Master struct {
	cfg config.Config
	log *logrus.Entry

	sock    *net.UDPConn
	workers []*worker.Worker

	sink      *graphitesink.Client
	freq      *freqcounter.Counter
	stats     *selfstat.Stats
	heartbeat *heartbeat.Client
	cmdSvc    *command.Service

	numStats      uint64
	lastFlushTime time.Time
	lastStatsLog  time.Time
}

// New constructs a Master from its configuration. It does not bind any
// sockets; call Run to do so.
func New(cfg config.Config, log *logrus.Entry) *Master {
	m := &Master{
		cfg:   cfg,
		log:   log,
		sink:  graphitesink.New(cfg.GraphiteAddr),
		freq:  freqcounter.New(cfg.FrequencyCounterSize),
		stats: selfstat.New(),
	}
	if cfg.EnableHeartbeat && cfg.HeartbeatURL != "" {
		m.heartbeat = heartbeat.New(cfg.HeartbeatURL)
	}
	return m
}

// Run binds the shared socket, spawns the worker pool, and runs the flush
// scheduler until ctx is cancelled, at which point it performs the
// shutdown sequence described in §5 and returns.
func (m *Master) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", m.cfg.Interface, m.cfg.Port))
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("binding shared UDP socket: %w", err)
	}
	m.sock = sock
	if m.cfg.ReadBufferSize > 0 {
		if err := sock.SetReadBuffer(m.cfg.ReadBufferSize); err != nil {
			m.log.WithError(err).Warn("failed to set UDP read buffer size")
		}
	}
	m.log.WithField("addr", sock.LocalAddr()).Info("listening for stat datagrams")

	m.workers = make([]*worker.Worker, m.cfg.NumWorkers)
	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	for i := range m.workers {
		w := worker.New(i, sock, m.stats, workerChannelDepth, m.log)
		m.workers[i] = w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(workerCtx)
		}()
	}

	if m.cfg.CommandPort > 0 {
		svc, err := command.New(m.cfg.Interface, m.cfg.CommandPort, m.commandHandler, m.log)
		if err != nil {
			return fmt.Errorf("starting command service: %w", err)
		}
		m.cmdSvc = svc
		go svc.Serve(workerCtx)
	}

	now := time.Now()
	m.lastFlushTime = now
	m.lastStatsLog = now
	nextFlush := now.Add(m.cfg.FlushInterval)

	m.log.Info("running")
	for {
		sleepFor := time.Until(nextFlush)
		if sleepFor <= 0 {
			if err := m.flush(ctx); err != nil {
				m.log.WithError(err).Warn("flush failed")
			}
			nextFlush = nextFlush.Add(m.cfg.FlushInterval)
			// Coalesce if we've fallen more than one interval behind.
			if behind := time.Until(nextFlush); behind < 0 {
				nextFlush = time.Now().Add(m.cfg.FlushInterval)
			}
			continue
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return m.shutdown(&wg, cancelWorkers)
		case <-timer.C:
		}
	}
}

// shutdown broadcasts SHUTDOWN to all workers, waits (with a grace
// deadline) for them to exit, then closes the shared socket, per §5.
func (m *Master) shutdown(wg *sync.WaitGroup, cancelWorkers context.CancelFunc) error {
	m.log.Info("shutting down")

	grace, cancel := context.WithTimeout(context.Background(), 2*m.cfg.FlushInterval)
	defer cancel()

	group, gctx := errgroup.WithContext(grace)
	for _, w := range m.workers {
		w := w
		group.Go(func() error {
			reply := make(chan worker.Reply, 1)
			select {
			case w.Commands <- worker.Command{Kind: worker.Shutdown, Reply: reply}:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case r := <-reply:
				m.log.WithFields(logrus.Fields{"worker": w.ID, "messages": r.MessageCount}).Info("worker stopped")
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		m.log.WithError(err).Warn("not all workers shut down cleanly within the grace period; forcing termination")
	}

	cancelWorkers()
	wg.Wait()

	if err := m.sock.Close(); err != nil {
		m.log.WithError(err).Warn("error closing shared UDP socket")
	}
	m.log.Info("shutdown complete")
	return nil
}

// flush runs one full flush cycle: command all workers to FLUSH, merge
// their bundles, update the frequency counter, build the report, and send
// it to the sink.
func (m *Master) flush(ctx context.Context) error {
	bundles := m.commandAllFlush(ctx)

	agg := mergeBundles(bundles)
	m.freq.SampleBatch(agg.keyCounts)
	m.maybeLogTopStats()

	agg.counters["tallier.messages.total"] = agg.totalMsgs
	agg.counters["tallier.bytes.total"] = agg.totalBytes

	now := time.Now()
	interval := now.Sub(m.lastFlushTime).Seconds()
	m.lastFlushTime = now
	m.stats.LastFlushUnix.Set(float64(now.Unix()))

	lines := buildReport(agg, len(m.workers), &m.numStats, now.Unix(), interval)

	if err := m.sink.Send(ctx, lines); err != nil {
		m.log.WithError(err).Warn("error sending report to graphite sink")
		return err
	}

	if m.heartbeat != nil {
		if err := m.heartbeat.Beat(ctx, "tallier", 3*m.cfg.FlushInterval); err != nil {
			m.log.WithError(err).Warn("error sending heartbeat")
		}
	}

	return nil
}

// commandAllFlush sends FLUSH to every worker and collects their replies.
// A worker that does not respond within the flush interval is skipped for
// this cycle and logged, per §7/§9's guidance on non-responsive workers.
func (m *Master) commandAllFlush(ctx context.Context) []*listener.Bundle {
	deadline, cancel := context.WithTimeout(ctx, m.cfg.FlushInterval)
	defer cancel()

	type result struct {
		idx    int
		bundle *listener.Bundle
	}
	results := make(chan result, len(m.workers))

	for i, w := range m.workers {
		i, w := i, w
		go func() {
			reply := make(chan worker.Reply, 1)
			select {
			case w.Commands <- worker.Command{Kind: worker.Flush, Reply: reply}:
			case <-deadline.Done():
				results <- result{idx: i}
				return
			}
			select {
			case r := <-reply:
				results <- result{idx: i, bundle: r.Bundle}
			case <-deadline.Done():
				results <- result{idx: i}
			}
		}()
	}

	bundles := make([]*listener.Bundle, 0, len(m.workers))
	for range m.workers {
		r := <-results
		if r.bundle == nil {
			m.log.WithField("worker", r.idx).Warn("worker did not respond to FLUSH in time, skipping its data for this cycle")
			continue
		}
		bundles = append(bundles, r.bundle)
	}
	return bundles
}

// maybeLogTopStats logs the top-10 most frequently observed stat keys at
// most once per topStatsLogInterval, matching tallier.py's throttled
// "Top stat keys" log line.
func (m *Master) maybeLogTopStats() {
	if time.Since(m.lastStatsLog) < topStatsLogInterval {
		return
	}
	m.lastStatsLog = time.Now()

	top := m.freq.Top(10)
	if len(top) == 0 {
		return
	}
	retained, total := m.freq.Coverage()
	m.log.WithField("coverage", fmt.Sprintf("%d/%d", retained, total)).Info("top stat keys")
	for _, e := range top {
		m.log.Infof("  %s=%d", e.Key, e.Count)
	}
}
