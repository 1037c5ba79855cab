package port

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// ProgressSink receives one ProbeOutcome per attempted probe, open or not,
// followed by a single Finish call once the last worker has returned.
//
// The Scanner calls it from a single goroutine, so implementations need no
// locking even though the outcomes originate from many concurrent workers.
// This is what keeps progress marks from interleaving on the terminal.
type ProgressSink interface {
	Observe(out model.ProbeOutcome)
	Finish()
}

// noopSink is the default ProgressSink when the caller does not want
// progress output (e.g. in tests or with --progress none).
type noopSink struct{}

func (noopSink) Observe(model.ProbeOutcome) {}
func (noopSink) Finish()                    {}

// Scanner runs a full scan: it allocates residue classes, starts one worker
// per class, and aggregates the open ports they report.
//
// A Scanner holds no per-scan state, so one instance can run several scans
// one after another; everything that belongs to a single scan lives in the
// ScanResult returned by Scan.
//
// Usage:
//
//	s := port.NewScanner(port.NewTCPProber(nil, time.Second),
//		port.WithProgress(sink), port.WithLogger(log))
//	result, err := s.Scan(ctx, target)
type Scanner struct {
	// allocator splits [0, model.MaxPort] into one residue class per worker.
	allocator *Allocator

	// prober performs the individual connect attempts. It is shared by all
	// workers and must be safe for concurrent use; TCPProber is.
	prober Prober

	// progress receives every ProbeOutcome. Defaults to a no-op sink.
	progress ProgressSink

	// log receives scan lifecycle messages (start, finish, interruption).
	// Defaults to a logger that discards everything.
	log logrus.FieldLogger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithProgress routes every probe outcome to sink. A nil sink is ignored.
func WithProgress(sink ProgressSink) Option {
	return func(s *Scanner) {
		if sink != nil {
			s.progress = sink
		}
	}
}

// WithLogger sets the logger used for scan lifecycle messages. A nil logger
// is ignored.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Scanner) {
		if log != nil {
			s.log = log
		}
	}
}

// NewScanner creates a Scanner that probes with prober.
func NewScanner(prober Prober, opts ...Option) *Scanner {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Scanner{
		allocator: NewAllocator(),
		prober:    prober,
		progress:  noopSink{},
		log:       discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan probes every port of target and returns the ordered open ports.
//
// The pipeline is a fan-out/fan-in:
//
//	worker 0 ─┐                 ┌─> Aggregate (reports) ─> OpenPorts
//	worker 1 ─┼─ reports/events ┤
//	   ...    │                 └─> stats + ProgressSink (events)
//	worker N ─┘
//
// Workers start concurrently. The report and event channels are closed by a
// single closer goroutine only after every worker has returned, including
// workers that panicked, so the aggregator always terminates: completion is
// signalled by channel closure, never by a sentinel value.
//
// Returns:
//   - the result and nil when every port was probed
//   - the partial result and ctx.Err() when ctx was cancelled
//   - the partial result and a wrapped error when a worker failed
//   - nil and an error when target is invalid (nothing was started)
func (s *Scanner) Scan(ctx context.Context, target model.ScanTarget) (*model.ScanResult, error) {
	// Step 1: Partition the port space. Allocate verifies full, disjoint
	// coverage before any connection is attempted.
	assignments, err := s.allocator.Allocate(target)
	if err != nil {
		return nil, err
	}

	result := &model.ScanResult{
		ID:        uuid.NewString(),
		Target:    target,
		StartedAt: time.Now(),
	}
	// The timeout is reported in structured output when the prober knows it.
	if t, ok := s.prober.(interface{ Timeout() time.Duration }); ok {
		result.Timeout = t.Timeout()
	}

	log := s.log.WithFields(logrus.Fields{
		"scan":    result.ID,
		"address": target.Address.String(),
		"workers": target.Workers,
	})
	log.WithField("probes", TotalProbes(assignments)).Debug("scan started")

	// Buffer one slot per worker so a worker rarely waits on a consumer.
	reports := make(chan model.OpenPortReport, target.Workers)
	events := make(chan model.ProbeOutcome, target.Workers)

	// Step 2: Start one worker per assignment. errgroup cancels gctx as soon
	// as one worker fails, so the others stop at their next probe.
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range assignments {
		a := a
		w := NewWorker(a.Offset, s.prober)
		g.Go(func() (err error) {
			// A panicking worker must still return, otherwise Wait never
			// finishes and the channels are never closed.
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d panicked: %v", a.Offset, r)
				}
			}()
			return w.Run(gctx, a, reports, events)
		})
	}

	// Step 3: Close both channels once the last producer is gone. This is
	// the only place that closes them; workers never do.
	workersDone := make(chan error, 1)
	go func() {
		err := g.Wait()
		close(reports)
		close(events)
		workersDone <- err
	}()

	// Step 4: Consume events on a single goroutine. It owns the probe
	// counters and the progress sink, so neither needs a lock.
	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		for out := range events {
			result.Probed++
			switch out.State {
			case model.StateClosed:
				result.Closed++
			case model.StateFiltered:
				result.Filtered++
			}
			s.progress.Observe(out)
		}
		s.progress.Finish()
	}()

	// Step 5: Aggregate open ports on this goroutine, then wait for the
	// workers and the event consumer before touching result again.
	ports, aggErr := Aggregate(ctx, reports)
	workerErr := <-workersDone
	<-statsDone

	result.OpenPorts = ports
	result.FinishedAt = time.Now()

	log = log.WithFields(logrus.Fields{
		"open":     len(ports),
		"probed":   result.Probed,
		"closed":   result.Closed,
		"filtered": result.Filtered,
		"elapsed":  result.Duration().Round(time.Millisecond).String(),
	})

	// Step 6: Decide which error, if any, the caller sees. Cancellation wins
	// because worker errors after a cancel are only its echo.
	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("scan interrupted")
		return result, err
	}
	if aggErr != nil {
		return result, aggErr
	}
	if workerErr != nil {
		log.WithError(workerErr).Error("scan failed")
		return result, fmt.Errorf("scan %s: %w", target.Address, workerErr)
	}

	log.Debug("scan finished")
	return result, nil
}
