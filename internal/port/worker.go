package port

import (
	"context"

	"github.com/shinji-kodama/portsweep/internal/model"
)

// Worker probes a single residue class of the port space.
//
// Workers are fully independent of each other: they share nothing but the
// outbound channels, which are safe for concurrent senders, and the Prober,
// which must be safe for concurrent use.
type Worker struct {
	// id identifies the worker in reports and logs. By convention it equals
	// the Offset of the assignment the worker runs.
	id int

	// prober performs one bounded-time connect attempt per port.
	prober Prober
}

// NewWorker creates a Worker. By convention id equals the assignment offset.
func NewWorker(id int, prober Prober) *Worker {
	return &Worker{id: id, prober: prober}
}

// Run probes every port of the assignment in ascending order:
//
//	Offset, Offset+Stride, Offset+2*Stride, ..., a.Last()
//
// The number of iterations is computed up front with a.Count(), so the
// topmost in-range port is always probed and the loop never steps past
// model.MaxPort.
//
// Each probe emits exactly one ProbeOutcome on events (when events is
// non-nil); ports found open are additionally sent on reports. A failed
// probe is a classification, not an error: connection refused, timeouts and
// unreachable hosts all just produce a non-open outcome with no retry.
//
// Run returns an error only when the assignment is invalid or ctx ends.
// ctx is checked before each probe and while blocked on either channel, so
// cancellation is noticed within one probe timeout.
func (w *Worker) Run(ctx context.Context, a model.WorkerAssignment, reports chan<- model.OpenPortReport, events chan<- model.ProbeOutcome) error {
	if err := a.Validate(); err != nil {
		return err
	}

	n := a.Count()
	for k := 0; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// k < Count() guarantees p <= MaxPort, so the conversion is exact.
		p := model.Port(a.Offset + k*a.Stride)
		out := w.prober.Probe(ctx, a.Target, p)
		out.Worker = w.id

		// A probe cut short by cancellation says nothing about the port.
		if out.State != model.StateOpen && ctx.Err() != nil {
			return ctx.Err()
		}

		if events != nil {
			select {
			case events <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if out.State == model.StateOpen {
			select {
			case reports <- model.OpenPortReport{Port: p, Worker: w.id}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
