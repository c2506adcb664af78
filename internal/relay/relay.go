// Package relay decouples the UI-facing event stream of a run from the
// billing-relevant work hidden inside it. A pump goroutine drives the
// provider stream to completion no matter what the consumer does; the drain
// side hands UI events to the caller and always terminates once the pump has
// finished.
package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
)

// UsageCommitter consumes usage facts surfaced by the pump. Implemented by
// the billing ledger service.
type UsageCommitter interface {
	CommitUsageFact(ctx context.Context, fact *domain.UsageFact, ordinal int) error
}

// Relay attaches pump/drain pairs to provider run handles.
type Relay struct {
	ledger UsageCommitter
	logger *zap.Logger
}

// NewRelay creates a new event relay (DI constructor).
func NewRelay(ledger UsageCommitter, logger *zap.Logger) *Relay {
	return &Relay{
		ledger: ledger,
		logger: logger,
	}
}

// Stream is the caller-facing side of a run. It yields UI-visible events
// only: usage reports are diverted to the ledger, and the terminal pair is
// synthesized by the pump exactly once.
type Stream struct {
	q *eventQueue
}

// Next returns the next UI-visible event. ok is false once the run has ended
// and all queued events were delivered, or when ctx is cancelled.
func (s *Stream) Next(ctx context.Context) (domain.Event, bool) {
	return s.q.next(ctx)
}

// Attach starts the pump for the given run handle and returns the drain side.
// The pump runs until the provider stream completes even if the returned
// stream is never read; ctx cancellation aborts the run for the caller but
// not the accounting of usage already reported.
func (r *Relay) Attach(
	ctx context.Context,
	run domain.RunContext,
	handle *domain.RunHandle,
) *Stream {
	q := newEventQueue()
	go r.pump(ctx, run, handle, q)
	return &Stream{q: q}
}

func (r *Relay) pump(
	ctx context.Context,
	run domain.RunContext,
	handle *domain.RunHandle,
	q *eventQueue,
) {
	logger := r.logger.With(
		zap.String("run_id", run.RunID),
		zap.Int("attempt", run.Attempt),
		zap.String("ingress_request_id", run.IngressRequestID),
	)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("pump panicked", zap.Any("panic", rec))
			q.push(domain.Event{Type: domain.EventError, Error: "internal error"})
			q.push(domain.Event{Type: domain.EventDone})
			q.close()
		}
	}()

	// Billing commits must survive caller cancellation.
	billCtx := context.WithoutCancel(ctx)
	ordinal := 0

	for {
		select {
		case ev, ok := <-handle.Events:
			if !ok {
				r.finish(handle, q, logger)
				return
			}
			r.forward(billCtx, run, ev, &ordinal, q, logger)

		case <-ctx.Done():
			logger.Warn("run aborted by caller, draining remaining usage")
			q.push(domain.Event{Type: domain.EventError, Error: domain.ErrRunAborted.Error()})
			q.push(domain.Event{Type: domain.EventDone})
			q.close()

			// Cancellation stops new work, not accounting for work already
			// done: keep consuming the provider stream for usage facts until
			// the provider (which received the same ctx) shuts it down.
			for ev := range handle.Events {
				if ev.Type == domain.EventUsageReport {
					r.commit(billCtx, run, ev.Usage, &ordinal, logger)
				}
			}
			return
		}
	}
}

// forward routes one provider event: usage reports go to the ledger, terminal
// shapes are dropped (the pump synthesizes its own from the final result),
// everything else is queued for the caller.
func (r *Relay) forward(
	billCtx context.Context,
	run domain.RunContext,
	ev domain.Event,
	ordinal *int,
	q *eventQueue,
	logger *zap.Logger,
) {
	switch {
	case ev.Type == domain.EventUsageReport:
		r.commit(billCtx, run, ev.Usage, ordinal, logger)
	case ev.IsTerminal():
		// Terminal synthesis is owned here; a provider-emitted terminal
		// event would otherwise duplicate it.
	default:
		q.push(ev)
	}
}

func (r *Relay) commit(
	billCtx context.Context,
	run domain.RunContext,
	fact *domain.UsageFact,
	ordinal *int,
	logger *zap.Logger,
) {
	if fact == nil {
		logger.Error("usage_report event without usage fact")
		return
	}

	idx := *ordinal
	*ordinal++

	if err := r.ledger.CommitUsageFact(billCtx, fact, idx); err != nil {
		logger.Error("usage fact commit failed",
			zap.Int("ordinal", idx),
			zap.Error(err),
		)
	}
}

// finish awaits the provider's final result and emits exactly one terminal
// pair before closing the queue.
func (r *Relay) finish(
	handle *domain.RunHandle,
	q *eventQueue,
	logger *zap.Logger,
) {
	res, ok := <-handle.Final
	if !ok {
		logger.Error("provider closed final channel without a result")
		res = domain.RunResult{OK: false, Err: context.Canceled}
	}

	if res.OK {
		q.push(domain.Event{Type: domain.EventAssistantFinal, Content: res.Content})
	} else {
		reason := "provider failure"
		if res.Err != nil {
			reason = res.Err.Error()
		}
		logger.Warn("run failed", zap.String("reason", reason))
		q.push(domain.Event{Type: domain.EventError, Error: reason})
	}

	q.push(domain.Event{Type: domain.EventDone})
	q.close()
}
