package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/relay"
)

type committedFact struct {
	fact    domain.UsageFact
	ordinal int
}

// captureCommitter records every usage fact handed to the ledger.
type captureCommitter struct {
	mu    sync.Mutex
	facts []committedFact
}

func (c *captureCommitter) CommitUsageFact(_ context.Context, fact *domain.UsageFact, ordinal int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.facts = append(c.facts, committedFact{fact: *fact, ordinal: ordinal})
	return nil
}

func (c *captureCommitter) snapshot() []committedFact {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]committedFact, len(c.facts))
	copy(out, c.facts)
	return out
}

func (c *captureCommitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.facts)
}

func testRun() domain.RunContext {
	return domain.RunContext{RunID: "run-1", Attempt: 0, IngressRequestID: "req-1"}
}

func drainStream(t *testing.T, stream *relay.Stream) []domain.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []domain.Event
	for {
		ev, ok := stream.Next(ctx)
		if !ok {
			require.NoError(t, ctx.Err(), "stream did not terminate")
			return events
		}
		events = append(events, ev)
	}
}

func TestRelay_ForwardsDeltasAndSynthesizesTerminal(t *testing.T) {
	committer := &captureCommitter{}
	r := relay.NewRelay(committer, zap.NewNop())

	cost := 0.01
	events := make(chan domain.Event, 8)
	events <- domain.Event{Type: domain.EventTextDelta, Delta: "hel"}
	events <- domain.Event{Type: domain.EventTextDelta, Delta: "lo"}
	events <- domain.Event{
		Type:  domain.EventUsageReport,
		Usage: &domain.UsageFact{RunID: "run-1", Model: "gpt-4", CostUSD: &cost, UsageUnitID: "u-1"},
	}
	// Terminal-shaped provider events must be dropped: terminal synthesis is
	// owned by the relay.
	events <- domain.Event{Type: domain.EventDone}
	close(events)

	final := make(chan domain.RunResult, 1)
	final <- domain.RunResult{OK: true, Content: "hello", FinishReason: "stop"}
	close(final)

	stream := r.Attach(context.Background(), testRun(), &domain.RunHandle{Events: events, Final: final})
	got := drainStream(t, stream)

	require.Len(t, got, 4)
	require.Equal(t, domain.EventTextDelta, got[0].Type)
	require.Equal(t, domain.EventTextDelta, got[1].Type)
	require.Equal(t, domain.EventAssistantFinal, got[2].Type)
	require.Equal(t, "hello", got[2].Content)
	require.Equal(t, domain.EventDone, got[3].Type)

	facts := committer.snapshot()
	require.Len(t, facts, 1)
	require.Equal(t, "u-1", facts[0].fact.UsageUnitID)
	require.Equal(t, 0, facts[0].ordinal)
}

func TestRelay_FailedFinalYieldsErrorEvent(t *testing.T) {
	r := relay.NewRelay(&captureCommitter{}, zap.NewNop())

	events := make(chan domain.Event)
	close(events)

	final := make(chan domain.RunResult, 1)
	final <- domain.RunResult{OK: false, Err: errors.New("upstream exploded")}
	close(final)

	stream := r.Attach(context.Background(), testRun(), &domain.RunHandle{Events: events, Final: final})
	got := drainStream(t, stream)

	require.Len(t, got, 2)
	require.Equal(t, domain.EventError, got[0].Type)
	require.Equal(t, "upstream exploded", got[0].Error)
	require.Equal(t, domain.EventDone, got[1].Type)
}

func TestRelay_FailedRunHandle(t *testing.T) {
	r := relay.NewRelay(&captureCommitter{}, zap.NewNop())

	handle := domain.FailedRunHandle(errors.New("no provider registered for \"nope\""))

	stream := r.Attach(context.Background(), testRun(), handle)
	got := drainStream(t, stream)

	// The handle's own error/done events are terminal-shaped and dropped;
	// exactly one synthesized pair comes out.
	require.Len(t, got, 2)
	require.Equal(t, domain.EventError, got[0].Type)
	require.Contains(t, got[0].Error, "no provider registered")
	require.Equal(t, domain.EventDone, got[1].Type)
}

func TestRelay_PumpRunsWithoutConsumer(t *testing.T) {
	committer := &captureCommitter{}
	r := relay.NewRelay(committer, zap.NewNop())

	cost := 0.02
	events := make(chan domain.Event)
	final := make(chan domain.RunResult, 1)

	go func() {
		events <- domain.Event{Type: domain.EventTextDelta, Delta: "ignored"}
		events <- domain.Event{
			Type:  domain.EventUsageReport,
			Usage: &domain.UsageFact{RunID: "run-1", Model: "gpt-4", CostUSD: &cost, UsageUnitID: "u-1"},
		}
		close(events)
		final <- domain.RunResult{OK: true, Content: "done without reader"}
		close(final)
	}()

	stream := r.Attach(context.Background(), testRun(), &domain.RunHandle{Events: events, Final: final})

	// Billing must complete before anyone reads the stream.
	require.Eventually(t, func() bool {
		return committer.count() == 1
	}, 5*time.Second, 5*time.Millisecond)

	got := drainStream(t, stream)
	require.Equal(t, domain.EventAssistantFinal, got[len(got)-2].Type)
	require.Equal(t, domain.EventDone, got[len(got)-1].Type)
}

func TestRelay_AbortBillsReportedUsage(t *testing.T) {
	committer := &captureCommitter{}
	r := relay.NewRelay(committer, zap.NewNop())

	cost := 0.05
	events := make(chan domain.Event)
	final := make(chan domain.RunResult, 1)
	release := make(chan struct{})

	go func() {
		events <- domain.Event{
			Type:  domain.EventUsageReport,
			Usage: &domain.UsageFact{RunID: "run-1", Model: "gpt-4", CostUSD: &cost, UsageUnitID: "u-1"},
		}
		<-release
		// Usage surfaced while the provider winds down after cancellation.
		events <- domain.Event{
			Type:  domain.EventUsageReport,
			Usage: &domain.UsageFact{RunID: "run-1", Model: "gpt-4", CostUSD: &cost, UsageUnitID: "u-2"},
		}
		close(events)
		final <- domain.RunResult{OK: false, Err: context.Canceled}
		close(final)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	stream := r.Attach(ctx, testRun(), &domain.RunHandle{Events: events, Final: final})

	require.Eventually(t, func() bool {
		return committer.count() == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()

	// The abort pair is pushed before the provider stream is drained, so the
	// caller sees termination immediately.
	got := drainStream(t, stream)
	require.Len(t, got, 2)
	require.Equal(t, domain.EventError, got[0].Type)
	require.Equal(t, domain.ErrRunAborted.Error(), got[0].Error)
	require.Equal(t, domain.EventDone, got[1].Type)

	close(release)

	require.Eventually(t, func() bool {
		return committer.count() == 2
	}, 5*time.Second, 5*time.Millisecond)

	facts := committer.snapshot()
	require.Equal(t, "u-1", facts[0].fact.UsageUnitID)
	require.Equal(t, "u-2", facts[1].fact.UsageUnitID)
	require.Equal(t, []int{0, 1}, []int{facts[0].ordinal, facts[1].ordinal})
}

func TestRelay_UsageReportWithoutFactIsSkipped(t *testing.T) {
	committer := &captureCommitter{}
	r := relay.NewRelay(committer, zap.NewNop())

	events := make(chan domain.Event, 2)
	events <- domain.Event{Type: domain.EventUsageReport, Usage: nil}
	close(events)

	final := make(chan domain.RunResult, 1)
	final <- domain.RunResult{OK: true, Content: "ok"}
	close(final)

	stream := r.Attach(context.Background(), testRun(), &domain.RunHandle{Events: events, Final: final})
	got := drainStream(t, stream)

	require.Equal(t, 0, committer.count())
	require.Len(t, got, 2)
}
