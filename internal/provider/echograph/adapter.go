// Package echograph provides a deterministic in-memory provider that echoes
// the conversation back as a streamed run. It implements the domain.Provider
// interface without external API calls and is used for development and for
// exercising the relay and ledger in tests.
package echograph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
)

const (
	providerID = "echo"
	graphChat  = "chat"
	modelName  = "echo4"
)

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	chunkDelay time.Duration
	logger     *zap.Logger
}

// NewProvider creates a new echo provider. No configuration is required as
// this provider operates entirely in-memory.
func NewProvider(logger *zap.Logger) *Provider {
	return &Provider{
		chunkDelay: time.Millisecond,
		logger:     logger,
	}
}

// ID returns the namespace prefix this provider owns.
func (p *Provider) ID() string {
	return providerID
}

// Graphs returns the single echo graph.
func (p *Provider) Graphs(_ context.Context) []domain.GraphDescriptor {
	return []domain.GraphDescriptor{
		{
			ID:          graphChat,
			Name:        graphChat,
			Description: "echoes the conversation back, one word at a time",
			Model:       modelName,
		},
	}
}

// RunGraph streams the echoed conversation word by word, reports one
// zero-cost usage fact and resolves the final result.
func (p *Provider) RunGraph(ctx context.Context, req *domain.RunRequest) *domain.RunHandle {
	events := make(chan domain.Event)
	final := make(chan domain.RunResult, 1)

	go p.run(ctx, req, events, final)

	return &domain.RunHandle{Events: events, Final: final}
}

func (p *Provider) run(
	ctx context.Context,
	req *domain.RunRequest,
	events chan<- domain.Event,
	final chan<- domain.RunResult,
) {
	defer close(events)
	defer close(final)

	if req.GraphName != graphChat {
		final <- domain.RunResult{
			OK:  false,
			Err: fmt.Errorf("graph %s is not provided by echo", req.GraphName),
		}
		return
	}

	p.logger.Debug("echo run started", zap.String("run_id", req.Run.RunID))

	content := buildEchoContent(req.Messages)
	words := strings.Fields(content)

	streamed := 0
	for i, word := range words {
		delta := word
		if i < len(words)-1 {
			delta += " "
		}

		select {
		case <-ctx.Done():
			p.emitUsage(req, events)
			final <- domain.RunResult{OK: false, Err: ctx.Err()}
			return
		case events <- domain.Event{Type: domain.EventTextDelta, Delta: delta}:
			streamed++
			time.Sleep(p.chunkDelay)
		}
	}

	p.emitUsage(req, events)

	final <- domain.RunResult{
		OK:           true,
		Content:      content,
		FinishReason: "stop",
		Usage: &domain.Usage{
			PromptTokens:     len(words),
			CompletionTokens: streamed,
			TotalTokens:      len(words) + streamed,
		},
	}
}

// emitUsage reports the single billable unit of an echo run. The unit id is
// derived from the run id so reconnects and retries collapse onto one
// receipt.
func (p *Provider) emitUsage(req *domain.RunRequest, events chan<- domain.Event) {
	zero := 0.0

	events <- domain.Event{
		Type: domain.EventUsageReport,
		Usage: &domain.UsageFact{
			RunID:            req.Run.RunID,
			Attempt:          req.Run.Attempt,
			BillingAccountID: req.Caller.BillingAccountID,
			VirtualKeyID:     req.Caller.VirtualKeyID,
			IngressRequestID: req.Run.IngressRequestID,
			Source:           providerID,
			Model:            modelName,
			CostUSD:          &zero,
			UsageUnitID:      "echo-" + req.Run.RunID,
		},
	}
}

// Complete executes a single-shot echo completion.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req.Model != modelName {
		return nil, fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}

	content := buildEchoContent(req.Messages)
	tokens := len(strings.Fields(content))
	zero := 0.0

	return &domain.CompletionResponse{
		ID:       fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Model:    modelName,
		Provider: providerID,
		Content:  content,
		Usage: domain.Usage{
			PromptTokens:     tokens,
			CompletionTokens: tokens,
			TotalTokens:      tokens * 2,
			CostUSD:          &zero,
		},
		FinishTime: time.Now(),
	}, nil
}

// buildEchoContent constructs the echo response from request messages.
func buildEchoContent(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, msg := range messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
	}
	return builder.String()
}
