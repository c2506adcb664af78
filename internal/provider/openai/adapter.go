// Package openai adapts the OpenAI API to the run/event contract using the
// official SDK. Streaming runs surface one usage fact per completion call,
// carrying the provider's completion id as the billable unit id.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
)

const providerID = "openai"

const (
	// GPT-4 pricing per 1K tokens
	gpt4InputCostPer1K  = 0.03
	gpt4OutputCostPer1K = 0.06

	// GPT-4 Turbo pricing per 1K tokens
	gpt4TurboInputCostPer1K  = 0.01
	gpt4TurboOutputCostPer1K = 0.03

	// GPT-3.5 Turbo pricing per 1K tokens
	gpt35TurboInputCostPer1K  = 0.0005
	gpt35TurboOutputCostPer1K = 0.0015

	// Token conversion factor (tokens to per-1K)
	tokensToPerK = 1000.0
)

// modelCost contains per-model pricing used to derive provider cost from
// reported token usage.
type modelCost struct {
	inputCostPer1K  float64
	outputCostPer1K float64
}

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client openai.Client
	logger *zap.Logger
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config, logger *zap.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		logger: logger,
	}, nil
}

// ID returns the namespace prefix this provider owns.
func (p *Provider) ID() string {
	return providerID
}

// Graphs returns the chat graph.
func (p *Provider) Graphs(_ context.Context) []domain.GraphDescriptor {
	return []domain.GraphDescriptor{
		{
			ID:          "chat",
			Name:        "chat",
			Description: "single-model chat completion run",
		},
	}
}

// RunGraph starts a streaming chat completion run.
func (p *Provider) RunGraph(ctx context.Context, req *domain.RunRequest) *domain.RunHandle {
	events := make(chan domain.Event)
	final := make(chan domain.RunResult, 1)

	go p.stream(ctx, req, events, final)

	return &domain.RunHandle{Events: events, Final: final}
}

func (p *Provider) stream(
	ctx context.Context,
	req *domain.RunRequest,
	events chan<- domain.Event,
	final chan<- domain.RunResult,
) {
	defer close(events)
	defer close(final)

	if req.GraphName != "chat" {
		final <- domain.RunResult{
			OK:  false,
			Err: fmt.Errorf("graph %s is not provided by openai", req.GraphName),
		}
		return
	}

	logger := p.logger.With(
		zap.String("run_id", req.Run.RunID),
		zap.String("model", req.Model),
	)
	logger.Debug("calling OpenAI streaming API")

	params := toChatParams(req.Model, req.Messages, req.MaxTokens)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	var content strings.Builder
	var callID, finishReason string
	var usage *domain.Usage

	for stream.Next() {
		chunk := stream.Current()

		if callID == "" {
			callID = chunk.ID
		}

		if chunk.Usage.TotalTokens > 0 {
			usage = &domain.Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		if reason := chunk.Choices[0].FinishReason; reason != "" {
			finishReason = reason
		}

		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		content.WriteString(delta)
		events <- domain.Event{Type: domain.EventTextDelta, Delta: delta}
	}

	streamErr := stream.Err()

	// Usage reported before a failure or abort is still billed. A stream
	// that died before OpenAI's usage chunk arrived still made a billable
	// call once it has a completion id; it is reported with unknown cost so
	// the ledger records a degraded receipt instead of leaving a gap.
	if fact := p.usageFact(req, callID, usage); fact != nil {
		events <- domain.Event{Type: domain.EventUsageReport, Usage: fact}
	}

	if streamErr != nil {
		logger.Error("OpenAI stream failed", zap.Error(streamErr))
		final <- domain.RunResult{
			OK:  false,
			Err: fmt.Errorf("OpenAI stream error: %w", streamErr),
		}
		return
	}

	final <- domain.RunResult{
		OK:           true,
		Content:      content.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}
}

// usageFact builds the billable unit for one completion call, or nil when
// the stream produced neither a completion id nor usage and there is nothing
// to bill. Models without a pricing entry, and streams cut off before the
// usage chunk, carry a nil cost, which the ledger records as degraded billing
// rather than dropping the unit.
func (p *Provider) usageFact(req *domain.RunRequest, callID string, usage *domain.Usage) *domain.UsageFact {
	if usage == nil && callID == "" {
		return nil
	}

	return &domain.UsageFact{
		RunID:            req.Run.RunID,
		Attempt:          req.Run.Attempt,
		BillingAccountID: req.Caller.BillingAccountID,
		VirtualKeyID:     req.Caller.VirtualKeyID,
		IngressRequestID: req.Run.IngressRequestID,
		Source:           providerID,
		Model:            req.Model,
		CostUSD:          costUSD(req.Model, usage),
		UsageUnitID:      callID,
	}
}

// Complete sends a single-shot completion request.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	logger := p.logger.With(zap.String("model", req.Model))
	logger.Debug("calling OpenAI API")

	params := toChatParams(req.Model, req.Messages, req.MaxTokens)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := domain.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	usage.CostUSD = costUSD(req.Model, &usage)

	return &domain.CompletionResponse{
		ID:         resp.ID,
		Model:      string(resp.Model),
		Provider:   providerID,
		Content:    content,
		Usage:      usage,
		FinishTime: time.Now(),
	}, nil
}

// costUSD derives provider cost from token usage; nil when the model has no
// pricing entry.
func costUSD(model string, usage *domain.Usage) *float64 {
	cost, exists := modelCosts()[model]
	if !exists || usage == nil {
		return nil
	}

	inputCost := float64(usage.PromptTokens) / tokensToPerK * cost.inputCostPer1K
	outputCost := float64(usage.CompletionTokens) / tokensToPerK * cost.outputCostPer1K
	total := inputCost + outputCost

	return &total
}

func modelCosts() map[string]modelCost {
	return map[string]modelCost{
		"gpt-4": {
			inputCostPer1K:  gpt4InputCostPer1K,
			outputCostPer1K: gpt4OutputCostPer1K,
		},
		"gpt-4-turbo": {
			inputCostPer1K:  gpt4TurboInputCostPer1K,
			outputCostPer1K: gpt4TurboOutputCostPer1K,
		},
		"gpt-3.5-turbo": {
			inputCostPer1K:  gpt35TurboInputCostPer1K,
			outputCostPer1K: gpt35TurboOutputCostPer1K,
		},
	}
}

// toChatParams converts domain messages to SDK ChatCompletionNewParams.
func toChatParams(model string, messages []domain.Message, maxTokens int) openai.ChatCompletionNewParams {
	sdkMessages := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case "assistant":
			sdkMessages[i] = openai.AssistantMessage(msg.Content)
		case "system":
			sdkMessages[i] = openai.SystemMessage(msg.Content)
		default:
			sdkMessages[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: sdkMessages,
	}

	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	return params
}
