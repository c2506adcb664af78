package domain

import "time"

// CallerIdentity is the authenticated principal plus correlation ids for one
// inbound request. It is constructed once at the authentication boundary and
// passed by value through the core.
type CallerIdentity struct {
	BillingAccountID string
	VirtualKeyID     string
	RequestID        string
	TraceID          string
}

// RunContext identifies one execution of a graph. RunID is stable across
// reconnects to the same logical run; IngressRequestID correlates one delivery
// attempt and may differ from RunID on reconnect. Attempt is reserved for
// retry semantics and is always 0 today.
type RunContext struct {
	RunID            string
	Attempt          int
	IngressRequestID string
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// RunRequest is the input to a graph run.
type RunRequest struct {
	Run       RunContext
	Caller    CallerIdentity
	GraphName string // namespaced "<providerID>:<graphName>" at the router boundary
	Model     string
	Messages  []Message
	MaxTokens int
}

// RunResult is the future "final" outcome of a run.
type RunResult struct {
	OK           bool
	Content      string
	FinishReason string
	Usage        *Usage
	Err          error
}

// RunHandle pairs a provider's event stream with its future final result.
// Events is closed by the provider when the stream ends; Final is buffered
// and always resolves exactly once.
type RunHandle struct {
	Events <-chan Event
	Final  <-chan RunResult
}

// FailedRunHandle builds a handle expressing failure through the same
// stream/final contract as success: an error event, a done event, and a
// failed final result. It never blocks.
func FailedRunHandle(err error) *RunHandle {
	events := make(chan Event, 2)
	events <- Event{Type: EventError, Error: err.Error()}
	events <- Event{Type: EventDone}
	close(events)

	final := make(chan RunResult, 1)
	final <- RunResult{OK: false, Err: err}
	close(final)

	return &RunHandle{Events: events, Final: final}
}

// GraphDescriptor describes one runnable graph.
type GraphDescriptor struct {
	ID          string `json:"id"` // namespaced "<providerID>:<graphName>"
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
}

// UsageFact is one billable unit of provider usage, produced inside a
// usage_report event. It is ephemeral; only the derived charge receipt is
// durable.
type UsageFact struct {
	RunID            string
	Attempt          int
	BillingAccountID string
	VirtualKeyID     string
	IngressRequestID string
	Source           string
	Model            string
	CostUSD          *float64 // nil when the provider omitted cost data
	UsageUnitID      string   // adapter-stable id for the unit; may be empty
}

// Provenance records whether a charge originated from a streamed run or a
// single-shot completion.
type Provenance string

const (
	ProvenanceStreamed   Provenance = "streamed"
	ProvenanceSingleShot Provenance = "single_shot"
)

// Source systems partition the idempotency keyspace.
const (
	SourceSystemGraphRun   = "graph_run"
	SourceSystemCompletion = "completion"
)

// ChargeReasonLLMUsage is the charge reason for model usage receipts.
const ChargeReasonLLMUsage = "llm_usage"

// ChargeReceipt is a durable ledger row recording one billed (possibly
// zero-cost) unit of usage. Created once, never mutated or deleted.
// (SourceSystem, SourceReference) is the idempotency key, unique at the
// storage layer.
type ChargeReceipt struct {
	BillingAccountID string     `json:"billing_account_id"`
	VirtualKeyID     string     `json:"virtual_key_id,omitempty"`
	RunID            string     `json:"run_id,omitempty"`
	Attempt          int        `json:"attempt"`
	IngressRequestID string     `json:"ingress_request_id,omitempty"`
	ChargedCredits   int64      `json:"charged_credits"`
	ResponseCostUSD  *float64   `json:"response_cost_usd,omitempty"`
	ProviderCallID   string     `json:"provider_call_id,omitempty"`
	Provenance       Provenance `json:"provenance"`
	ChargeReason     string     `json:"charge_reason"`
	SourceSystem     string     `json:"source_system"`
	SourceReference  string     `json:"source_reference"`
}

// CompletionRequest is a single-shot (non-streamed) completion request.
// Model is namespaced "<providerID>:<model>" at the router boundary.
type CompletionRequest struct {
	Caller    CallerIdentity
	Model     string
	Messages  []Message
	MaxTokens int
}

// CompletionResponse is the result of a single-shot completion.
type CompletionResponse struct {
	ID         string    `json:"id"` // provider call id; may be empty
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	Content    string    `json:"content"`
	Usage      Usage     `json:"usage"`
	FinishTime time.Time `json:"finish_time"`
}

// Usage tracks token consumption for one unit of work.
type Usage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	CostUSD          *float64 `json:"cost_usd,omitempty"`
}
