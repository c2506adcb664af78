package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/runs"
)

// Handler handles HTTP requests. It is a thin layer: request parsing, caller
// identity extraction and JSON/SSE shaping; everything else lives in the run
// service.
type Handler struct {
	runs   *runs.Service
	store  domain.LedgerStore
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(runService *runs.Service, store domain.LedgerStore, logger *zap.Logger) *Handler {
	return &Handler{
		runs:   runService,
		store:  store,
		logger: logger,
	}
}

// runRequestBody is the wire shape of a run request.
type runRequestBody struct {
	Graph     string           `json:"graph"`
	Model     string           `json:"model,omitempty"`
	Messages  []domain.Message `json:"messages"`
	MaxTokens int              `json:"max_tokens,omitempty"`

	// RunID may be supplied on reconnect to the same logical run; it is
	// generated otherwise.
	RunID string `json:"run_id,omitempty"`
}

// callerFromRequest builds the caller identity at the service boundary.
// Wallet/SIWE authentication happens upstream; by the time a request reaches
// this handler the billing headers are trusted.
func callerFromRequest(r *http.Request) (domain.CallerIdentity, error) {
	accountID := r.Header.Get("X-Billing-Account")
	if accountID == "" {
		return domain.CallerIdentity{}, fmt.Errorf("missing X-Billing-Account header")
	}

	ctx := r.Context()

	return domain.CallerIdentity{
		BillingAccountID: accountID,
		VirtualKeyID:     r.Header.Get("X-Virtual-Key"),
		RequestID:        observability.GetRequestID(ctx),
		TraceID:          observability.GetTraceID(ctx),
	}, nil
}

// HandleRun processes streamed graph runs over SSE.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caller, err := callerFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var body runRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	runID := body.RunID
	if runID == "" {
		runID = observability.GenerateRunID()
	}

	ctx := observability.WithRunID(r.Context(), runID)
	ctx = observability.WithBillingAccountID(ctx, caller.BillingAccountID)
	logger := observability.WithContext(ctx, h.logger)

	req := &domain.RunRequest{
		Run: domain.RunContext{
			RunID:            runID,
			Attempt:          0,
			IngressRequestID: caller.RequestID,
		},
		Caller:    caller,
		GraphName: body.Graph,
		Model:     body.Model,
		Messages:  body.Messages,
		MaxTokens: body.MaxTokens,
	}

	stream, err := h.runs.Stream(ctx, req)
	if err != nil {
		h.writeRunError(w, logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Run-Id", runID)

	for {
		ev, ok := stream.Next(ctx)
		if !ok {
			logger.Info("run stream drained")
			return
		}

		data, err := json.Marshal(ev)
		if err != nil {
			logger.Error("failed to encode event", zap.Error(err))
			continue
		}

		fmt.Fprintf(w, "data: %s\n\n", string(data))
		flusher.Flush()
	}
}

func (h *Handler) writeRunError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if domain.IsInsufficientCredits(err) {
		logger.Info("run rejected", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	logger.Error("run failed to start", zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// HandleCompletion processes single-shot completion requests.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caller, err := callerFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var body struct {
		Model     string           `json:"model"`
		Messages  []domain.Message `json:"messages"`
		MaxTokens int              `json:"max_tokens,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx := observability.WithBillingAccountID(r.Context(), caller.BillingAccountID)
	logger := observability.WithContext(ctx, h.logger)

	resp, err := h.runs.Complete(ctx, &domain.CompletionRequest{
		Caller:    caller,
		Model:     body.Model,
		Messages:  body.Messages,
		MaxTokens: body.MaxTokens,
	})
	if err != nil {
		h.writeRunError(w, logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// HandleGraphs lists the graphs of all registered providers.
func (h *Handler) HandleGraphs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	graphs := h.runs.ListGraphs(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"graphs": graphs}); err != nil {
		h.logger.Error("failed to encode graphs", zap.Error(err))
	}
}

// HandleReceipts returns the receipts of one run attempt for reconciliation.
func (h *Handler) HandleReceipts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	attempt := 0
	if raw := r.URL.Query().Get("attempt"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "attempt must be an integer", http.StatusBadRequest)
			return
		}
		attempt = parsed
	}

	receipts, err := h.store.ListReceiptsByRun(r.Context(), runID, attempt)
	if err != nil {
		h.logger.Error("failed to list receipts", zap.Error(err))
		http.Error(w, "failed to list receipts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"receipts": receipts}); err != nil {
		h.logger.Error("failed to encode receipts", zap.Error(err))
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Status is already written; nothing to change for the client.
		h.logger.Error("failed to encode health response", zap.Error(err))
	}
}
