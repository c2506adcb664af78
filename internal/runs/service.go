// Package runs orchestrates one caller request end to end: admission
// control, provider routing, relay attachment and single-shot billing.
package runs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/admission"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/ledger"
	"github.com/davidbz/hearth/internal/relay"
	"github.com/davidbz/hearth/internal/router"
)

// Service ties admission, routing, the relay and the ledger together.
type Service struct {
	admission *admission.Controller
	router    *router.Router
	relay     *relay.Relay
	ledger    *ledger.Service
	logger    *zap.Logger
}

// NewService creates a new run service (DI constructor).
func NewService(
	admissionCtrl *admission.Controller,
	graphRouter *router.Router,
	eventRelay *relay.Relay,
	billing *ledger.Service,
	logger *zap.Logger,
) *Service {
	return &Service{
		admission: admissionCtrl,
		router:    graphRouter,
		relay:     eventRelay,
		ledger:    billing,
		logger:    logger,
	}
}

// ListGraphs returns the namespaced graphs of all registered providers.
func (s *Service) ListGraphs(ctx context.Context) []domain.GraphDescriptor {
	return s.router.ListGraphs(ctx)
}

// Stream handles a streamed graph run. Admission rejection is returned
// before any provider call; afterwards all failure flows through the stream.
func (s *Service) Stream(ctx context.Context, req *domain.RunRequest) (*relay.Stream, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if req.GraphName == "" {
		return nil, errors.New("graph name cannot be empty")
	}

	if err := s.admission.Check(ctx, req.Caller, req.Messages); err != nil {
		return nil, err
	}

	s.logger.Info("run admitted",
		zap.String("run_id", req.Run.RunID),
		zap.String("graph_name", req.GraphName),
		zap.String("billing_account_id", req.Caller.BillingAccountID),
	)

	handle := s.router.RunGraph(ctx, req)

	return s.relay.Attach(ctx, req.Run, handle), nil
}

// Complete handles a single-shot completion and records its billing. The
// billing write never blocks or reverses the delivered response; its error
// is non-nil only when the ledger runs in strict mode.
func (s *Service) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}

	if err := s.admission.Check(ctx, req.Caller, req.Messages); err != nil {
		return nil, err
	}

	resp, err := s.router.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	billErr := s.ledger.RecordBilling(context.WithoutCancel(ctx), &ledger.CompletionBilling{
		Caller:         req.Caller,
		Model:          resp.Model,
		ProviderCallID: resp.ID,
		CostUSD:        resp.Usage.CostUSD,
	})
	if billErr != nil {
		return resp, fmt.Errorf("billing record failed: %w", billErr)
	}

	return resp, nil
}
