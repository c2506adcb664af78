// Package router dispatches run and completion requests to the provider
// owning their namespace prefix. Failure is always expressed through the
// same stream/final contract as success, so callers have one handling path.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/domain"
)

const namespaceSeparator = ":"

// Router owns the closed set of registered providers.
type Router struct {
	providers map[string]domain.Provider
	order     []string
	logger    *zap.Logger
}

// NewRouter creates a router over the given providers. Provider ids must be
// unique and non-empty.
func NewRouter(providers []domain.Provider, logger *zap.Logger) (*Router, error) {
	r := &Router{
		providers: make(map[string]domain.Provider, len(providers)),
		logger:    logger,
	}

	for _, p := range providers {
		if p == nil {
			return nil, errors.New("provider cannot be nil")
		}

		id := p.ID()
		if id == "" {
			return nil, errors.New("provider id cannot be empty")
		}

		if _, exists := r.providers[id]; exists {
			return nil, fmt.Errorf("provider %s already registered", id)
		}

		r.providers[id] = p
		r.order = append(r.order, id)
	}

	return r, nil
}

// ListGraphs flattens graph descriptors from all registered providers,
// namespacing each id with its provider prefix.
func (r *Router) ListGraphs(ctx context.Context) []domain.GraphDescriptor {
	var graphs []domain.GraphDescriptor

	for _, id := range r.order {
		for _, g := range r.providers[id].Graphs(ctx) {
			g.ID = id + namespaceSeparator + g.ID
			graphs = append(graphs, g)
		}
	}

	return graphs
}

// RunGraph extracts the namespace prefix of req.GraphName and delegates to
// the provider claiming it. An unknown or malformed name yields a synthetic
// failed handle, never a synchronous error.
func (r *Router) RunGraph(ctx context.Context, req *domain.RunRequest) *domain.RunHandle {
	provider, rest, err := r.resolve(req.GraphName)
	if err != nil {
		r.logger.Warn("graph routing failed",
			zap.String("graph_name", req.GraphName),
			zap.Error(err),
		)
		return domain.FailedRunHandle(err)
	}

	scoped := *req
	scoped.GraphName = rest

	return provider.RunGraph(ctx, &scoped)
}

// Complete dispatches a single-shot completion by the namespace prefix of
// req.Model.
func (r *Router) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	provider, rest, err := r.resolve(req.Model)
	if err != nil {
		return nil, err
	}

	scoped := *req
	scoped.Model = rest

	return provider.Complete(ctx, &scoped)
}

// resolve splits "<providerID>:<name>" and returns the owning provider.
func (r *Router) resolve(name string) (domain.Provider, string, error) {
	prefix, rest, found := strings.Cut(name, namespaceSeparator)
	if !found || prefix == "" || rest == "" {
		return nil, "", fmt.Errorf("name %q is not namespaced as <provider>%s<name>", name, namespaceSeparator)
	}

	provider, exists := r.providers[prefix]
	if !exists {
		return nil, "", fmt.Errorf("no provider registered for %q", prefix)
	}

	return provider, rest, nil
}
