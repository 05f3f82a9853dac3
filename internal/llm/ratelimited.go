package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/nvandessel/adoptsim/internal/models"
)

// RateLimitedProposer paces calls to an inner proposer. Calls block until
// the limiter admits them or the context ends.
type RateLimitedProposer struct {
	inner   Proposer
	limiter *rate.Limiter
}

// WrapWithRateLimit wraps inner with a limiter admitting limit calls per
// second. A non-positive limit returns inner unchanged and a burst below 1
// is raised to 1.
func WrapWithRateLimit(inner Proposer, limit rate.Limit, burst int) Proposer {
	if limit <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProposer{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

// Propose waits for the limiter, then delegates.
func (r *RateLimitedProposer) Propose(ctx context.Context, node models.ScenarioNode, pctx ProposalContext, maxProposals int) ([]models.Proposal, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for proposer rate limit: %w", err)
	}
	return r.inner.Propose(ctx, node, pctx, maxProposals)
}

// Available delegates to the inner proposer.
func (r *RateLimitedProposer) Available() bool {
	return r.inner.Available()
}
