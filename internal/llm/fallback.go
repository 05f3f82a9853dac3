package llm

import (
	"context"
	"io"
	"log/slog"

	"github.com/nvandessel/adoptsim/internal/models"
)

// FallbackProposer tries a primary proposer and falls back to a secondary
// one when the primary is unavailable, fails, or returns nothing.
type FallbackProposer struct {
	primary   Proposer
	secondary Proposer
	logger    *slog.Logger
}

// WithFallback wraps primary so that secondary answers when it cannot.
func WithFallback(primary, secondary Proposer, logger *slog.Logger) *FallbackProposer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FallbackProposer{primary: primary, secondary: secondary, logger: logger}
}

// Propose implements Proposer.
func (f *FallbackProposer) Propose(ctx context.Context, node models.ScenarioNode, pctx ProposalContext, maxProposals int) ([]models.Proposal, error) {
	if f.primary.Available() {
		proposals, err := f.primary.Propose(ctx, node, pctx, maxProposals)
		if err == nil && len(proposals) > 0 {
			return proposals, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("primary proposer gave no proposals, using fallback",
			"node", node.ID, "error", err)
	}
	return f.secondary.Propose(ctx, node, pctx, maxProposals)
}

// Available reports whether either proposer can serve requests.
func (f *FallbackProposer) Available() bool {
	return f.primary.Available() || f.secondary.Available()
}
