package llm

import (
	"context"
	"sync"
	"time"

	"github.com/nvandessel/adoptsim/internal/models"
)

// ProposeFunc computes proposals for a mock call.
type ProposeFunc func(node models.ScenarioNode, pctx ProposalContext, maxProposals int) ([]models.Proposal, error)

// MockProposer implements Proposer for testing. It returns configured
// proposals or errors, can delay to simulate slow models, and records calls.
type MockProposer struct {
	mu sync.Mutex

	proposals []models.Proposal
	fn        ProposeFunc
	err       error
	delay     time.Duration
	available bool

	ProposeCalls []ProposeCall
}

// ProposeCall records a call to Propose.
type ProposeCall struct {
	Node         models.ScenarioNode
	Context      ProposalContext
	MaxProposals int
}

// NewMockProposer creates an available mock that returns no proposals.
func NewMockProposer() *MockProposer {
	return &MockProposer{available: true}
}

// WithProposals configures a fixed proposal list, truncated to maxProposals per call.
func (m *MockProposer) WithProposals(proposals ...models.Proposal) *MockProposer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals = proposals
	return m
}

// WithFunc configures a function computing each call's result. It takes
// precedence over WithProposals.
func (m *MockProposer) WithFunc(fn ProposeFunc) *MockProposer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// WithError configures the error returned by Propose.
func (m *MockProposer) WithError(err error) *MockProposer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay makes Propose wait d, or until the context ends.
func (m *MockProposer) WithDelay(d time.Duration) *MockProposer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithAvailable configures Available.
func (m *MockProposer) WithAvailable(available bool) *MockProposer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
	return m
}

// Propose implements Proposer.
func (m *MockProposer) Propose(ctx context.Context, node models.ScenarioNode, pctx ProposalContext, maxProposals int) ([]models.Proposal, error) {
	m.mu.Lock()
	m.ProposeCalls = append(m.ProposeCalls, ProposeCall{Node: node, Context: pctx, MaxProposals: maxProposals})
	delay, fn, err := m.delay, m.fn, m.err
	proposals := append([]models.Proposal(nil), m.proposals...)
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(node, pctx, maxProposals)
	}
	if len(proposals) > maxProposals {
		proposals = proposals[:maxProposals]
	}
	return proposals, nil
}

// Available implements Proposer.
func (m *MockProposer) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// ProposeCallCount returns the number of Propose calls.
func (m *MockProposer) ProposeCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ProposeCalls)
}

// Reset clears recorded calls and configured responses.
func (m *MockProposer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals = nil
	m.fn = nil
	m.err = nil
	m.delay = 0
	m.available = true
	m.ProposeCalls = nil
}
