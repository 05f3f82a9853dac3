// Package explore drives beam searches over scorecard variants toward an
// adoption goal and reconstructs the winning path of a search.
//
// A search runs depth by depth. At each depth the driver asks the proposer
// for design changes to every frontier node, evaluates the resulting
// children with the simulation engine, then ranks and prunes them. Work
// inside a depth runs concurrently; ranking and pruning happen only after
// every evaluation of the depth has finished.
package explore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/adoptsim/internal/constants"
	"github.com/nvandessel/adoptsim/internal/llm"
	"github.com/nvandessel/adoptsim/internal/logging"
	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/persona"
	"github.com/nvandessel/adoptsim/internal/sanitize"
	"github.com/nvandessel/adoptsim/internal/simulation"
	"github.com/nvandessel/adoptsim/internal/store"
)

const tracerName = "github.com/nvandessel/adoptsim/internal/explore"

var errNoProposals = errors.New("no usable proposals")

// Options tune a Driver. Zero values select defaults.
type Options struct {
	// Workers bounds concurrent proposer calls and node evaluations within a depth.
	Workers int

	ProposalTimeout   time.Duration
	EvaluationTimeout time.Duration

	// CacheSize is the per-run evaluation cache size. The cache is only used
	// when the exploration fixes a seed. Negative disables it.
	CacheSize int

	// Now supplies wall time. Node timestamps are forced strictly increasing.
	Now func() time.Time

	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
	Metrics   *Metrics
	Tracer    trace.Tracer
}

// Driver runs explorations against a store, a persona source, a proposer
// and a simulation engine. A Driver may run several explorations at once.
type Driver struct {
	store    store.Store
	personas persona.Source
	proposer llm.Proposer
	engine   *simulation.Engine
	opts     Options
	clock    *monotonicClock
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewDriver creates a driver.
func NewDriver(st store.Store, personas persona.Source, proposer llm.Proposer, engine *simulation.Engine, opts Options) *Driver {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.ProposalTimeout <= 0 {
		opts.ProposalTimeout = constants.DefaultProposalTimeout
	}
	if opts.EvaluationTimeout <= 0 {
		opts.EvaluationTimeout = constants.DefaultEvaluationTimeout
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = constants.DefaultEvaluationCacheSize
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Driver{
		store:    st,
		personas: personas,
		proposer: proposer,
		engine:   engine,
		opts:     opts,
		clock:    newMonotonicClock(opts.Now),
		logger:   logging.OrDiscard(opts.Logger),
		tracer:   tracer,
	}
}

// Create validates p and persists a pending exploration.
func (d *Driver) Create(ctx context.Context, p Params) (*models.Exploration, error) {
	exp, err := NewExploration(p, d.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := d.store.CreateExploration(ctx, exp); err != nil {
		return nil, asStoreErr("create exploration", err)
	}
	return &exp, nil
}

// WinningPath returns the winning path of an exploration in the driver's store.
func (d *Driver) WinningPath(ctx context.Context, explorationID string) ([]models.ScenarioNode, error) {
	return WinningPath(ctx, d.store, explorationID)
}

// Run drives a pending exploration to a terminal status and returns its
// final state.
//
// A dead end is a normal outcome: the exploration is marked failed and Run
// returns a nil error. Invalid configuration, persona source failures, store
// failures and cancellation also mark it failed, and Run returns the cause.
// Nodes evaluated before a failure stay in the store.
func (d *Driver) Run(ctx context.Context, explorationID string) (*models.Exploration, error) {
	stored, err := d.store.GetExploration(ctx, explorationID)
	if err != nil {
		return nil, asStoreErr("get exploration", err)
	}
	if stored.Status != models.ExplorationPending {
		return stored, fmt.Errorf("exploration %s is %s: only pending explorations can run", explorationID, stored.Status)
	}

	ctx, span := d.tracer.Start(ctx, "explore.Run", trace.WithAttributes(
		attribute.String("exploration.id", explorationID),
		attribute.Int("exploration.max_depth", stored.MaxDepth),
		attribute.Int("exploration.beam_width", stored.BeamWidth),
	))
	defer span.End()

	d.opts.Metrics.runStarted()
	defer d.opts.Metrics.runFinished()

	r := &run{
		d:      d,
		exp:    *stored,
		logger: d.logger.With("exploration", explorationID),
	}

	r.exp.Status = models.ExplorationRunning
	err = r.save(ctx)
	if err == nil {
		err = r.search(ctx)
	}

	var exp *models.Exploration
	if err == nil {
		exp, err = r.finish(ctx)
	} else {
		exp, err = r.fail(ctx, err)
	}

	span.SetAttributes(
		attribute.String("exploration.status", string(exp.Status)),
		attribute.Float64("exploration.best_success_rate", exp.BestSuccessRate),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, exp.FailureReason)
	}
	return exp, err
}

// run holds the state of one exploration while it is driven.
type run struct {
	d        *Driver
	exp      models.Exploration
	personas []models.PersonaAttributes
	cache    *evalCache
	logger   *slog.Logger
}

// candidate is one proposed child awaiting evaluation.
type candidate struct {
	parent   models.ScenarioNode
	proposal models.Proposal
	result   *models.SimulationResult
	err      error
}

func (r *run) search(ctx context.Context) error {
	if err := Validate(r.exp); err != nil {
		return err
	}

	personas, err := r.d.personas.GetPopulation(ctx, r.exp.GroupID)
	if err != nil {
		return fmt.Errorf("persona source: %w", err)
	}
	if len(personas) < r.exp.Simulation.NumPersonas {
		return &models.ConfigError{
			Field:  "num_personas",
			Reason: fmt.Sprintf("group %s has %d personas, need %d", r.exp.GroupID, len(personas), r.exp.Simulation.NumPersonas),
		}
	}
	r.personas = personas[:r.exp.Simulation.NumPersonas]
	if r.exp.Simulation.Seed != nil {
		r.cache = newEvalCache(r.d.opts.CacheSize)
	}

	root, err := r.evaluateRoot(ctx)
	if err != nil {
		return err
	}
	if r.exp.Goal.MetBy(root.SimulationResults) {
		r.reachGoal(root)
		return nil
	}
	if err := r.save(ctx); err != nil {
		return err
	}

	frontier := []models.ScenarioNode{root}
	for r.exp.CurrentDepth < r.exp.MaxDepth {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, goal, err := r.expand(ctx, frontier)
		if err != nil {
			return err
		}
		if goal != nil {
			r.reachGoal(*goal)
			return nil
		}
		if err := r.save(ctx); err != nil {
			return err
		}
		frontier = next
	}

	r.exp.Status = models.ExplorationMaxDepthReached
	return nil
}

func (r *run) evaluateRoot(ctx context.Context) (models.ScenarioNode, error) {
	root := models.ScenarioNode{
		ID:              uuid.NewString(),
		ExplorationID:   r.exp.ID,
		ScorecardParams: r.exp.BaselineScorecard,
	}

	ectx, cancel := context.WithTimeout(ctx, r.d.opts.EvaluationTimeout)
	res, err := r.evaluate(ectx, r.exp.BaselineScorecard)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return root, ctx.Err()
		}
		var cfgErr *models.ConfigError
		if errors.As(err, &cfgErr) {
			return root, err
		}
		root.Status = models.NodePruned
		root.Error = r.describeEvalError(err)
		root.CreatedAt = r.d.clock.Now()
		if err := r.d.store.CreateNode(ctx, root); err != nil {
			return root, asStoreErr("create root", err)
		}
		r.exp.TotalNodes = 1
		r.d.opts.Metrics.node("failed")
		return root, &models.DeadEndError{Depth: 0, Reason: "root evaluation failed: " + root.Error}
	}

	root.Status = models.NodeEvaluated
	root.SimulationResults = res
	root.CreatedAt = r.d.clock.Now()
	if err := r.d.store.CreateNode(ctx, root); err != nil {
		return root, asStoreErr("create root", err)
	}
	r.exp.TotalNodes = 1
	r.exp.BestSuccessRate = res.Success
	r.d.opts.Metrics.node("evaluated")

	r.logger.Debug("root evaluated", "node", root.ID, "success", res.Success)
	r.d.opts.Decisions.Log(logging.Decision{
		Event:         logging.EventRootEvaluated,
		ExplorationID: r.exp.ID,
		NodeID:        root.ID,
		SuccessRate:   logging.Rate(res.Success),
	})
	return root, nil
}

// expand runs one depth. It returns the next frontier, or the goal node
// when a child met the goal.
func (r *run) expand(ctx context.Context, frontier []models.ScenarioNode) ([]models.ScenarioNode, *models.ScenarioNode, error) {
	depth := r.exp.CurrentDepth + 1
	ctx, span := r.d.tracer.Start(ctx, "explore.depth", trace.WithAttributes(
		attribute.Int("depth", depth),
		attribute.Int("frontier.size", len(frontier)),
	))
	defer span.End()

	proposals, err := r.propose(ctx, frontier)
	if err != nil {
		return nil, nil, err
	}

	var cands []*candidate
	for i, parent := range frontier {
		for _, p := range proposals[i] {
			cands = append(cands, &candidate{parent: parent, proposal: p})
		}
	}
	span.SetAttributes(attribute.Int("candidates", len(cands)))
	if len(cands) == 0 {
		return nil, nil, &models.DeadEndError{Depth: depth, Reason: "no proposals for any frontier node"}
	}

	goalIdx, err := r.evaluateAll(ctx, cands)
	if err != nil {
		if kerr := r.keepEvaluated(context.WithoutCancel(ctx), cands); kerr != nil {
			r.logger.Error("storing evaluated children", "error", kerr)
		}
		return nil, nil, err
	}
	if goalIdx >= 0 {
		cands = cands[:goalIdx+1]
	}

	evaluated := make([]models.ScenarioNode, 0, len(cands))
	for _, c := range cands {
		node, err := r.persistChild(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		if node.Status == models.NodeEvaluated {
			evaluated = append(evaluated, node)
		}
	}
	if len(evaluated) == 0 {
		return nil, nil, &models.DeadEndError{Depth: depth, Reason: "no child evaluated successfully"}
	}

	r.exp.CurrentDepth = depth
	for _, n := range evaluated {
		r.exp.BestSuccessRate = max(r.exp.BestSuccessRate, n.SuccessRate())
	}

	if goalIdx >= 0 {
		goal := evaluated[len(evaluated)-1]
		return nil, &goal, nil
	}

	ranked := slices.Clone(evaluated)
	slices.SortStableFunc(ranked, func(a, b models.ScenarioNode) int {
		return cmp.Compare(b.SuccessRate(), a.SuccessRate())
	})
	keep := min(r.exp.BeamWidth, len(ranked))
	for _, n := range ranked[keep:] {
		if err := r.d.store.UpdateNodeStatus(ctx, n.ID, models.NodePruned); err != nil {
			return nil, nil, asStoreErr("prune node", err)
		}
		r.d.opts.Metrics.node("pruned")
		r.d.opts.Decisions.Log(logging.Decision{
			Event:         logging.EventPruned,
			ExplorationID: r.exp.ID,
			NodeID:        n.ID,
			ParentID:      n.ParentID,
			Depth:         n.Depth,
			SuccessRate:   logging.Rate(n.SuccessRate()),
		})
	}

	r.logger.Info("depth complete",
		"depth", depth,
		"children", len(evaluated),
		"kept", keep,
		"best", r.exp.BestSuccessRate)
	return ranked[:keep], nil, nil
}

// propose asks the proposer for children of every frontier node
// concurrently. A failed call yields no proposals for that node; only
// store failures and cancellation abort the depth.
func (r *run) propose(ctx context.Context, frontier []models.ScenarioNode) ([][]models.Proposal, error) {
	out := make([][]models.Proposal, len(frontier))
	failures := make([]string, len(frontier))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.d.opts.Workers)
	for i, node := range frontier {
		g.Go(func() error {
			path, err := r.d.store.GetPathToNode(gctx, node.ID)
			if err != nil {
				return asStoreErr("get path", err)
			}

			pctx := llm.ProposalContext{
				FeatureContext: r.exp.FeatureContext,
				Scenario:       r.exp.Scenario,
				Goal:           r.exp.Goal,
				Path:           path,
			}
			proposals, err := r.callProposer(gctx, node, pctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if gctx.Err() != nil {
					return nil
				}
				perr := &models.ProposalError{NodeID: node.ID, Err: err}
				r.d.opts.Metrics.proposalFailed()
				r.logger.Warn("proposal failed", "node", node.ID, "error", err)
				r.d.opts.Decisions.Log(logging.Decision{
					Event:         logging.EventProposalFailed,
					ExplorationID: r.exp.ID,
					NodeID:        node.ID,
					Depth:         node.Depth,
					Detail:        perr.Error(),
				})
				failures[i] = perr.Error()
				return nil
			}
			out[i] = proposals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, f := range failures {
		if f != "" {
			r.exp.ProposalFailures++
			r.exp.LastProposalError = f
		}
	}
	return out, ctx.Err()
}

type proposeResult struct {
	proposals []models.Proposal
	err       error
}

// callProposer bounds one proposer call by the proposal timeout, even when
// the proposer ignores its context.
func (r *run) callProposer(ctx context.Context, node models.ScenarioNode, pctx llm.ProposalContext) ([]models.Proposal, error) {
	timeout := r.d.opts.ProposalTimeout
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cctx, span := r.d.tracer.Start(cctx, "explore.propose", trace.WithAttributes(attribute.String("node.id", node.ID)))
	defer span.End()

	ch := make(chan proposeResult, 1)
	go func() {
		proposals, err := r.d.proposer.Propose(cctx, node, pctx, r.exp.BeamWidth)
		ch <- proposeResult{proposals, err}
	}()

	var res proposeResult
	select {
	case res = <-ch:
	case <-cctx.Done():
		res.err = cctx.Err()
	}
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			res.err = fmt.Errorf("timed out after %s: %w", timeout, res.err)
		}
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		return nil, res.err
	}

	usable := make([]models.Proposal, 0, min(len(res.proposals), r.exp.BeamWidth))
	for _, p := range res.proposals {
		if len(usable) == r.exp.BeamWidth {
			break
		}
		if p.Delta.IsZero() {
			continue
		}
		if err := p.Delta.Validate(); err != nil {
			r.logger.Debug("dropping proposal", "node", node.ID, "category", p.Category, "error", err)
			continue
		}
		p.Category = sanitize.Category(p.Category)
		p.Rationale = sanitize.Rationale(p.Rationale)
		usable = append(usable, p)
	}
	span.SetAttributes(attribute.Int("proposals", len(usable)))
	if len(usable) == 0 {
		return nil, errNoProposals
	}
	return usable, nil
}

// evaluateAll evaluates candidates concurrently and returns the index of
// the first candidate meeting the goal, or -1. Candidates after a known
// goal index are skipped, and results after the final goal index are
// discarded by the caller, so the outcome does not depend on scheduling.
func (r *run) evaluateAll(ctx context.Context, cands []*candidate) (int, error) {
	var minGoal atomic.Int64
	minGoal.Store(int64(len(cands)))

	var g errgroup.Group
	g.SetLimit(r.d.opts.Workers)
	for i, c := range cands {
		g.Go(func() error {
			if int64(i) > minGoal.Load() || ctx.Err() != nil {
				return nil
			}

			ectx, cancel := context.WithTimeout(ctx, r.d.opts.EvaluationTimeout)
			res, err := r.evaluate(ectx, c.parent.ScorecardParams.Apply(c.proposal.Delta))
			cancel()
			if err != nil {
				c.err = err
				return nil
			}
			c.result = res

			if r.exp.Goal.MetBy(res) {
				for {
					cur := minGoal.Load()
					if int64(i) >= cur || minGoal.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return -1, err
	}
	if idx := minGoal.Load(); idx < int64(len(cands)) {
		return int(idx), nil
	}
	return -1, nil
}

// keepEvaluated stores the children whose evaluation finished before the
// depth was cancelled. Unfinished children are dropped.
func (r *run) keepEvaluated(ctx context.Context, cands []*candidate) error {
	for _, c := range cands {
		if c.result == nil {
			continue
		}
		if _, err := r.persistChild(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) persistChild(ctx context.Context, c *candidate) (models.ScenarioNode, error) {
	delta := c.proposal.Delta
	node := models.ScenarioNode{
		ID:              uuid.NewString(),
		ExplorationID:   r.exp.ID,
		ParentID:        c.parent.ID,
		Depth:           c.parent.Depth + 1,
		ActionApplied:   &delta,
		ActionCategory:  c.proposal.Category,
		Rationale:       c.proposal.Rationale,
		ScorecardParams: c.parent.ScorecardParams.Apply(delta),
		CreatedAt:       r.d.clock.Now(),
	}

	decision := logging.Decision{
		ExplorationID: r.exp.ID,
		NodeID:        node.ID,
		ParentID:      node.ParentID,
		Depth:         node.Depth,
		Category:      node.ActionCategory,
	}
	if c.err != nil {
		node.Status = models.NodePruned
		node.Error = r.describeEvalError(c.err)
		decision.Event = logging.EventChildFailed
		decision.Detail = node.Error
	} else {
		node.Status = models.NodeEvaluated
		node.SimulationResults = c.result
		decision.Event = logging.EventChildEvaluated
		decision.SuccessRate = logging.Rate(c.result.Success)
	}

	if err := r.d.store.CreateNode(ctx, node); err != nil {
		return node, asStoreErr("create node", err)
	}
	r.exp.TotalNodes++

	if c.err != nil {
		r.d.opts.Metrics.node("failed")
		r.logger.Warn("child evaluation failed", "node", node.ID, "parent", node.ParentID, "error", node.Error)
	} else {
		r.d.opts.Metrics.node("evaluated")
		r.logger.Debug("child evaluated",
			"node", node.ID,
			"parent", node.ParentID,
			"category", node.ActionCategory,
			"success", c.result.Success)
	}
	r.d.opts.Decisions.Log(decision)
	return node, nil
}

// evaluate runs the simulation engine for one scorecard.
func (r *run) evaluate(ctx context.Context, card models.ScorecardParams) (*models.SimulationResult, error) {
	if res, ok := r.cache.get(card); ok {
		r.d.opts.Metrics.cacheHit()
		return &res, nil
	}

	ctx, span := r.d.tracer.Start(ctx, "explore.evaluate")
	defer span.End()

	start := time.Now()
	out, err := r.d.engine.Run(ctx, r.personas, r.exp.Scenario, card, r.exp.Simulation)
	r.d.opts.Metrics.observeEvaluation(time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Float64("success_rate", out.Population.Success))
	r.cache.add(card, out.Population)
	res := out.Population
	return &res, nil
}

func (r *run) describeEvalError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("evaluation timed out after %s", r.d.opts.EvaluationTimeout)
	}
	return err.Error()
}

func (r *run) reachGoal(node models.ScenarioNode) {
	r.exp.Status = models.ExplorationGoalAchieved
	r.exp.GoalNodeID = node.ID
	r.exp.CurrentDepth = node.Depth
	r.exp.BestSuccessRate = max(r.exp.BestSuccessRate, node.SuccessRate())

	r.d.opts.Decisions.Log(logging.Decision{
		Event:         logging.EventGoalAchieved,
		ExplorationID: r.exp.ID,
		NodeID:        node.ID,
		Depth:         node.Depth,
		SuccessRate:   logging.Rate(node.SuccessRate()),
		Detail:        fmt.Sprintf("%.4f >= %.4f", node.SuccessRate(), r.exp.Goal.Value),
	})
}

func (r *run) save(ctx context.Context) error {
	r.exp.UpdatedAt = r.d.clock.Now()
	if err := r.d.store.UpdateExploration(ctx, r.exp); err != nil {
		return asStoreErr("update exploration", err)
	}
	return nil
}

// finish persists the terminal status. It ignores cancellation of ctx so a
// cancelled run is still recorded as failed.
func (r *run) finish(ctx context.Context) (*models.Exploration, error) {
	err := r.save(context.WithoutCancel(ctx))

	r.d.opts.Metrics.exploration(string(r.exp.Status))
	r.d.opts.Decisions.Log(logging.Decision{
		Event:         logging.EventFinished,
		ExplorationID: r.exp.ID,
		Depth:         r.exp.CurrentDepth,
		SuccessRate:   logging.Rate(r.exp.BestSuccessRate),
		Detail:        string(r.exp.Status),
	})
	r.logger.Info("exploration finished",
		"status", r.exp.Status,
		"depth", r.exp.CurrentDepth,
		"best", r.exp.BestSuccessRate,
		"nodes", r.exp.TotalNodes,
		"reason", r.exp.FailureReason)

	exp := r.exp
	return &exp, err
}

// fail marks the exploration failed with a reason derived from cause.
func (r *run) fail(ctx context.Context, cause error) (*models.Exploration, error) {
	ret := cause
	var deadEnd *models.DeadEndError
	switch {
	case ctx.Err() != nil:
		r.exp.FailureReason = "cancelled: " + ctx.Err().Error()
		ret = ctx.Err()
	case errors.As(cause, &deadEnd):
		r.exp.FailureReason = deadEnd.Error()
		ret = nil
		r.d.opts.Decisions.Log(logging.Decision{
			Event:         logging.EventDeadEnd,
			ExplorationID: r.exp.ID,
			Depth:         deadEnd.Depth,
			Detail:        deadEnd.Reason,
		})
	default:
		r.exp.FailureReason = cause.Error()
	}
	r.exp.Status = models.ExplorationFailed

	exp, err := r.finish(ctx)
	if err != nil {
		r.logger.Error("recording failure", "error", err)
		if ret == nil {
			ret = err
		}
	}
	return exp, ret
}

func asStoreErr(op string, err error) error {
	var se *models.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &models.StoreError{Op: op, Err: err}
}
