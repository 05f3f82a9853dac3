package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/ratelimit"
	"github.com/nvandessel/adoptsim/internal/visualization"
)

const (
	treeURIPrefix   = "adoptsim://explorations/"
	treeURITemplate = treeURIPrefix + "{id}"
	defaultListSize = 50
)

// registerTools registers all adoptsim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSimulate,
		Description: "Run a Monte Carlo adoption simulation for a persona group against a feature scorecard",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolExplore,
		Description: "Beam-search scorecard changes that raise a persona group's adoption success rate toward a goal",
	}, s.handleExplore)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolWinningPath,
		Description: "Get the sequence of design changes from the baseline to the best node of an exploration",
	}, s.handleWinningPath)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolListExplorations,
		Description: "List stored explorations, newest first",
	}, s.handleListExplorations)
}

// registerResources registers the exploration tree resource template.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: treeURITemplate,
		Name:        "adoptsim-exploration-tree",
		Description: "Full node tree of an exploration with the winning path marked.",
		MIMEType:    "application/json",
	}, s.handleTreeResource)
}

// handleSimulate implements the adoptsim_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolSimulate, start, retErr, sanitizeToolParams(map[string]any{
			"group_id":         args.GroupID,
			"scenario":         args.Scenario,
			"scorecard":        args.Scorecard,
			"num_personas":     args.NumPersonas,
			"num_executions":   args.NumExecutions,
			"sigma":            args.Sigma,
			"seed":             args.Seed,
			"include_personas": args.IncludePersonas,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolSimulate); err != nil {
		return nil, SimulateOutput{}, err
	}
	if strings.TrimSpace(args.GroupID) == "" {
		return nil, SimulateOutput{}, fmt.Errorf("group_id is required")
	}

	scenarioName, scenario, err := s.scenario(args.Scenario)
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	card := applyScorecard(s.defaults.Baseline, args.Scorecard)
	cfg := s.defaults.Simulation
	if args.NumPersonas > 0 {
		cfg.NumPersonas = args.NumPersonas
	}
	if args.NumExecutions > 0 {
		cfg.NumExecutions = args.NumExecutions
	}
	if args.Sigma != nil {
		cfg.Sigma = *args.Sigma
	}
	if args.Seed != nil {
		cfg = cfg.WithSeed(*args.Seed)
	}

	population, err := s.personas.GetPopulation(ctx, args.GroupID)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("persona source: %w", err)
	}
	res, err := s.engine.Run(ctx, population, scenario, card, cfg)
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	out := SimulateOutput{
		GroupID:              args.GroupID,
		Scenario:             scenarioName,
		Scorecard:            card,
		Seed:                 res.Seed,
		Trials:               res.Trials,
		DidNotTry:            res.Population.DidNotTry,
		Failed:               res.Population.Failed,
		Success:              res.Population.Success,
		ExecutionTimeSeconds: res.Population.ExecutionTimeSeconds,
	}
	if args.IncludePersonas {
		out.Personas = res.Personas
	}
	return nil, out, nil
}

// handleExplore implements the adoptsim_explore tool. It runs the search to
// completion before returning.
func (s *Server) handleExplore(ctx context.Context, req *sdk.CallToolRequest, args ExploreInput) (_ *sdk.CallToolResult, _ ExploreOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolExplore, start, retErr, sanitizeToolParams(map[string]any{
			"group_id":          args.GroupID,
			"feature_context":   args.FeatureContext,
			"scenario":          args.Scenario,
			"baseline":          args.Baseline,
			"goal_success_rate": args.GoalSuccessRate,
			"max_depth":         args.MaxDepth,
			"beam_width":        args.BeamWidth,
			"num_personas":      args.NumPersonas,
			"num_executions":    args.NumExecutions,
			"seed":              args.Seed,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolExplore); err != nil {
		return nil, ExploreOutput{}, err
	}

	p := s.defaults
	p.GroupID = strings.TrimSpace(args.GroupID)
	p.FeatureContext = args.FeatureContext
	if args.Scenario != "" {
		_, sc, err := s.scenario(args.Scenario)
		if err != nil {
			return nil, ExploreOutput{}, err
		}
		p.Scenario = sc
	}
	p.Baseline = applyScorecard(p.Baseline, args.Baseline)
	if args.GoalSuccessRate != nil {
		p.Goal = models.Goal{Type: models.GoalMinSuccessRate, Value: *args.GoalSuccessRate}
	}
	if args.MaxDepth > 0 {
		p.MaxDepth = args.MaxDepth
	}
	if args.BeamWidth > 0 {
		p.BeamWidth = args.BeamWidth
	}
	if args.NumPersonas > 0 {
		p.Simulation.NumPersonas = args.NumPersonas
	}
	if args.NumExecutions > 0 {
		p.Simulation.NumExecutions = args.NumExecutions
	}
	if args.Seed != nil {
		p.Simulation = p.Simulation.WithSeed(*args.Seed)
	}

	exp, err := s.driver.Create(ctx, p)
	if err != nil {
		return nil, ExploreOutput{}, err
	}
	s.logger.Info("exploration started", "id", exp.ID, "group", exp.GroupID)

	final, runErr := s.driver.Run(ctx, exp.ID)
	if final == nil {
		return nil, ExploreOutput{}, runErr
	}

	out := ExploreOutput{
		ExplorationID:   final.ID,
		Status:          string(final.Status),
		FailureReason:   final.FailureReason,
		BestSuccessRate: final.BestSuccessRate,
		TotalNodes:      final.TotalNodes,
		GoalNodeID:      final.GoalNodeID,
		WinningPath:     []PathStep{},

		ProposalFailures:  final.ProposalFailures,
		LastProposalError: final.LastProposalError,
	}
	if runErr != nil {
		// The failure is stored on the exploration and reported in the output.
		s.logger.Warn("exploration failed", "id", final.ID, "error", runErr)
	}
	path, err := s.driver.WinningPath(ctx, final.ID)
	if err != nil {
		return nil, ExploreOutput{}, fmt.Errorf("winning path: %w", err)
	}
	out.WinningPath = pathSteps(path)
	return nil, out, nil
}

// handleWinningPath implements the adoptsim_winning_path tool.
func (s *Server) handleWinningPath(ctx context.Context, req *sdk.CallToolRequest, args WinningPathInput) (_ *sdk.CallToolResult, _ WinningPathOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolWinningPath, start, retErr, sanitizeToolParams(map[string]any{
			"exploration_id": args.ExplorationID,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolWinningPath); err != nil {
		return nil, WinningPathOutput{}, err
	}
	if args.ExplorationID == "" {
		return nil, WinningPathOutput{}, fmt.Errorf("exploration_id is required")
	}

	exp, err := s.store.GetExploration(ctx, args.ExplorationID)
	if err != nil {
		return nil, WinningPathOutput{}, err
	}
	path, err := s.driver.WinningPath(ctx, exp.ID)
	if err != nil {
		return nil, WinningPathOutput{}, fmt.Errorf("winning path: %w", err)
	}

	out := WinningPathOutput{
		ExplorationID: exp.ID,
		Status:        string(exp.Status),
		Steps:         pathSteps(path),
	}
	if len(path) > 0 {
		first, last := path[0].SuccessRate(), path[len(path)-1].SuccessRate()
		if first >= 0 && last >= 0 {
			out.Improvement = last - first
		}
	}
	return nil, out, nil
}

// handleListExplorations implements the adoptsim_list_explorations tool.
func (s *Server) handleListExplorations(ctx context.Context, req *sdk.CallToolRequest, args ListExplorationsInput) (_ *sdk.CallToolResult, _ ListExplorationsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolListExplorations, start, retErr, sanitizeToolParams(map[string]any{
			"status":   args.Status,
			"group_id": args.GroupID,
			"limit":    args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolListExplorations); err != nil {
		return nil, ListExplorationsOutput{}, err
	}
	if args.Status != "" && !models.ExplorationStatus(args.Status).Valid() {
		return nil, ListExplorationsOutput{}, fmt.Errorf("unknown status %q", args.Status)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultListSize
	}

	exps, err := s.store.ListExplorations(ctx)
	if err != nil {
		return nil, ListExplorationsOutput{}, err
	}

	items := make([]ExplorationListItem, 0, min(len(exps), limit))
	for _, exp := range exps {
		if len(items) == limit {
			break
		}
		if args.Status != "" && string(exp.Status) != args.Status {
			continue
		}
		if args.GroupID != "" && exp.GroupID != args.GroupID {
			continue
		}
		items = append(items, ExplorationListItem{
			ID:              exp.ID,
			GroupID:         exp.GroupID,
			Status:          string(exp.Status),
			BestSuccessRate: exp.BestSuccessRate,
			TotalNodes:      exp.TotalNodes,
			CreatedAt:       exp.CreatedAt,
		})
	}
	return nil, ListExplorationsOutput{Explorations: items, Count: len(items)}, nil
}

// handleTreeResource returns the JSON rendering of an exploration tree.
func (s *Server) handleTreeResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, treeURIPrefix)
	if id == "" || id == uri {
		return nil, sdk.ResourceNotFoundError(uri)
	}

	tree, err := visualization.LoadTree(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(visualization.RenderJSON(tree), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tree: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// scenario resolves a preset name, falling back to the server default.
func (s *Server) scenario(name string) (string, models.Scenario, error) {
	if name == "" {
		n := s.defaults.Scenario.Name
		if n == "" {
			n = "custom"
		}
		return n, s.defaults.Scenario, nil
	}
	sc, ok := models.ScenarioPreset(name)
	if !ok {
		return "", models.Scenario{}, fmt.Errorf("unknown scenario %q (valid: %s)", name, strings.Join(models.ScenarioPresetNames(), ", "))
	}
	return name, sc, nil
}

func applyScorecard(base models.ScorecardParams, in *ScorecardInput) models.ScorecardParams {
	if in == nil {
		return base
	}
	if in.Complexity != nil {
		base.Complexity = *in.Complexity
	}
	if in.InitialEffort != nil {
		base.InitialEffort = *in.InitialEffort
	}
	if in.PerceivedRisk != nil {
		base.PerceivedRisk = *in.PerceivedRisk
	}
	if in.TimeToValue != nil {
		base.TimeToValue = *in.TimeToValue
	}
	return base
}

func pathSteps(path []models.ScenarioNode) []PathStep {
	steps := make([]PathStep, 0, len(path))
	for _, n := range path {
		steps = append(steps, PathStep{
			NodeID:      n.ID,
			Depth:       n.Depth,
			Category:    n.ActionCategory,
			Rationale:   n.Rationale,
			Delta:       n.ActionApplied,
			Scorecard:   n.ScorecardParams,
			SuccessRate: n.SuccessRate(),
		})
	}
	return steps
}
