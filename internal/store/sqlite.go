package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/adoptsim/internal/models"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const nodeColumns = `id, exploration_id, parent_id, depth, action_applied, action_category, rationale,
	complexity, initial_effort, perceived_risk, time_to_value,
	did_not_try, failed, success, execution_time_seconds, status, error, created_at`

const explorationColumns = `id, group_id, feature_context, scenario, baseline_scorecard, simulation,
	goal_type, goal_value, max_depth, beam_width, status, failure_reason,
	current_depth, best_success_rate, total_nodes, goal_node_id, created_at, updated_at,
	proposal_failures, last_proposal_error`

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens the project database at .adoptsim/adoptsim.db under projectRoot.
func NewSQLiteStore(projectRoot string) (*SQLiteStore, error) {
	if _, err := EnsureDataDir(projectRoot); err != nil {
		return nil, err
	}
	return OpenSQLiteStore(DatabasePath(projectRoot))
}

// OpenSQLiteStore opens (creating if needed) the database at dbPath.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// DB exposes the underlying handle for integrity checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// CreateExploration inserts an exploration row.
func (s *SQLiteStore) CreateExploration(ctx context.Context, exp models.Exploration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp.ID == "" {
		return storeErr("create exploration", fmt.Errorf("exploration ID is required"))
	}
	scenario, card, sim, err := marshalExplorationInputs(exp)
	if err != nil {
		return storeErr("create exploration", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO explorations (`+explorationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.GroupID, nullString(exp.FeatureContext), scenario, card, sim,
		string(exp.Goal.Type), exp.Goal.Value, exp.MaxDepth, exp.BeamWidth,
		string(exp.Status), nullString(exp.FailureReason),
		exp.CurrentDepth, exp.BestSuccessRate, exp.TotalNodes, nullString(exp.GoalNodeID),
		formatTime(exp.CreatedAt), formatTime(exp.UpdatedAt),
		exp.ProposalFailures, nullString(exp.LastProposalError))
	if err != nil {
		return storeErr("create exploration", fmt.Errorf("insert %s: %w", exp.ID, err))
	}
	return nil
}

// GetExploration loads one exploration.
func (s *SQLiteStore) GetExploration(ctx context.Context, id string) (*models.Exploration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+explorationColumns+` FROM explorations WHERE id = ?`, id)
	exp, err := scanExploration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("get exploration", notFound("exploration", id))
	}
	if err != nil {
		return nil, storeErr("get exploration", err)
	}
	return exp, nil
}

// UpdateExploration writes status and progress fields.
func (s *SQLiteStore) UpdateExploration(ctx context.Context, exp models.Exploration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("update exploration", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM explorations WHERE id = ?`, exp.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return storeErr("update exploration", notFound("exploration", exp.ID))
	}
	if err != nil {
		return storeErr("update exploration", err)
	}
	if models.ExplorationStatus(status).Terminal() {
		return storeErr("update exploration", fmt.Errorf("exploration %s is %s: %w", exp.ID, status, models.ErrTerminal))
	}

	_, err = tx.ExecContext(ctx, `UPDATE explorations SET
		status = ?, failure_reason = ?, current_depth = ?, best_success_rate = ?,
		total_nodes = ?, goal_node_id = ?, updated_at = ?,
		proposal_failures = ?, last_proposal_error = ?
		WHERE id = ?`,
		string(exp.Status), nullString(exp.FailureReason), exp.CurrentDepth, exp.BestSuccessRate,
		exp.TotalNodes, nullString(exp.GoalNodeID), formatTime(exp.UpdatedAt),
		exp.ProposalFailures, nullString(exp.LastProposalError), exp.ID)
	if err != nil {
		return storeErr("update exploration", err)
	}
	return storeErr("update exploration", tx.Commit())
}

// ListExplorations returns all explorations, newest first.
func (s *SQLiteStore) ListExplorations(ctx context.Context) ([]models.Exploration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+explorationColumns+` FROM explorations ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, storeErr("list explorations", err)
	}
	defer rows.Close()

	var out []models.Exploration
	for rows.Next() {
		exp, err := scanExploration(rows)
		if err != nil {
			return nil, storeErr("list explorations", err)
		}
		out = append(out, *exp)
	}
	return out, storeErr("list explorations", rows.Err())
}

// DeleteExploration removes an exploration; its nodes go with it via ON DELETE CASCADE.
func (s *SQLiteStore) DeleteExploration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM explorations WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete exploration", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete exploration", err)
	}
	if n == 0 {
		return storeErr("delete exploration", notFound("exploration", id))
	}
	return nil
}

// CreateNode inserts a node after checking its parent.
func (s *SQLiteStore) CreateNode(ctx context.Context, node models.ScenarioNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateNewNode(node); err != nil {
		return storeErr("create node", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("create node", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM explorations WHERE id = ?`, node.ExplorationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storeErr("create node", notFound("exploration", node.ExplorationID))
	}
	if err != nil {
		return storeErr("create node", err)
	}

	if !node.IsRoot() {
		row := tx.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM scenario_nodes WHERE id = ?`, node.ParentID)
		parent, err := scanNode(row)
		if errors.Is(err, sql.ErrNoRows) {
			return storeErr("create node", notFound("parent node", node.ParentID))
		}
		if err != nil {
			return storeErr("create node", err)
		}
		if err := checkParent(node, *parent); err != nil {
			return storeErr("create node", err)
		}
	}

	var action sql.NullString
	if node.ActionApplied != nil {
		data, err := json.Marshal(node.ActionApplied)
		if err != nil {
			return storeErr("create node", fmt.Errorf("marshal action: %w", err))
		}
		action = sql.NullString{String: string(data), Valid: true}
	}

	var dnt, failed, success, elapsed sql.NullFloat64
	if r := node.SimulationResults; r != nil {
		dnt = sql.NullFloat64{Float64: r.DidNotTry, Valid: true}
		failed = sql.NullFloat64{Float64: r.Failed, Valid: true}
		success = sql.NullFloat64{Float64: r.Success, Valid: true}
		elapsed = sql.NullFloat64{Float64: r.ExecutionTimeSeconds, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO scenario_nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID, node.ExplorationID, nullString(node.ParentID), node.Depth,
		action, nullString(node.ActionCategory), nullString(node.Rationale),
		node.ScorecardParams.Complexity, node.ScorecardParams.InitialEffort,
		node.ScorecardParams.PerceivedRisk, node.ScorecardParams.TimeToValue,
		dnt, failed, success, elapsed,
		string(node.Status), nullString(node.Error), formatTime(node.CreatedAt))
	if err != nil {
		return storeErr("create node", fmt.Errorf("insert %s: %w", node.ID, err))
	}
	return storeErr("create node", tx.Commit())
}

// GetNodesByExploration returns nodes in creation order.
func (s *SQLiteStore) GetNodesByExploration(ctx context.Context, explorationID string) ([]models.ScenarioNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM scenario_nodes WHERE exploration_id = ? ORDER BY seq`, explorationID)
	if err != nil {
		return nil, storeErr("get nodes", err)
	}
	defer rows.Close()
	return collectNodes(rows, "get nodes")
}

// GetPathToNode follows parent_id with a recursive CTE and returns root first.
func (s *SQLiteStore) GetPathToNode(ctx context.Context, nodeID string) ([]models.ScenarioNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE ancestry(node_id, lvl) AS (
			SELECT id, 0 FROM scenario_nodes WHERE id = ?
			UNION ALL
			SELECT n.parent_id, a.lvl + 1
			FROM scenario_nodes n JOIN ancestry a ON n.id = a.node_id
			WHERE n.parent_id IS NOT NULL
		)
		SELECT `+prefixed("n.", nodeColumns)+`
		FROM ancestry a JOIN scenario_nodes n ON n.id = a.node_id
		ORDER BY a.lvl DESC`, nodeID)
	if err != nil {
		return nil, storeErr("get path", err)
	}
	defer rows.Close()

	path, err := collectNodes(rows, "get path")
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, storeErr("get path", notFound("node", nodeID))
	}
	if !path[0].IsRoot() {
		return nil, storeErr("get path", fmt.Errorf("node %s: ancestry breaks at %s", nodeID, path[0].ID))
	}
	return path, nil
}

// UpdateNodeStatus changes a node's status if the transition is allowed.
func (s *SQLiteStore) UpdateNodeStatus(ctx context.Context, nodeID string, status models.NodeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("update node status", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM scenario_nodes WHERE id = ?`, nodeID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return storeErr("update node status", notFound("node", nodeID))
	}
	if err != nil {
		return storeErr("update node status", err)
	}
	if err := checkTransition(nodeID, models.NodeStatus(current), status); err != nil {
		return storeErr("update node status", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE scenario_nodes SET status = ? WHERE id = ?`, string(status), nodeID); err != nil {
		return storeErr("update node status", err)
	}
	return storeErr("update node status", tx.Commit())
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*models.ScenarioNode, error) {
	var (
		n                             models.ScenarioNode
		parentID, action, category    sql.NullString
		rationale, nodeErr            sql.NullString
		dnt, failed, success, elapsed sql.NullFloat64
		status, createdAt             string
	)
	err := row.Scan(&n.ID, &n.ExplorationID, &parentID, &n.Depth, &action, &category, &rationale,
		&n.ScorecardParams.Complexity, &n.ScorecardParams.InitialEffort,
		&n.ScorecardParams.PerceivedRisk, &n.ScorecardParams.TimeToValue,
		&dnt, &failed, &success, &elapsed, &status, &nodeErr, &createdAt)
	if err != nil {
		return nil, err
	}

	n.ParentID = parentID.String
	n.ActionCategory = category.String
	n.Rationale = rationale.String
	n.Error = nodeErr.String
	n.Status = models.NodeStatus(status)
	if action.Valid {
		var d models.ScorecardDelta
		if err := json.Unmarshal([]byte(action.String), &d); err != nil {
			return nil, fmt.Errorf("node %s: unmarshal action: %w", n.ID, err)
		}
		n.ActionApplied = &d
	}
	if success.Valid {
		n.SimulationResults = &models.SimulationResult{
			DidNotTry:            dnt.Float64,
			Failed:               failed.Float64,
			Success:              success.Float64,
			ExecutionTimeSeconds: elapsed.Float64,
		}
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, err)
	}
	return &n, nil
}

func collectNodes(rows *sql.Rows, op string) ([]models.ScenarioNode, error) {
	var out []models.ScenarioNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}

func scanExploration(row rowScanner) (*models.Exploration, error) {
	var (
		e                                      models.Exploration
		feature, failure, goalNode, lastProp   sql.NullString
		scenario, card, sim                    string
		goalType, status, createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.GroupID, &feature, &scenario, &card, &sim,
		&goalType, &e.Goal.Value, &e.MaxDepth, &e.BeamWidth, &status, &failure,
		&e.CurrentDepth, &e.BestSuccessRate, &e.TotalNodes, &goalNode, &createdAt, &updatedAt,
		&e.ProposalFailures, &lastProp)
	if err != nil {
		return nil, err
	}

	e.FeatureContext = feature.String
	e.FailureReason = failure.String
	e.GoalNodeID = goalNode.String
	e.LastProposalError = lastProp.String
	e.Goal.Type = models.GoalType(goalType)
	e.Status = models.ExplorationStatus(status)

	if err := json.Unmarshal([]byte(scenario), &e.Scenario); err != nil {
		return nil, fmt.Errorf("exploration %s: unmarshal scenario: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(card), &e.BaselineScorecard); err != nil {
		return nil, fmt.Errorf("exploration %s: unmarshal scorecard: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(sim), &e.Simulation); err != nil {
		return nil, fmt.Errorf("exploration %s: unmarshal simulation: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("exploration %s: %w", e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("exploration %s: %w", e.ID, err)
	}
	return &e, nil
}

func marshalExplorationInputs(exp models.Exploration) (string, string, string, error) {
	scenario, err := json.Marshal(exp.Scenario)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal scenario: %w", err)
	}
	card, err := json.Marshal(exp.BaselineScorecard)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal scorecard: %w", err)
	}
	sim, err := json.Marshal(exp.Simulation)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal simulation: %w", err)
	}
	return string(scenario), string(card), string(sim), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
