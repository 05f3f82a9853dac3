// Package logging provides leveled logging and search decision tracing for adoptsim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A DecisionLogger for structured JSONL search traces (.adoptsim/decisions.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug for full content logging.
// At this level, proposer prompts and responses are included.
const LevelTrace = slog.LevelDebug - 4

// DecisionsFile is the decision trace file name inside the data directory.
const DecisionsFile = "decisions.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// Event names a search decision.
type Event string

const (
	EventRootEvaluated  Event = "root_evaluated"
	EventChildEvaluated Event = "child_evaluated"
	EventChildFailed    Event = "child_failed"
	EventProposalFailed Event = "proposal_failed"
	EventPruned         Event = "pruned"
	EventGoalAchieved   Event = "goal_achieved"
	EventDeadEnd        Event = "dead_end"
	EventFinished       Event = "finished"
)

// Decision is one line of the decision trace.
type Decision struct {
	Event         Event    `json:"event"`
	ExplorationID string   `json:"exploration_id"`
	NodeID        string   `json:"node_id,omitempty"`
	ParentID      string   `json:"parent_id,omitempty"`
	Depth         int      `json:"depth"`
	Category      string   `json:"category,omitempty"`
	SuccessRate   *float64 `json:"success_rate,omitempty"`
	Detail        string   `json:"detail,omitempty"`
}

// Rate returns a pointer to v for Decision.SuccessRate.
func Rate(v float64) *float64 {
	return &v
}

// DecisionLogger writes structured decision events as JSONL.
// It is safe for concurrent use. A nil DecisionLogger is safe to use;
// all methods are no-ops on nil receiver.
type DecisionLogger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewDecisionLogger creates a decision logger writing to dir/decisions.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, DecisionsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &DecisionLogger{w: f, closer: f}
}

// NewDecisionWriter creates a decision logger writing to w. Close does not close w.
func NewDecisionWriter(w io.Writer) *DecisionLogger {
	return &DecisionLogger{w: w}
}

// Log writes d as a single JSONL line with a "time" field.
func (dl *DecisionLogger) Log(d Decision) {
	if dl == nil {
		return
	}

	entry := struct {
		Decision
		Time string `json:"time"`
	}{d, time.Now().UTC().Format(time.RFC3339Nano)}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.w == nil {
		return
	}
	_, _ = dl.w.Write(data)
}

// Close closes the underlying file, if any.
func (dl *DecisionLogger) Close() error {
	if dl == nil {
		return nil
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	var err error
	if dl.closer != nil {
		err = dl.closer.Close()
	}
	dl.w = nil
	dl.closer = nil
	return err
}
