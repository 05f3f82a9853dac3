// Package visualization renders exploration trees in various output formats.
package visualization

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"slices"
	"strings"

	"github.com/nvandessel/adoptsim/internal/explore"
	"github.com/nvandessel/adoptsim/internal/models"
	"github.com/nvandessel/adoptsim/internal/store"
)

// Format specifies the output format for tree rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatDOT, FormatJSON, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want dot, json or html)", s)
	}
}

// nodeColors maps node states to DOT fill colors.
var nodeColors = map[string]string{
	"winning":   "gold",
	"evaluated": "palegreen",
	"pruned":    "lightgray",
	"error":     "tomato",
	"pending":   "white",
}

// Tree is an exploration together with its nodes and winning path.
type Tree struct {
	Exploration models.Exploration
	// Nodes are ordered by depth, then creation time, then ID.
	Nodes   []models.ScenarioNode
	Winning map[string]bool
}

// LoadTree reads an exploration and all of its nodes from the store.
func LoadTree(ctx context.Context, s store.Store, explorationID string) (*Tree, error) {
	exp, err := s.GetExploration(ctx, explorationID)
	if err != nil {
		return nil, fmt.Errorf("get exploration: %w", err)
	}
	nodes, err := s.GetNodesByExploration(ctx, explorationID)
	if err != nil {
		return nil, fmt.Errorf("get nodes: %w", err)
	}
	return NewTree(*exp, nodes)
}

// NewTree builds a Tree and marks the nodes on the winning path. Nodes that
// do not form a single rooted tree are rejected.
func NewTree(exp models.Exploration, nodes []models.ScenarioNode) (*Tree, error) {
	if issues := store.ValidateTree(exp.ID, nodes); len(issues) > 0 {
		return nil, fmt.Errorf("invalid tree: %s (%d issues)", issues[0], len(issues))
	}
	path, err := explore.SelectWinningPath(nodes)
	if err != nil {
		return nil, fmt.Errorf("winning path: %w", err)
	}
	sorted := slices.Clone(nodes)
	slices.SortFunc(sorted, func(a, b models.ScenarioNode) int {
		return cmp.Or(
			cmp.Compare(a.Depth, b.Depth),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	winning := make(map[string]bool, len(path))
	for _, n := range path {
		winning[n.ID] = true
	}
	return &Tree{Exploration: exp, Nodes: sorted, Winning: winning}, nil
}

// state classifies a node for coloring.
func (t *Tree) state(n models.ScenarioNode) string {
	switch {
	case n.Error != "":
		return "error"
	case t.Winning[n.ID]:
		return "winning"
	case n.Status == models.NodePruned:
		return "pruned"
	case n.Status == models.NodeEvaluated:
		return "evaluated"
	default:
		return "pending"
	}
}

// RenderDOT produces a Graphviz DOT representation of the exploration tree.
func RenderDOT(t *Tree) string {
	var b strings.Builder
	b.WriteString("digraph exploration {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")
	fmt.Fprintf(&b, "  label=%q;\n\n", graphLabel(t.Exploration))

	for _, n := range t.Nodes {
		attrs := fmt.Sprintf("label=%q, fillcolor=%q", nodeLabel(n), nodeColors[t.state(n)])
		if t.Winning[n.ID] {
			attrs += ", penwidth=2"
		}
		if n.Rationale != "" {
			attrs += fmt.Sprintf(", tooltip=%q", truncate(n.Rationale, 120))
		}
		fmt.Fprintf(&b, "  %q [%s];\n", n.ID, attrs)
	}
	b.WriteString("\n")

	for _, n := range t.Nodes {
		if n.IsRoot() {
			continue
		}
		style := "solid"
		if t.Winning[n.ID] && t.Winning[n.ParentID] {
			style = "bold"
		}
		fmt.Fprintf(&b, "  %q -> %q [style=%s];\n", n.ParentID, n.ID, style)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-serializable representation of the tree.
func RenderJSON(t *Tree) map[string]any {
	jsonNodes := make([]map[string]any, 0, len(t.Nodes))
	edges := make([]map[string]any, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		entry := map[string]any{
			"id":        n.ID,
			"parent_id": n.ParentID,
			"depth":     n.Depth,
			"label":     nodeLabel(n),
			"category":  n.ActionCategory,
			"status":    string(n.Status),
			"state":     t.state(n),
			"winning":   t.Winning[n.ID],
			"scorecard": n.ScorecardParams,
		}
		if n.SimulationResults != nil {
			entry["success_rate"] = n.SimulationResults.Success
		}
		if n.Error != "" {
			entry["error"] = n.Error
		}
		if n.Rationale != "" {
			entry["rationale"] = n.Rationale
		}
		jsonNodes = append(jsonNodes, entry)

		if !n.IsRoot() {
			edges = append(edges, map[string]any{
				"source":  n.ParentID,
				"target":  n.ID,
				"winning": t.Winning[n.ID] && t.Winning[n.ParentID],
			})
		}
	}

	exp := t.Exploration
	return map[string]any{
		"exploration": map[string]any{
			"id":                exp.ID,
			"group_id":          exp.GroupID,
			"status":            string(exp.Status),
			"failure_reason":    exp.FailureReason,
			"goal":              exp.Goal,
			"best_success_rate": exp.BestSuccessRate,
			"goal_node_id":      exp.GoalNodeID,
		},
		"nodes":      jsonNodes,
		"edges":      edges,
		"node_count": len(jsonNodes),
		"edge_count": len(edges),
	}
}

// htmlNode is one entry in the nested HTML tree.
type htmlNode struct {
	Label    string
	State    string
	Detail   string
	Children []*htmlNode
}

// htmlTemplateData holds data passed to the HTML template.
type htmlTemplateData struct {
	Title    string
	Summary  string
	Roots    []*htmlNode
	DOT      string
	JSONLink string
}

// RenderHTML produces a self-contained HTML page showing the tree as nested lists.
// jsonLink is optional and points at the JSON rendering of the same tree.
func RenderHTML(t *Tree, jsonLink string) ([]byte, error) {
	tmplBytes, err := templates.ReadFile("templates/tree.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("tree").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	byID := make(map[string]*htmlNode, len(t.Nodes))
	var roots []*htmlNode
	for _, n := range t.Nodes {
		hn := &htmlNode{Label: nodeLabel(n), State: t.state(n), Detail: nodeDetail(n)}
		byID[n.ID] = hn
		if parent, ok := byID[n.ParentID]; ok && !n.IsRoot() {
			parent.Children = append(parent.Children, hn)
			continue
		}
		roots = append(roots, hn)
	}

	data := htmlTemplateData{
		Title:    "Exploration " + t.Exploration.ID,
		Summary:  graphLabel(t.Exploration),
		Roots:    roots,
		DOT:      RenderDOT(t),
		JSONLink: jsonLink,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// Render renders a tree in the given format.
func Render(t *Tree, format Format) ([]byte, error) {
	switch format {
	case FormatDOT:
		return []byte(RenderDOT(t)), nil
	case FormatJSON:
		data, err := json.MarshalIndent(RenderJSON(t), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal tree: %w", err)
		}
		return append(data, '\n'), nil
	case FormatHTML:
		return RenderHTML(t, "")
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func graphLabel(exp models.Exploration) string {
	label := fmt.Sprintf("%s: %s (best %.1f%%, goal %s %.2f)",
		exp.GroupID, exp.Status, exp.BestSuccessRate*100, exp.Goal.Type, exp.Goal.Value)
	if exp.FailureReason != "" {
		label += "\n" + truncate(exp.FailureReason, 80)
	}
	return label
}

func nodeLabel(n models.ScenarioNode) string {
	name := "baseline"
	if !n.IsRoot() {
		name = n.ActionCategory
		if name == "" {
			name = "action"
		}
	}
	switch {
	case n.Error != "":
		return fmt.Sprintf("%s\nerror", truncate(name, 40))
	case n.SimulationResults != nil:
		return fmt.Sprintf("%s\n%.1f%%", truncate(name, 40), n.SimulationResults.Success*100)
	default:
		return truncate(name, 40)
	}
}

func nodeDetail(n models.ScenarioNode) string {
	p := n.ScorecardParams
	detail := fmt.Sprintf("depth %d, complexity %.2f, effort %.2f, risk %.2f, time to value %.2f",
		n.Depth, p.Complexity, p.InitialEffort, p.PerceivedRisk, p.TimeToValue)
	if n.Error != "" {
		detail += "; " + n.Error
	} else if n.Rationale != "" {
		detail += "; " + truncate(n.Rationale, 160)
	}
	return detail
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
