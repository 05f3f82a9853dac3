package mcp

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/adoptsim/internal/ratelimit"
)

func TestNewServer_RequiresComponents(t *testing.T) {
	if _, err := NewServer(&Config{Name: "x", Version: "v0"}); err == nil {
		t.Error("expected error when components are missing")
	}
}

func TestNewServer_AuditDisabled(t *testing.T) {
	server := setupTestServer(t)
	if server.auditLogger == nil {
		t.Error("audit logger should be enabled when AuditDir is set")
	}

	cfg := &Config{
		Name:     "x",
		Version:  "v0",
		Store:    server.store,
		Personas: server.personas,
		Engine:   server.engine,
		Driver:   server.driver,
	}
	quiet, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if quiet.auditLogger != nil {
		t.Error("audit logger should be nil without AuditDir")
	}
	if err := quiet.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func connectInMemory(t *testing.T, ctx context.Context, server *Server) *sdk.ClientSession {
	t.Helper()
	t1, t2 := sdk.NewInMemoryTransports()
	serverSession, err := server.server.Connect(ctx, t1, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	t.Cleanup(func() { serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, ctx context.Context, session *sdk.ClientSession, name string, args map[string]any) map[string]any {
	t.Helper()
	res, err := session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if res.IsError {
		for _, c := range res.Content {
			if tc, ok := c.(*sdk.TextContent); ok {
				t.Fatalf("CallTool(%s) returned error: %s", name, tc.Text)
			}
		}
		t.Fatalf("CallTool(%s) returned error", name)
	}
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			result := make(map[string]any)
			if err := json.Unmarshal([]byte(tc.Text), &result); err != nil {
				t.Fatalf("unmarshal tool result: %v (text: %s)", err, tc.Text)
			}
			return result
		}
	}
	t.Fatalf("no text content in tool result")
	return nil
}

func TestServer_ListTools(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, setupTestServer(t))

	res, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)

	want := []string{
		ratelimit.ToolExplore,
		ratelimit.ToolListExplorations,
		ratelimit.ToolSimulate,
		ratelimit.ToolWinningPath,
	}
	if !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestServer_CallTools(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, setupTestServer(t))

	sim := callTool(t, ctx, session, ratelimit.ToolSimulate, map[string]any{
		"group_id": "novices",
		"scenario": "crisis",
	})
	if sim["scenario"] != "crisis" {
		t.Errorf("scenario = %v, want crisis", sim["scenario"])
	}
	if sim["trials"] != float64(1000) {
		t.Errorf("trials = %v, want 1000", sim["trials"])
	}

	exp := callTool(t, ctx, session, ratelimit.ToolExplore, map[string]any{
		"group_id":          "novices",
		"goal_success_rate": 0.0,
	})
	id, _ := exp["exploration_id"].(string)
	if id == "" {
		t.Fatalf("exploration_id missing: %v", exp)
	}

	list := callTool(t, ctx, session, ratelimit.ToolListExplorations, map[string]any{})
	if list["count"] != float64(1) {
		t.Errorf("count = %v, want 1", list["count"])
	}

	path := callTool(t, ctx, session, ratelimit.ToolWinningPath, map[string]any{"exploration_id": id})
	steps, _ := path["steps"].([]any)
	if len(steps) != 1 {
		t.Errorf("steps = %v, want the root only", steps)
	}
}

func TestServer_ToolErrorIsReported(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, setupTestServer(t))

	res, err := session.CallTool(ctx, &sdk.CallToolParams{
		Name:      ratelimit.ToolWinningPath,
		Arguments: map[string]any{"exploration_id": "missing"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError for an unknown exploration")
	}
}

func TestServer_TreeResource(t *testing.T) {
	ctx := context.Background()
	server := setupTestServer(t)
	session := connectInMemory(t, ctx, server)

	_, out, err := server.handleExplore(ctx, nil, ExploreInput{GroupID: "novices", GoalSuccessRate: ptr(0.0)})
	if err != nil {
		t.Fatalf("handleExplore: %v", err)
	}

	res, err := session.ReadResource(ctx, &sdk.ReadResourceParams{URI: treeURIPrefix + out.ExplorationID})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(res.Contents))
	}
	text := res.Contents[0].Text
	if !strings.Contains(text, `"node_count": 1`) || !strings.Contains(text, out.ExplorationID) {
		t.Errorf("unexpected tree resource:\n%s", text)
	}

	if _, err := session.ReadResource(ctx, &sdk.ReadResourceParams{URI: treeURIPrefix + "missing"}); err == nil {
		t.Error("expected error for unknown exploration")
	}
}
