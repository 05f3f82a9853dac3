package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/adoptsim/internal/models"
)

// SubagentProposer implements Proposer using the parent CLI's LLM session.
// When adoptsim runs inside Claude Code, Codex, or similar tools, it spawns
// lightweight subagents that share the parent session's authentication.
type SubagentProposer struct {
	cliPath        string
	model          string
	timeout        time.Duration
	allowedCLIDirs []string

	detectOnce sync.Once
	available  bool
}

// SubagentConfig configures the subagent proposer.
type SubagentConfig struct {
	// CLIPath overrides CLI detection.
	CLIPath string

	// Model specifies the model to use (default: "haiku").
	Model string

	// Timeout is the maximum duration for requests (default: 30s).
	Timeout time.Duration

	// AllowedCLIDirs restricts CLI search to these directories. When empty,
	// any directory is allowed.
	AllowedCLIDirs []string
}

// DefaultSubagentConfig returns a SubagentConfig with sensible defaults.
func DefaultSubagentConfig() SubagentConfig {
	return SubagentConfig{
		Model:   "haiku",
		Timeout: 30 * time.Second,
	}
}

// NewSubagentProposer creates a SubagentProposer.
func NewSubagentProposer(cfg SubagentConfig) *SubagentProposer {
	if cfg.Model == "" {
		cfg.Model = "haiku"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &SubagentProposer{
		cliPath:        cfg.CLIPath,
		model:          cfg.Model,
		timeout:        cfg.Timeout,
		allowedCLIDirs: cfg.AllowedCLIDirs,
	}
}

// Propose runs the proposal prompt through a subagent.
func (c *SubagentProposer) Propose(ctx context.Context, node models.ScenarioNode, pctx ProposalContext, maxProposals int) ([]models.Proposal, error) {
	if !c.Available() {
		return nil, fmt.Errorf("subagent proposer not available")
	}

	response, err := c.runSubagent(ctx, ProposalPrompt(node, pctx, maxProposals))
	if err != nil {
		return nil, fmt.Errorf("running proposal subagent: %w", err)
	}

	proposals, err := ParseProposalResponse(response, maxProposals)
	if err != nil {
		return nil, fmt.Errorf("parsing proposal response: %w", err)
	}
	return proposals, nil
}

// Available reports whether we are inside a CLI session with a usable CLI.
// Detection runs once.
func (c *SubagentProposer) Available() bool {
	c.detectOnce.Do(func() {
		c.available = c.detectAvailability()
	})
	return c.available
}

func (c *SubagentProposer) detectAvailability() bool {
	if !inCLISession() {
		return false
	}
	cliPath := c.findCLI()
	if cliPath == "" {
		return false
	}
	c.cliPath = cliPath
	return true
}

// inCLISession checks for the environment markers set by agent CLIs on
// their subprocesses.
func inCLISession() bool {
	for _, key := range []string{"CLAUDE_CODE", "CLAUDE_SESSION_ID", "ANTHROPIC_CLI"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// findCLI locates a CLI executable inside the allowed directories and checks
// it answers --version.
func (c *SubagentProposer) findCLI() string {
	if c.cliPath != "" {
		path, err := exec.LookPath(c.cliPath)
		if err == nil && c.isAllowedPath(path) && validateCLI(context.Background(), path) {
			return path
		}
	}

	for _, name := range []string{"claude", "anthropic", "opencode", "codex"} {
		if path, err := exec.LookPath(name); err == nil {
			if c.isAllowedPath(path) && validateCLI(context.Background(), path) {
				return path
			}
		}
	}
	return ""
}

// isAllowedPath checks the resolved CLI path against AllowedCLIDirs.
func (c *SubagentProposer) isAllowedPath(cliPath string) bool {
	if len(c.allowedCLIDirs) == 0 {
		return true
	}

	absPath, err := filepath.Abs(cliPath)
	if err != nil {
		return false
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return false
	}

	for _, dir := range c.allowedCLIDirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if resolved == absDir || strings.HasPrefix(resolved, absDir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func validateCLI(ctx context.Context, cliPath string) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, cliPath, "--version")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run() == nil
}

// runSubagent executes prompt with the CLI. The prompt goes through stdin
// so it never shows up in process listings.
func (c *SubagentProposer) runSubagent(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cliPath, "--print", "--model", c.model, "-p", "-")
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("subagent timed out after %v", c.timeout)
		}
		return "", fmt.Errorf("subagent failed: %w (stderr: %s)", err, stderr.String())
	}

	response := strings.TrimSpace(stdout.String())
	if response == "" {
		return "", fmt.Errorf("subagent returned empty response")
	}
	return response, nil
}

// DetectSubagent returns a SubagentProposer when running inside a CLI
// session, or nil.
func DetectSubagent() *SubagentProposer {
	p := NewSubagentProposer(DefaultSubagentConfig())
	if p.Available() {
		return p
	}
	return nil
}
