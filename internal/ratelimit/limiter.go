// Package ratelimit provides per-key token buckets that throttle MCP tool
// invocations.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter is a per-key token bucket limiter, safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket capacity and initial fill
	nowFunc func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a limiter refilling at rate tokens per second with the
// given burst capacity.
func NewLimiter(rate float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// refill returns key's bucket topped up to now. Callers hold l.mu.
func (l *Limiter) refill(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens += l.rate * elapsed
		if b.tokens > float64(l.burst) {
			b.tokens = float64(l.burst)
		}
		b.lastCheck = now
	}
	return b
}

// Allow takes a token for key if one is available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key, l.nowFunc())
	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// Tool names exposed by the MCP server.
const (
	ToolSimulate         = "adoptsim_simulate"
	ToolExplore          = "adoptsim_explore"
	ToolWinningPath      = "adoptsim_winning_path"
	ToolListExplorations = "adoptsim_list_explorations"
)

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default per-tool limits. Explorations run many
// simulations and call the proposer, so they get the tightest budget.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		ToolSimulate:         NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		ToolExplore:          NewLimiter(5.0/60.0, 2),  // 5/minute, burst 2
		ToolWinningPath:      NewLimiter(1.0, 10),      // 60/minute, burst 10
		ToolListExplorations: NewLimiter(1.0, 10),      // 60/minute, burst 10
	}
}

// CheckLimit returns an error when toolName is over its limit. Tools
// without a limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
