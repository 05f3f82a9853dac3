package explore

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nvandessel/adoptsim/internal/models"
)

// evalCache memoizes population results by scorecard within one run.
// Results only repeat for equal scorecards when the seed is fixed, so the
// driver creates a cache only in that case.
type evalCache struct {
	lru *lru.Cache[string, models.SimulationResult]
}

func newEvalCache(size int) *evalCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[string, models.SimulationResult](size)
	if err != nil {
		return nil
	}
	return &evalCache{lru: c}
}

func cacheKey(card models.ScorecardParams) string {
	return fmt.Sprintf("%.6f|%.6f|%.6f|%.6f", card.Complexity, card.InitialEffort, card.PerceivedRisk, card.TimeToValue)
}

func (c *evalCache) get(card models.ScorecardParams) (models.SimulationResult, bool) {
	if c == nil {
		return models.SimulationResult{}, false
	}
	return c.lru.Get(cacheKey(card))
}

func (c *evalCache) add(card models.ScorecardParams, res models.SimulationResult) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey(card), res)
}
