// Package cache provides a TTL read-through cache for analysis results,
// keyed by case ID. Lookups by case ID are the hottest read path and the
// stored rows are immutable once completed.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/cavotieno/forgery-analyzer/internal/models"
)

type Results struct {
	store *gocache.Cache
}

// NewResults creates a result cache with the given TTL. Expired entries
// are purged roughly every ten minutes.
func NewResults(ttl time.Duration) *Results {
	return &Results{
		store: gocache.New(ttl, 10*time.Minute),
	}
}

func (c *Results) Get(caseID string) (*models.Analysis, bool) {
	v, ok := c.store.Get(caseID)
	if !ok {
		return nil, false
	}
	analysis, ok := v.(*models.Analysis)
	return analysis, ok
}

func (c *Results) Set(analysis *models.Analysis) {
	c.store.SetDefault(analysis.CaseID, analysis)
}

func (c *Results) Delete(caseID string) {
	c.store.Delete(caseID)
}
