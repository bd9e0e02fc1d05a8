package http

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/consol"
)

// DefaultCacheTTL bounds how long a built report is served from memory.
const DefaultCacheTTL = 5 * time.Minute

type cacheItem struct {
	report  consol.Report
	expires time.Time
}

type responseCache struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]cacheItem
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &responseCache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheItem),
	}
}

func (c *responseCache) Get(key string) (consol.Report, bool) {
	if c == nil {
		return consol.Report{}, false
	}
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return consol.Report{}, false
	}
	if c.now().After(item.expires) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return consol.Report{}, false
	}
	return cloneReport(item.report), true
}

func (c *responseCache) Set(key string, report consol.Report) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.items[key] = cacheItem{report: cloneReport(report), expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *responseCache) Bust() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.items = make(map[string]cacheItem)
	c.mu.Unlock()
}

func buildCacheKey(kind consol.Kind, f consol.Filters) string {
	return "consol:" + string(kind) + "|" + f.CacheKey()
}

// cloneReport copies the slices and value maps so callers cannot mutate the
// cached copy.
func cloneReport(src consol.Report) consol.Report {
	dst := src
	dst.Filters.Branches = append([]string(nil), src.Filters.Branches...)
	dst.Columns = append([]consol.Column(nil), src.Columns...)
	dst.Summary = append([]consol.SummaryItem(nil), src.Summary...)
	dst.Warnings = append([]string(nil), src.Warnings...)
	dst.Rows = make([]consol.Row, len(src.Rows))
	for i, row := range src.Rows {
		if row.Values != nil {
			values := make(map[string]decimal.Decimal, len(row.Values))
			for k, v := range row.Values {
				values[k] = v
			}
			row.Values = values
		}
		dst.Rows[i] = row
	}
	return dst
}
