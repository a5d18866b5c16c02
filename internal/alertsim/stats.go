package alertsim

import (
	"sort"
	"sync"

	"camguard.dev/internal/monitor"
)

// Counter tallies generated alerts by severity.
type Counter struct {
	mu         sync.Mutex
	total      int
	bySeverity map[string]int
}

func (c *Counter) Add(a monitor.AlertInput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bySeverity == nil {
		c.bySeverity = make(map[string]int)
	}
	c.total++
	c.bySeverity[a.Severity]++
}

func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// BySeverity returns a copy of the per-severity counts.
func (c *Counter) BySeverity() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.bySeverity))
	for k, v := range c.bySeverity {
		out[k] = v
	}
	return out
}

// Severities lists the severities seen, sorted.
func (c *Counter) Severities() []string {
	counts := c.BySeverity()
	out := make([]string, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
