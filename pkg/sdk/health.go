package rowsearch

import (
	"context"
	"sort"

	healthuc "github.com/kailas-cloud/rowsearch/internal/usecase/health"
)

// Health check components.
const (
	ComponentIndex   = healthuc.ComponentIndex
	ComponentStorage = healthuc.ComponentStorage
)

// HealthStatus is the health of the index engine and the row store.
// Status is "ok" when every component passed, "degraded" when some failed
// and "error" when all failed.
type HealthStatus struct {
	Status string
	Checks map[string]string // ComponentIndex, ComponentStorage → "ok"/"error"
}

// Healthy reports whether every component passed.
func (h HealthStatus) Healthy() bool { return h.Status == string(healthuc.Healthy) }

// Failing lists the components that failed, sorted by name.
func (h HealthStatus) Failing() []string {
	var out []string
	for name, res := range h.Checks {
		if res != string(healthuc.CheckOK) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Health pings the index engine and the row store. Mutations applied while the
// index was down are repaired with Rebuild once it is back.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	h := HealthStatus{Status: string(report.Status), Checks: checks}
	c.obs.unhealthy(h)
	return h
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
