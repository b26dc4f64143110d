package cache

import (
	"time"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

const (
	DashboardKey = "superset:dashboards"

	DefaultDashboardTTL = 5 * time.Minute
)

// DashboardCache holds the published dashboard list under a single global key.
type DashboardCache = ReadThrough[[]core.DashboardSummary]

func NewDashboardCache(store core.Store) *DashboardCache {
	return NewReadThrough[[]core.DashboardSummary]("dashboards", DashboardKey, store)
}
