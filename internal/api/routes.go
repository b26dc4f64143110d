package api

const (
	HealthCheckRoute = "/health"
	AboutRoute       = "/about"

	GuestTokenRoute = "/api/guest-token"
	DashboardsRoute = "/api/dashboards"
)

// routeLabel maps a request to a bounded metrics label.
func routeLabel(path string) string {
	switch path {
	case HealthCheckRoute, AboutRoute, GuestTokenRoute, DashboardsRoute:
		return path
	default:
		return "other"
	}
}
