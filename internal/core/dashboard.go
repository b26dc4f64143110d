package core

// DashboardSummary is the projection of an upstream dashboard returned to callers.
type DashboardSummary struct {
	ID        int    `json:"id"`
	UUID      string `json:"uuid"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Published bool   `json:"published"`
}

// DashboardRecord is a dashboard as returned by the upstream listing endpoint.
type DashboardRecord struct {
	ID             int    `json:"id"`
	UUID           string `json:"uuid"`
	DashboardTitle string `json:"dashboard_title"`
	URL            string `json:"url"`
	Published      *bool  `json:"published"`
}

// Summary projects the record. A missing published flag counts as unpublished.
func (r DashboardRecord) Summary() DashboardSummary {
	return DashboardSummary{
		ID:        r.ID,
		UUID:      r.UUID,
		Title:     r.DashboardTitle,
		URL:       r.URL,
		Published: r.Published != nil && *r.Published,
	}
}
