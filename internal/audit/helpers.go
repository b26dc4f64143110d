package audit

import (
	"fmt"

	"github.com/yunqiqiliang/embedgate/internal/buildinfo"
)

// CreateUserAgent is sent with every upstream call so platform logs can be joined with ours.
func CreateUserAgent(correlationID string) string {
	if correlationID == "" {
		return fmt.Sprintf("Embedgate/%s", buildinfo.Version)
	}
	return fmt.Sprintf("Embedgate/%s (correlation_id=%s)", buildinfo.Version, correlationID)
}
