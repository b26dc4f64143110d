package middleware

import (
	"net/http"
	"regexp"

	"github.com/rs/xid"

	"github.com/yunqiqiliang/embedgate/internal/logging"
)

const CorrelationIDHeader = "X-Correlation-ID"

// inbound ids are echoed into logs and headers, so only short tokens are accepted
var correlationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if !correlationIDPattern.MatchString(id) {
			id = xid.New().String()
		}
		w.Header().Set(CorrelationIDHeader, id)

		ctx := logging.WithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
