package presenter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/logging"
)

const supportMessage = "Please contact support if this problem persists."

type ErrorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

func Error(w http.ResponseWriter, r *http.Request, title, msg string, status int) {
	writeError(w, r, ErrorResponse{Error: title, Message: msg}, status)
}

func writeError(w http.ResponseWriter, r *http.Request, resp ErrorResponse, status int) {
	resp.CorrelationID = logging.CorrelationID(r.Context())
	JSON(w, r, resp, status)
}

// Err writes err as a JSON error response.
// It is the only place where error kinds are mapped to HTTP status codes.
func Err(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := Describe(err)
	writeError(w, r, resp, status)
}

// Describe returns the status code and public body for err.
// Only validation errors expose their message; everything else is generic.
func Describe(err error) (int, ErrorResponse) {
	var (
		validationErr *core.ValidationError
		issuanceErr   *core.IssuanceFailedError
		tooLargeErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorResponse{
			Error:   "Bad Request",
			Message: validationErr.Reason,
		}
	case errors.As(err, &tooLargeErr):
		return http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "Payload Too Large",
			Message: "The request body is too large",
		}
	case errors.Is(err, core.ErrOriginNotAllowed):
		return http.StatusForbidden, ErrorResponse{
			Error:   "Forbidden",
			Message: "Not allowed by CORS",
		}
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{
			Error:   "Too Many Requests",
			Message: "Too many requests, please try again later.",
		}
	case errors.As(err, &issuanceErr):
		status := http.StatusBadGateway
		if errors.Is(err, core.ErrUpstreamUnavailable) {
			status = http.StatusServiceUnavailable
		}
		return status, ErrorResponse{
			Error:          "Failed to generate guest token",
			Message:        supportMessage,
			UpstreamStatus: issuanceErr.StatusCode,
		}
	case errors.Is(err, core.ErrListingFailed):
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to fetch dashboards",
			Message: supportMessage,
		}
	case errors.Is(err, core.ErrUpstreamUnavailable), errors.Is(err, core.ErrUpstreamAuth):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:   "Service Unavailable",
			Message: supportMessage,
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal Server Error",
			Message: "An unexpected error occurred",
		}
	}
}

// NotFound answers requests for routes that do not exist.
func NotFound(w http.ResponseWriter, r *http.Request) {
	Error(w, r, "Not Found", "The requested endpoint does not exist", http.StatusNotFound)
}
