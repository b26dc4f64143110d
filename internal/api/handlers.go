package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/yunqiqiliang/embedgate/internal/api/presenter"
	"github.com/yunqiqiliang/embedgate/internal/buildinfo"
	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/validation"
)

// handleHealth reports whether the cache and the upstream are reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	presenter.JSON(w, r, report, status)
}

// handleAbout responds with service information including version and commit hash.
func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, buildinfo.GetBuildInfo(), http.StatusOK)
}

// FlexibleID accepts a JSON string or number and keeps its literal text.
// Whether the text is acceptable is decided by the validator.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return core.NewValidationError(validation.FieldRequesterID, "bad requester id")
	}
	*f = FlexibleID(n.String())
	return nil
}

type GuestTokenPayload struct {
	DashboardID string     `json:"dashboardId"`
	UserID      FlexibleID `json:"userId,omitempty"`
	Username    string     `json:"username,omitempty"`
}

// DecodePayload reads a JSON body into dest. An empty body leaves dest untouched.
func DecodePayload(r *http.Request, dest any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return core.NewValidationError("body", "unsupported content type")
		}
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		var vErr *core.ValidationError
		switch {
		case errors.As(err, &tooLarge), errors.As(err, &vErr):
			return err
		}
		return core.NewValidationError("body", "invalid JSON body")
	}
	// ensure there's no extra data
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return core.NewValidationError("body", "extra data in request body")
	}
	return nil
}

// handleGuestToken validates the request and mints a guest token for one dashboard.
func (s *Server) handleGuestToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload GuestTokenPayload
	if err := DecodePayload(r, &payload); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to decode guest token request payload")
		presenter.Err(w, r, err)
		return
	}

	resp, err := s.guestTokens.Issue(ctx, core.GuestTokenRequest{
		DashboardID: payload.DashboardID,
		RequesterID: string(payload.UserID),
		DisplayName: payload.Username,
	})
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, resp, http.StatusOK)
}

type DashboardsResponse struct {
	Dashboards []core.DashboardSummary `json:"dashboards"`
}

// handleDashboards lists the published dashboards.
func (s *Server) handleDashboards(w http.ResponseWriter, r *http.Request) {
	dashboards, err := s.dashboards.List(r.Context())
	if err != nil {
		presenter.Err(w, r, err)
		return
	}
	presenter.JSON(w, r, DashboardsResponse{Dashboards: dashboards}, http.StatusOK)
}
