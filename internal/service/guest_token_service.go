package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yunqiqiliang/embedgate/internal/audit"
	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/logging"
	"github.com/yunqiqiliang/embedgate/internal/validation"
)

const actionIssueGuestToken = "guest_token.issue"

// GuestTokenService validates guest token requests and mints tokens with the cached credential.
type GuestTokenService struct {
	credentials CredentialSource
	minter      core.GuestTokenMinter
	auditor     core.Auditor
	rlsField    string
	now         func() time.Time
}

func NewGuestTokenService(
	credentials CredentialSource,
	minter core.GuestTokenMinter,
	auditor core.Auditor,
	rlsField string,
) *GuestTokenService {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}
	if rlsField == "" {
		rlsField = DefaultRLSField
	}
	return &GuestTokenService{
		credentials: credentials,
		minter:      minter,
		auditor:     auditor,
		rlsField:    rlsField,
		now:         time.Now,
	}
}

func (s *GuestTokenService) Issue(ctx context.Context, req core.GuestTokenRequest) (*core.GuestTokenResponse, error) {
	logger := log.Ctx(ctx)

	auditEntry := core.AuditEntry{
		ID:          logging.CorrelationID(ctx),
		Time:        s.now(),
		Action:      actionIssueGuestToken,
		DashboardID: req.DashboardID,
		RequesterID: req.RequesterID,
		Username:    req.DisplayName,
	}
	defer func() {
		if err := s.auditor.Log(auditEntry); err != nil {
			logger.Error().Err(err).Msg("failed to write audit log entry for guest token issuance")
		}
	}()

	input, err := validation.ValidateGuestTokenRequest(req)
	if err != nil {
		auditEntry.Error = err.Error()
		return nil, err
	}

	logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("dashboard_id", input.DashboardID.String())
	})

	payload, err := BuildPayload(input, s.rlsField)
	if err != nil {
		auditEntry.Error = "building payload failed"
		return nil, err
	}

	credential, err := s.credentials.Get(ctx)
	if err != nil {
		return nil, s.issuanceFailed(ctx, &auditEntry, "obtaining upstream credential failed", err)
	}

	token, err := s.minter.MintGuestToken(ctx, credential, payload)
	if err != nil {
		dropRejectedCredential(ctx, s.credentials, err)
		return nil, s.issuanceFailed(ctx, &auditEntry, "minting guest token failed", err)
	}

	auditEntry.Success = true
	auditEntry.TokenFingerprint = audit.Fingerprint(token)
	logger.Info().Bool("rls", len(payload.RLS) > 0).Msg("guest token issued")

	return &core.GuestTokenResponse{
		Token:     token,
		ExpiresIn: int(core.GuestTokenValidity / time.Second),
	}, nil
}

func (s *GuestTokenService) issuanceFailed(ctx context.Context, entry *core.AuditEntry, msg string, err error) error {
	status := core.UpstreamStatus(err)
	entry.Error = msg
	entry.UpstreamStatus = status

	event := log.Ctx(ctx).Error().Err(err).Int("upstream_status", status)
	if errors.Is(err, core.ErrUpstreamUnavailable) {
		event = event.Bool("unavailable", true)
	}
	event.Msg(msg)

	return &core.IssuanceFailedError{StatusCode: status, Err: err}
}
