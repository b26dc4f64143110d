// Package validation checks externally supplied identifiers before they reach the
// upstream client or a generated filter clause. All functions are pure.
package validation

import (
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

const (
	FieldDashboardID = "dashboardId"
	FieldRequesterID = "userId"
	FieldDisplayName = "username"
)

var (
	canonicalUUIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	displayNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)
	digitsPattern        = regexp.MustCompile(`^[0-9]+$`)
)

// ParseDashboardID accepts only the canonical 8-4-4-4-12 hex form.
// uuid.Parse alone would also accept the braced and urn forms.
func ParseDashboardID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, core.NewValidationError(FieldDashboardID, "dashboardId is required")
	}
	if !canonicalUUIDPattern.MatchString(s) {
		return uuid.Nil, core.NewValidationError(FieldDashboardID, "bad identifier format")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, core.NewValidationError(FieldDashboardID, "bad identifier format")
	}
	return id, nil
}

// ValidateDisplayName allows an empty name, defaults are applied downstream.
func ValidateDisplayName(s string) error {
	if s == "" {
		return nil
	}
	if !displayNamePattern.MatchString(s) {
		return core.NewValidationError(FieldDisplayName, "bad display name")
	}
	return nil
}

// RequesterID is a validated positive integer identifying the requesting user.
// The only way to obtain a non-zero value is ParseRequesterID.
type RequesterID struct {
	v uint64
}

// Uint64 returns the integer value.
func (r RequesterID) Uint64() uint64 {
	return r.v
}

// String returns the base-10 form of the integer, never the original input.
func (r RequesterID) String() string {
	return strconv.FormatUint(r.v, 10)
}

// IsZero reports whether r was not produced by ParseRequesterID.
func (r RequesterID) IsZero() bool {
	return r.v == 0
}

// ParseRequesterID accepts a base-10 positive integer made of digits only.
// Signs, whitespace, decimals and zero are rejected.
func ParseRequesterID(s string) (RequesterID, error) {
	if !digitsPattern.MatchString(s) {
		return RequesterID{}, core.NewValidationError(FieldRequesterID, "bad requester id")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return RequesterID{}, core.NewValidationError(FieldRequesterID, "bad requester id")
	}
	return RequesterID{v: v}, nil
}

// GuestTokenInput is the validated form of core.GuestTokenRequest.
type GuestTokenInput struct {
	DashboardID uuid.UUID
	DisplayName string

	// Requester is nil when no requester id was supplied.
	Requester *RequesterID
}

// ValidateGuestTokenRequest validates every field of req and stops at the first failure.
func ValidateGuestTokenRequest(req core.GuestTokenRequest) (*GuestTokenInput, error) {
	dashboardID, err := ParseDashboardID(req.DashboardID)
	if err != nil {
		return nil, err
	}
	if err := ValidateDisplayName(req.DisplayName); err != nil {
		return nil, err
	}
	input := &GuestTokenInput{
		DashboardID: dashboardID,
		DisplayName: req.DisplayName,
	}
	if req.RequesterID != "" {
		requester, err := ParseRequesterID(req.RequesterID)
		if err != nil {
			return nil, err
		}
		input.Requester = &requester
	}
	return input, nil
}
