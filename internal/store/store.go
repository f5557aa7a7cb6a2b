// Package store defines the touchpoint persistence boundary and its implementations.
//
// Provisioning, owner authorization and configuration updates are procedures: they report
// business outcomes through the OK and Error fields of their results and reserve the error
// return for failures of the call itself. Table lookups return ErrNotFound for missing rows.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

const (
	ProvisionSourceLanding = "landing"
	ProvisionSourceSeed    = "seed"

	DeniedMessageAccess            = "Access denied"
	DeniedMessageTouchpointMissing = "Touchpoint not found"
)

// ErrNotFound reports that a lookup matched no row.
var ErrNotFound = errors.New("store: not found")

// UpstreamError wraps a failure reported by the database itself.
type UpstreamError struct {
	Operation string
	Message   string
	Code      string
	Err       error
}

func (upstreamError *UpstreamError) Error() string {
	if upstreamError.Code != "" {
		return fmt.Sprintf("store: %s: %s (code %s)", upstreamError.Operation, upstreamError.Message, upstreamError.Code)
	}
	return fmt.Sprintf("store: %s: %s", upstreamError.Operation, upstreamError.Message)
}

func (upstreamError *UpstreamError) Unwrap() error {
	return upstreamError.Err
}

// ProvisionInput carries the landing page application. Optional fields may be empty.
type ProvisionInput struct {
	BusinessName    string
	OwnerName       string
	Email           string
	Phone           string
	GoogleReviewURL string
	Notes           string
	Source          string
}

// ProvisionResult is the outcome of provisioning. AlreadyExists is set when the email was known.
type ProvisionResult struct {
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	AlreadyExists bool   `json:"already_exists"`
	Slug          string `json:"slug,omitempty"`
	BusinessID    string `json:"business_id,omitempty"`
	TouchpointID  string `json:"touchpoint_id,omitempty"`
}

// AdminConfigResult is the outcome of an owner fetching their configuration.
type AdminConfigResult struct {
	OK     bool
	Error  string
	Config model.TouchpointConfig
}

// UpdateResult is the outcome of an owner patching their configuration.
type UpdateResult struct {
	OK         bool
	Error      string
	Touchpoint model.TouchpointConfig
}

// Patch holds touchpoint columns to overwrite. Offer columns use their loyalty_offer_ names.
type Patch map[string]any

// Procedures groups the privileged operations that enforce ownership.
type Procedures interface {
	Provision(ctx context.Context, input ProvisionInput) (ProvisionResult, error)
	GetAdminConfig(ctx context.Context, slug string, email string) (AdminConfigResult, error)
	UpdateTouchpoint(ctx context.Context, slug string, email string, patch Patch) (UpdateResult, error)
	LogEvent(ctx context.Context, touchpointID string, eventType string) (string, error)
}

// Tables groups the direct reads and inserts that need no ownership check.
type Tables interface {
	PublicTouchpoint(ctx context.Context, slug string) (model.TouchpointConfig, error)
	SurveyQuestions(ctx context.Context, touchpointID string) ([]model.SurveyQuestion, error)
	TouchpointBusinessID(ctx context.Context, touchpointID string) (string, error)
	BusinessBySlug(ctx context.Context, slug string) (model.Business, error)
	TouchpointIDForBusiness(ctx context.Context, businessID string) (string, error)
	InsertSurveySubmission(ctx context.Context, submission model.SurveySubmission) error
	InsertLoyaltyLead(ctx context.Context, lead model.LoyaltyLead) error
	ListSurveySubmissions(ctx context.Context, touchpointID string) ([]model.SurveySubmission, error)
	ListLoyaltyLeads(ctx context.Context, touchpointID string) ([]model.LoyaltyLead, error)
}

// Store is the full touchpoint persistence capability.
type Store interface {
	Procedures
	Tables
}
