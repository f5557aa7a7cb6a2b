package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/store"
)

const (
	RouteApply          = "ezinfo/apply"
	RouteAdminLogin     = "ezinfo/admin/login"
	RouteSubmissions    = "ezinfo/admin/submissions"
	RouteUpdate         = "ezinfo/touchpoint/update"
	RouteEvent          = "ezinfo/event"
	RouteOfferClaim     = "ezinfo/offer/claim"
	RouteSurveySubmit   = "ezinfo/survey/submit"
	RouteReviewRewrite  = "ezinfo/ai/rewrite"
	databaseErrorSource = "database"

	maskedEmailVisiblePrefix = 3
	maskedEmailSuffix        = "***"
)

var errInvalidTouchpoint = errors.New("invalid_touchpoint")

// APIHandlers serves the JSON endpoints under /api/ezinfo.
type APIHandlers struct {
	store     store.Store
	logger    *zap.Logger
	sanitizer patchSanitizer
}

func NewAPIHandlers(touchpointStore store.Store, logger *zap.Logger) *APIHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandlers{
		store:     touchpointStore,
		logger:    logger,
		sanitizer: newPatchSanitizer(),
	}
}

// bindBody decodes the JSON body into target and fails the request when it cannot.
func bindBody(context *gin.Context, trace *Trace, target any) bool {
	if bindErr := context.ShouldBindJSON(target); bindErr != nil {
		trace.Fail(http.StatusBadRequest, invalidJSONBodyMessage, zap.Error(bindErr))
		return false
	}
	return true
}

// failUpstream relays a store failure as a 500 with the database message and code.
func failUpstream(trace *Trace, err error, fields ...zap.Field) {
	var upstreamError *store.UpstreamError
	if errors.As(err, &upstreamError) {
		fields = append(fields, zap.String(logFieldSource, databaseErrorSource), zap.String("code", upstreamError.Code))
		trace.Fail(http.StatusInternalServerError, upstreamError.Message, fields...)
		return
	}
	trace.Fail(http.StatusInternalServerError, err.Error(), fields...)
}

func maskEmail(email string) string {
	runes := []rune(email)
	if len(runes) > maskedEmailVisiblePrefix {
		runes = runes[:maskedEmailVisiblePrefix]
	}
	return string(runes) + maskedEmailSuffix
}

// recordLoyaltyLead validates the claim and stores it against the business owning the touchpoint.
func recordLoyaltyLead(ctx context.Context, tables store.Tables, touchpointID string, email string) (model.LoyaltyLead, error) {
	lead, leadErr := model.NewLoyaltyLead(model.LoyaltyLeadInput{TouchpointID: touchpointID, Email: email})
	if leadErr != nil {
		return model.LoyaltyLead{}, leadErr
	}
	businessID, lookupErr := touchpointBusiness(ctx, tables, lead.TouchpointID)
	if lookupErr != nil {
		return model.LoyaltyLead{}, lookupErr
	}
	lead.BusinessID = businessID
	if insertErr := tables.InsertLoyaltyLead(ctx, lead); insertErr != nil {
		return model.LoyaltyLead{}, insertErr
	}
	return lead, nil
}

// recordSurveySubmission only requires the touchpoint to exist; an unassigned business is allowed.
func recordSurveySubmission(ctx context.Context, tables store.Tables, touchpointID string, email string, answers map[string]string) (model.SurveySubmission, error) {
	submission, submissionErr := model.NewSurveySubmission(model.SurveySubmissionInput{
		TouchpointID: touchpointID,
		Email:        email,
		Answers:      answers,
	})
	if submissionErr != nil {
		return model.SurveySubmission{}, submissionErr
	}
	businessID, lookupErr := tables.TouchpointBusinessID(ctx, submission.TouchpointID)
	if errors.Is(lookupErr, store.ErrNotFound) {
		return model.SurveySubmission{}, errInvalidTouchpoint
	}
	if lookupErr != nil {
		return model.SurveySubmission{}, lookupErr
	}
	submission.BusinessID = businessID
	if insertErr := tables.InsertSurveySubmission(ctx, submission); insertErr != nil {
		return model.SurveySubmission{}, insertErr
	}
	return submission, nil
}

func touchpointBusiness(ctx context.Context, tables store.Tables, touchpointID string) (string, error) {
	businessID, lookupErr := tables.TouchpointBusinessID(ctx, touchpointID)
	if errors.Is(lookupErr, store.ErrNotFound) || (lookupErr == nil && strings.TrimSpace(businessID) == "") {
		return "", errInvalidTouchpoint
	}
	return businessID, lookupErr
}
