package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/store"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/validation"
)

const (
	loginRequiredFieldsMessage  = "slug and email are required."
	updateRequiredFieldsMessage = "slug, email, and patch are required."
	accessDeniedMessage         = "Access denied"
	updateFailedMessage         = "Update failed"
	invalidSlugMessage          = "Invalid slug"
	noTouchpointMessage         = "No touchpoint found"
	invalidColorMessageFormat   = "Invalid color for %s. Must be #RRGGBB format."
	invalidQuestionsMessage     = "Invalid type for survey_questions. Must be an array."

	submissionsFormatCSV   = "csv"
	receivedValueMaxLength = 20

	patchKeyGoogleReviewURL = "google_review_url"
	patchKeySurveyQuestions = "survey_questions"
)

type ownerRequest struct {
	Slug   string `json:"slug"`
	Email  string `json:"email"`
	Format string `json:"format"`
}

type updateRequest struct {
	Slug  string         `json:"slug"`
	Email string         `json:"email"`
	Patch map[string]any `json:"patch"`
}

// AdminLogin returns the touchpoint configuration when the email owns the slug.
func (h *APIHandlers) AdminLogin(context *gin.Context) {
	trace := NewTrace(context, h.logger, RouteAdminLogin)

	var payload ownerRequest
	if !bindBody(context, trace, &payload) {
		return
	}
	slug := strings.TrimSpace(payload.Slug)
	email := strings.TrimSpace(payload.Email)
	if slug == "" || email == "" {
		trace.Fail(http.StatusBadRequest, loginRequiredFieldsMessage)
		return
	}
	trace.Info("Admin login attempt", zap.String("slug", slug), zap.String("email", maskEmail(email)))

	result, configErr := h.store.GetAdminConfig(context.Request.Context(), slug, email)
	if configErr != nil {
		failUpstream(trace, configErr, zap.String("slug", slug))
		return
	}
	if !result.OK {
		trace.Warn("Admin login denied", zap.String("slug", slug), zap.String("reason", result.Error))
		message := result.Error
		if message == "" {
			message = accessDeniedMessage
		}
		trace.Fail(http.StatusForbidden, message, zap.String("slug", slug))
		return
	}

	trace.Info("Admin login successful", zap.String("slug", slug), zap.String("touchpoint_id", result.Config.TouchpointID))
	trace.Success(gin.H{"config": result.Config})
}

// UpdateTouchpoint validates and sanitizes an owner's patch before applying it.
func (h *APIHandlers) UpdateTouchpoint(context *gin.Context) {
	trace := NewTrace(context, h.logger, RouteUpdate)

	var payload updateRequest
	if !bindBody(context, trace, &payload) {
		return
	}
	slug := strings.TrimSpace(payload.Slug)
	email := strings.TrimSpace(payload.Email)
	if slug == "" || email == "" || payload.Patch == nil {
		trace.Fail(http.StatusBadRequest, updateRequiredFieldsMessage)
		return
	}
	trace.Info("Update request received", zap.String("slug", slug), zap.Strings("patchKeys", patchKeys(payload.Patch)))

	if rawURL, present := payload.Patch[patchKeyGoogleReviewURL]; present && truthy(rawURL) {
		if urlCheck := validation.ValidateGoogleReviewURL(fmt.Sprint(rawURL)); !urlCheck.Valid {
			trace.Fail(http.StatusBadRequest, urlCheck.Error, zap.String("field", patchKeyGoogleReviewURL))
			return
		}
	}

	for _, field := range validation.ColorFields {
		value, present := payload.Patch[field]
		if !present || value == nil || value == "" {
			continue
		}
		if text, isText := value.(string); isText && validation.IsValidHex(text) {
			continue
		}
		trace.Fail(http.StatusBadRequest, fmt.Sprintf(invalidColorMessageFormat, field),
			zap.String("field", field),
			zap.String("received", truncate(fmt.Sprint(value), receivedValueMaxLength)),
		)
		return
	}

	if questions, present := payload.Patch[patchKeySurveyQuestions]; present {
		if _, isList := questions.([]any); !isList {
			trace.Fail(http.StatusBadRequest, invalidQuestionsMessage,
				zap.String("field", patchKeySurveyQuestions),
				zap.String("received", fmt.Sprintf("%T", questions)),
			)
			return
		}
	}

	result, updateErr := h.store.UpdateTouchpoint(context.Request.Context(), slug, email, h.sanitizer.Sanitize(payload.Patch))
	if updateErr != nil {
		failUpstream(trace, updateErr, zap.String("slug", slug))
		return
	}
	if !result.OK {
		message := result.Error
		if message == "" {
			message = updateFailedMessage
		}
		trace.Fail(http.StatusForbidden, message, zap.String("slug", slug))
		return
	}

	trace.Info("Touchpoint updated", zap.String("slug", slug), zap.String("touchpoint_id", result.Touchpoint.TouchpointID))
	trace.Success(gin.H{"touchpoint": result.Touchpoint})
}

// Submissions lists survey submissions and offer leads newest first, as JSON or as a CSV download.
func (h *APIHandlers) Submissions(context *gin.Context) {
	trace := NewTrace(context, h.logger, RouteSubmissions)

	var payload ownerRequest
	if !bindBody(context, trace, &payload) {
		return
	}
	slug := strings.TrimSpace(payload.Slug)
	email := strings.TrimSpace(payload.Email)
	if slug == "" || email == "" {
		trace.Fail(http.StatusBadRequest, loginRequiredFieldsMessage)
		return
	}
	trace.Info("Submissions request", zap.String("slug", slug), zap.String("format", payload.Format))

	requestContext := context.Request.Context()
	business, businessErr := h.store.BusinessBySlug(requestContext, slug)
	if errors.Is(businessErr, store.ErrNotFound) {
		trace.Fail(http.StatusNotFound, invalidSlugMessage)
		return
	}
	if businessErr != nil {
		failUpstream(trace, businessErr, zap.String("slug", slug))
		return
	}
	if business.Email == "" || !strings.EqualFold(strings.TrimSpace(business.Email), email) {
		trace.Fail(http.StatusForbidden, accessDeniedMessage, zap.String("slug", slug))
		return
	}

	touchpointID, touchpointErr := h.store.TouchpointIDForBusiness(requestContext, business.ID)
	if errors.Is(touchpointErr, store.ErrNotFound) {
		trace.Fail(http.StatusNotFound, noTouchpointMessage)
		return
	}
	if touchpointErr != nil {
		failUpstream(trace, touchpointErr, zap.String("slug", slug))
		return
	}

	surveys, surveysErr := h.store.ListSurveySubmissions(requestContext, touchpointID)
	if surveysErr != nil {
		failUpstream(trace, surveysErr, zap.String("slug", slug))
		return
	}
	leads, leadsErr := h.store.ListLoyaltyLeads(requestContext, touchpointID)
	if leadsErr != nil {
		failUpstream(trace, leadsErr, zap.String("slug", slug))
		return
	}
	submissions := model.MergeSubmissions(surveys, leads)

	if payload.Format == submissionsFormatCSV {
		trace.Info("Submissions exported", zap.Int("count", len(submissions)))
		context.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-submissions.csv"`, slug))
		context.Data(http.StatusOK, "text/csv", []byte(SubmissionsCSV(submissions)))
		return
	}

	trace.Info("Submissions fetched", zap.Int("count", len(submissions)))
	trace.Success(gin.H{"submissions": submissions})
}

func patchKeys(patch map[string]any) []string {
	keys := make([]string, 0, len(patch))
	for key := range patch {
		keys = append(keys, key)
	}
	return keys
}

// truthy follows JSON truthiness: null, false, 0 and "" are false.
func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case float64:
		return typed != 0
	default:
		return true
	}
}

func truncate(value string, maxLength int) string {
	runes := []rune(value)
	if len(runes) <= maxLength {
		return value
	}
	return string(runes[:maxLength])
}
