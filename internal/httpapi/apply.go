package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/store"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/validation"
)

const (
	applyRequiredFieldsMessage = "business_name, email, and google_review_url are required."
	provisioningFailedMessage  = "Provisioning failed"
)

type applyRequest struct {
	BusinessName    string `json:"business_name"`
	OwnerName       string `json:"owner_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	GoogleReviewURL string `json:"google_review_url"`
	Notes           string `json:"notes"`
}

// Apply provisions a business and its touchpoint from the landing page form. Applying twice
// with the same email returns the existing business.
func (h *APIHandlers) Apply(context *gin.Context) {
	trace := NewTrace(context, h.logger, RouteApply)

	var payload applyRequest
	if !bindBody(context, trace, &payload) {
		return
	}
	trace.Info("Apply request received", zap.String("business_name", payload.BusinessName), zap.String("email", maskEmail(payload.Email)))

	businessName := strings.TrimSpace(payload.BusinessName)
	email := strings.TrimSpace(payload.Email)
	googleReviewURL := strings.TrimSpace(payload.GoogleReviewURL)
	if businessName == "" || email == "" || googleReviewURL == "" {
		trace.Fail(http.StatusBadRequest, applyRequiredFieldsMessage)
		return
	}

	if urlCheck := validation.ValidateGoogleReviewURL(googleReviewURL); !urlCheck.Valid {
		trace.Fail(http.StatusBadRequest, urlCheck.Error, zap.String("field", "google_review_url"))
		return
	}

	result, provisionErr := h.store.Provision(context.Request.Context(), store.ProvisionInput{
		BusinessName:    businessName,
		OwnerName:       strings.TrimSpace(payload.OwnerName),
		Email:           email,
		Phone:           strings.TrimSpace(payload.Phone),
		GoogleReviewURL: googleReviewURL,
		Notes:           strings.TrimSpace(payload.Notes),
		Source:          store.ProvisionSourceLanding,
	})
	if provisionErr != nil {
		failUpstream(trace, provisionErr)
		return
	}
	if !result.OK {
		message := result.Error
		if message == "" {
			message = provisioningFailedMessage
		}
		trace.Fail(http.StatusInternalServerError, message)
		return
	}

	if result.AlreadyExists {
		trace.Info("Returned existing business", zap.String("slug", result.Slug))
	} else {
		trace.Info("New business provisioned", zap.String("slug", result.Slug))
	}
	trace.Success(gin.H{
		"already_exists": result.AlreadyExists,
		"application":    result,
		"provisioned":    result,
	})
}
