package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/rewrite"
)

const (
	eventRequiredFieldsMessage = "touchpoint_id and event_type are required."
	invalidEventTypePrefix     = "Invalid event_type. Must be one of: "
	touchpointRequiredMessage  = "touchpoint_id is required."
	offerEmailRequiredMessage  = "An email is required to claim the offer."
	offerEmailInvalidMessage   = "Please provide a valid email."
	invalidTouchpointMessage   = "Invalid touchpoint"
	answersRequiredMessage     = "answers object is required."
	rewriteTextRequiredMessage = "text is required."
)

type eventRequest struct {
	TouchpointID string `json:"touchpoint_id"`
	EventType    string `json:"event_type"`
}

type offerClaimRequest struct {
	TouchpointID string `json:"touchpoint_id"`
	Email        string `json:"email"`
}

type surveySubmitRequest struct {
	TouchpointID string          `json:"touchpoint_id"`
	Email        string          `json:"email"`
	Answers      json.RawMessage `json:"answers"`
}

type rewriteRequest struct {
	Text   string `json:"text"`
	AITone string `json:"ai_tone"`
	AIMode string `json:"ai_mode"`
}

// LogEvent records one allow-listed visitor interaction.
func (h *APIHandlers) LogEvent(context *gin.Context) {
	trace := NewTrace(context, h.logger, RouteEvent)

	var payload eventRequest
	if !bindBody(context, trace, &payload) {
		return
	}
	touchpointID := strings.TrimSpace(payload.TouchpointID)
	eventType := strings.TrimSpace(payload.EventType)
	if touchpointID == "" || eventType == "" {
		trace.Fail(http.StatusBadRequest, eventRequiredFieldsMessage)
		return
	}
	if !model.IsLoggableEventType(eventType) {
		trace.Fail(http.StatusBadRequest, invalidEventTypePrefix+strings.Join(model.LoggableEventTypeNames(), ", "), zap.String("received", eventType))
		return
	}

	eventID, logErr := h.store.LogEvent(context.Request.Context(), touchpointID, eventType)
	if logErr != nil {
		failUpstream(trace, logErr, zap.String("touchpoint_id", touchpointID), zap.String("event_type", eventType))
		return
	}
	trace.Success(gin.H{"event_id": eventID, "event_type": eventType})
}

// ClaimOffer stores the visitor's email as a lead for the touchpoint's business.
func (h *APIHandlers) ClaimOffer(context *gin.Context) {
	trace := NewTrace(context, h.logger, RouteOfferClaim)

	var payload offerClaimRequest
	if !bindBody(context, trace, &payload) {
		return
	}
	touchpointID := strings.TrimSpace(payload.TouchpointID)
	if touchpointID == "" {
		trace.Fail(http.StatusBadRequest, touchpointRequiredMessage)
		return
	}
	if strings.TrimSpace(payload.Email) == "" {
		trace.Fail(http.StatusBadRequest, offerEmailRequiredMessage)
		return
	}
	trace.Info("Claim request received", zap.String("touchpoint_id", touchpointID), zap.Bool("hasEmail", true))

	lead, claimErr := recordLoyaltyLead(context.Request.Context(), h.store, touchpointID, payload.Email)
	switch {
	case claimErr == nil:
	case errors.Is(claimErr, model.ErrInvalidLeadEmail):
		trace.Fail(http.StatusBadRequest, offerEmailInvalidMessage, zap.Error(claimErr))
		return
	case errors.Is(claimErr, errInvalidTouchpoint):
		trace.Fail(http.StatusNotFound, invalidTouchpointMessage, zap.String("touchpoint_id", touchpointID))
		return
	default:
		failUpstream(trace, claimErr, zap.String("touchpoint_id", touchpointID))
		return
	}

	trace.Info("Offer lead captured successfully", zap.String("lead_id", lead.ID))
	trace.Success(gin.H{"lead": lead})
}

// SubmitSurvey stores a completed survey. Email is optional and answers may be empty.
func (h *APIHandlers) SubmitSurvey(context *gin.Context) {
	trace := NewTrace(context, h.logger, RouteSurveySubmit)

	var payload surveySubmitRequest
	if !bindBody(context, trace, &payload) {
		return
	}
	touchpointID := strings.TrimSpace(payload.TouchpointID)
	if touchpointID == "" {
		trace.Fail(http.StatusBadRequest, touchpointRequiredMessage)
		return
	}
	answers, isObject := decodeAnswers(payload.Answers)
	if !isObject {
		trace.Fail(http.StatusBadRequest, answersRequiredMessage)
		return
	}
	email := strings.TrimSpace(payload.Email)
	trace.Info("Survey submission received",
		zap.String("touchpoint_id", touchpointID),
		zap.Bool("hasEmail", email != ""),
		zap.Int("answerCount", len(answers)),
	)

	submission, submitErr := recordSurveySubmission(context.Request.Context(), h.store, touchpointID, email, model.StringifyAnswers(answers))
	if errors.Is(submitErr, errInvalidTouchpoint) {
		trace.Fail(http.StatusNotFound, invalidTouchpointMessage, zap.String("touchpoint_id", touchpointID))
		return
	}
	if submitErr != nil {
		failUpstream(trace, submitErr, zap.String("touchpoint_id", touchpointID))
		return
	}

	trace.Info("Survey submission saved", zap.String("submission_id", submission.ID))
	trace.Success(gin.H{"submission_id": submission.ID})
}

// decodeAnswers accepts a JSON object or array. Array answers are keyed by their index.
func decodeAnswers(raw json.RawMessage) (map[string]any, bool) {
	var decoded any
	if decodeErr := json.Unmarshal(raw, &decoded); decodeErr != nil {
		return nil, false
	}
	switch answers := decoded.(type) {
	case map[string]any:
		return answers, true
	case []any:
		indexed := make(map[string]any, len(answers))
		for index, answer := range answers {
			indexed[strconv.Itoa(index)] = answer
		}
		return indexed, true
	default:
		return nil, false
	}
}

// RewriteReview polishes a review draft with the rule-based rewriter.
func (h *APIHandlers) RewriteReview(context *gin.Context) {
	trace := NewTrace(context, h.logger, RouteReviewRewrite)

	var payload rewriteRequest
	if !bindBody(context, trace, &payload) {
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		trace.Fail(http.StatusBadRequest, rewriteTextRequiredMessage)
		return
	}
	tone := rewrite.ParseTone(payload.AITone)
	mode := rewrite.ParseMode(payload.AIMode)
	trace.Info("AI rewrite requested", zap.Int("inputLength", len(text)), zap.String("tone", string(tone)), zap.String("mode", string(mode)))

	rewritten := rewrite.Rewrite(text, tone, mode)
	trace.Info("AI rewrite completed", zap.Int("outputLength", len(rewritten)))
	trace.Success(gin.H{"rewritten_text": rewritten})
}
