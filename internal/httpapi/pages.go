package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/rewrite"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/store"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/survey"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/task"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/touchpoint"
	"github.com/MarkoPoloResearchLab/ezinfo/pkg/footer"
)

const (
	pageKindNotFound = "not_found"
	pageKindDisabled = "disabled"
	pageKindDirect   = "direct"
	pageKindAssist   = "assist"
	pageKindSurvey   = "survey"

	formFieldAction       = "action"
	formFieldStep         = "step"
	formFieldAnswers      = "answers"
	formFieldAnswer       = "answer"
	formFieldEmail        = "email"
	formFieldText         = "text"
	formFieldPreviousText = "previous_text"

	surveyActionBack     = "back"
	surveyActionSubmit   = "submit"
	composeActionUndo    = "undo"
	composeActionImprove = "improve"

	answerRequiredMessage  = "Please answer this question to continue."
	composeEmptyMessage    = "Write a few words first, then let AI polish them."
	pageFailureMessage     = "Something went wrong. Please try again."
	htmlContentType        = "text/html; charset=utf-8"
	pageRenderFailedStatus = http.StatusInternalServerError
)

// EventSink accepts best-effort visitor events. task.EventDispatcher implements it.
type EventSink interface {
	Dispatch(touchpointID string, eventType model.EventType) error
}

// PageHandlers renders the public touchpoint page and handles its form posts.
type PageHandlers struct {
	tables       store.Tables
	events       EventSink
	logger       *zap.Logger
	pageTemplate *template.Template
	footerHTML   template.HTML
}

type composerState struct {
	Text         string
	PreviousText string
	CanUndo      bool
	Error        string
}

type surveyState struct {
	Title            string
	Empty            bool
	EmptyMessage     string
	Stage            string
	Step             int
	Position         int
	Total            int
	Question         model.SurveyQuestion
	Answer           string
	AnswersJSON      string
	Email            string
	EmailPrompt      string
	CanGoBack        bool
	CompletedMessage string
	Toast            string
	Error            string
}

type offerState struct {
	Heading     string
	Description string
	Terms       string
	Claimed     bool
	Email       string
	Error       string
}

type pageData struct {
	Kind         string
	Title        string
	Slug         string
	TouchpointID string
	BusinessName string
	LogoURL      string
	Theme        touchpoint.Theme
	Footer       template.HTML

	Heading          string
	Message          string
	ReviewURL        string
	ShowReviewButton bool
	AutoRedirect     bool
	RedirectDelay    int64

	PromptTitle    string
	PromptSubtitle string
	AIEnabled      bool
	Composer       composerState

	Survey surveyState
	Offer  *offerState
}

func NewPageHandlers(tables store.Tables, events EventSink, logger *zap.Logger) (*PageHandlers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pageTemplate, parseErr := template.New("touchpoint").Parse(touchpointTemplateHTML)
	if parseErr != nil {
		return nil, fmt.Errorf("parse touchpoint template: %w", parseErr)
	}
	footerHTML, footerErr := footer.Render(footer.Config{})
	if footerErr != nil {
		return nil, fmt.Errorf("render footer: %w", footerErr)
	}
	return &PageHandlers{
		tables:       tables,
		events:       events,
		logger:       logger,
		pageTemplate: pageTemplate,
		footerHTML:   footerHTML,
	}, nil
}

// ShowTouchpoint renders GET /ezinfo/:slug and records the render events of the resolved view.
func (h *PageHandlers) ShowTouchpoint(context *gin.Context) {
	view, loadErr := h.resolve(context)
	if loadErr != nil {
		return
	}
	data, dataErr := h.pageDataFor(view)
	if dataErr != nil {
		h.renderFailure(context, dataErr)
		return
	}
	if surveyView, isSurvey := view.(touchpoint.SurveyView); isSurvey {
		data.Offer = nil
		if len(surveyView.Questions) > 0 {
			flow, flowErr := survey.NewFlow(surveyView.Config.TouchpointID, surveyView.Questions)
			if flowErr != nil {
				h.renderFailure(context, flowErr)
				return
			}
			data.Survey = surveyStateFor(surveyView, flow)
		}
	}

	events, eventsErr := touchpoint.RenderEvents(view, touchpoint.SurfacePublic)
	if eventsErr != nil {
		h.renderFailure(context, eventsErr)
		return
	}
	for _, eventType := range events {
		h.dispatch(data.TouchpointID, eventType)
	}
	h.render(context, statusFor(view), data)
}

// SurveyStep moves the survey form one step. The position and answers travel in hidden fields.
func (h *PageHandlers) SurveyStep(context *gin.Context) {
	view, loadErr := h.resolve(context)
	if loadErr != nil {
		return
	}
	surveyView, isSurvey := view.(touchpoint.SurveyView)
	if !isSurvey || len(surveyView.Questions) == 0 {
		h.redirectToPage(context)
		return
	}
	data, dataErr := h.pageDataFor(view)
	if dataErr != nil {
		h.renderFailure(context, dataErr)
		return
	}

	flow, flowErr := survey.RestoreFlow(surveyView.Config.TouchpointID, surveyView.Questions, snapshotFromForm(context))
	if flowErr != nil {
		h.renderFailure(context, flowErr)
		return
	}

	var stepError string
	switch context.PostForm(formFieldAction) {
	case surveyActionBack:
		if flow.Stage() == survey.StageQuestion {
			_ = flow.SetAnswer(context.PostForm(formFieldAnswer))
		} else {
			flow.SetEmail(context.PostForm(formFieldEmail))
		}
		flow.Back()
	case surveyActionSubmit:
		flow.SetEmail(context.PostForm(formFieldEmail))
		submitErr := flow.Submit(context.Request.Context(), storeSubmitter{tables: h.tables})
		if submitErr != nil {
			h.logger.Warn("survey_submit_failed", zap.String("slug", surveyView.Config.Slug), zap.Error(submitErr))
		} else {
			h.dispatch(surveyView.Config.TouchpointID, model.EventTypeSurveySubmit)
		}
	default:
		if flow.Stage() == survey.StageQuestion {
			_ = flow.SetAnswer(context.PostForm(formFieldAnswer))
			if nextErr := flow.Next(); errors.Is(nextErr, survey.ErrEmptyAnswer) {
				stepError = answerRequiredMessage
			}
		}
	}

	data.Survey = surveyStateFor(surveyView, flow)
	data.Survey.Error = stepError
	if flow.Stage() != survey.StageCompleted {
		data.Offer = nil
	}
	h.render(context, http.StatusOK, data)
}

// Compose handles the review composer buttons of an assist page.
func (h *PageHandlers) Compose(context *gin.Context) {
	view, loadErr := h.resolve(context)
	if loadErr != nil {
		return
	}
	assistView, isAssist := view.(touchpoint.GoogleAssistView)
	if !isAssist {
		h.redirectToPage(context)
		return
	}
	data, dataErr := h.pageDataFor(view)
	if dataErr != nil {
		h.renderFailure(context, dataErr)
		return
	}

	text := context.PostForm(formFieldText)
	previousText := context.PostForm(formFieldPreviousText)
	composer := composerState{Text: text}
	switch context.PostForm(formFieldAction) {
	case composeActionImprove:
		trimmed := strings.TrimSpace(text)
		switch {
		case !assistView.AIEnabled:
		case trimmed == "":
			composer.Error = composeEmptyMessage
		default:
			composer.Text = rewrite.Rewrite(trimmed, rewrite.ToneProfessional, rewrite.ModeNormal)
			composer.PreviousText = text
			composer.CanUndo = true
			h.dispatch(assistView.Config.TouchpointID, model.EventTypeAIGenerate)
		}
	case composeActionUndo:
		if previousText != "" {
			composer.Text = previousText
		}
	}
	data.Composer = composer
	h.render(context, http.StatusOK, data)
}

// ClaimOffer handles the offer form and re-renders the page with the terms revealed.
func (h *PageHandlers) ClaimOffer(context *gin.Context) {
	view, loadErr := h.resolve(context)
	if loadErr != nil {
		return
	}
	data, dataErr := h.pageDataFor(view)
	if dataErr != nil {
		h.renderFailure(context, dataErr)
		return
	}
	if data.Offer == nil {
		h.redirectToPage(context)
		return
	}
	if surveyView, isSurvey := view.(touchpoint.SurveyView); isSurvey {
		data.Survey = surveyState{
			Title:            surveyView.Title,
			Stage:            string(survey.StageCompleted),
			CompletedMessage: survey.CompletedMessage,
		}
	}

	email := strings.TrimSpace(context.PostForm(formFieldEmail))
	data.Offer.Email = email
	if email == "" {
		data.Offer.Error = offerEmailRequiredMessage
		h.render(context, http.StatusOK, data)
		return
	}

	_, claimErr := recordLoyaltyLead(context.Request.Context(), h.tables, data.TouchpointID, email)
	switch {
	case claimErr == nil:
		data.Offer.Claimed = true
		data.Offer.Heading = touchpoint.ClaimedOfferTitle
		h.dispatch(data.TouchpointID, model.EventTypeOfferClaim)
	case errors.Is(claimErr, model.ErrInvalidLeadEmail):
		data.Offer.Error = offerEmailInvalidMessage
	default:
		h.logger.Warn("offer_claim_failed", zap.String("slug", data.Slug), zap.Error(claimErr))
		data.Offer.Error = pageFailureMessage
	}
	h.render(context, http.StatusOK, data)
}

// resolve loads the touchpoint for :slug. It renders a failure page itself when loading fails.
func (h *PageHandlers) resolve(context *gin.Context) (touchpoint.View, error) {
	slug := strings.TrimSpace(context.Param("slug"))
	if slug == "" {
		return touchpoint.Resolve(nil, touchpoint.SurfacePublic), nil
	}
	config, loadErr := h.tables.PublicTouchpoint(context.Request.Context(), slug)
	if errors.Is(loadErr, store.ErrNotFound) {
		return touchpoint.Resolve(nil, touchpoint.SurfacePublic), nil
	}
	if loadErr != nil {
		h.renderFailure(context, loadErr)
		return nil, loadErr
	}
	if config.Normalized().PrimaryMode == model.PrimaryModeSurvey {
		questions, questionsErr := h.tables.SurveyQuestions(context.Request.Context(), config.TouchpointID)
		if questionsErr != nil {
			h.renderFailure(context, questionsErr)
			return nil, questionsErr
		}
		config.SurveyQuestions = questions
	}
	return touchpoint.Resolve(&config, touchpoint.SurfacePublic), nil
}

func (h *PageHandlers) pageDataFor(view touchpoint.View) (pageData, error) {
	title, titleErr := touchpoint.PageTitle(view)
	if titleErr != nil {
		return pageData{}, titleErr
	}
	data := pageData{Title: title, Footer: h.footerHTML}

	switch typed := view.(type) {
	case touchpoint.NotFoundView:
		data.Kind = pageKindNotFound
		data.Theme = touchpoint.Theme{Accent: touchpoint.DefaultAccentColor}
		data.Heading = touchpoint.NotFoundTitle
		data.Message = touchpoint.NotFoundMessage
	case touchpoint.DisabledView:
		data.Kind = pageKindDisabled
		data.BusinessName = typed.BusinessName
		data.Theme = typed.Theme
		data.Heading = touchpoint.DisabledTitle
		data.Message = typed.Message
		data.ReviewURL = typed.ReviewURL
		data.ShowReviewButton = typed.ShowReviewButton
	case touchpoint.GoogleDirectView:
		data.Kind = pageKindDirect
		applyConfig(&data, typed.Config, typed.Theme, typed.Offer)
		data.Heading = touchpoint.RedirectingTitle
		data.Message = touchpoint.RedirectingSubtitle
		data.ReviewURL = typed.ReviewURL
		data.AutoRedirect = typed.AutoRedirect
		data.RedirectDelay = typed.RedirectDelay.Milliseconds()
	case touchpoint.GoogleAssistView:
		data.Kind = pageKindAssist
		applyConfig(&data, typed.Config, typed.Theme, typed.Offer)
		data.PromptTitle = typed.PromptTitle
		data.PromptSubtitle = typed.PromptSubtitle
		data.AIEnabled = typed.AIEnabled
		data.ReviewURL = typed.ReviewURL
	case touchpoint.SurveyView:
		data.Kind = pageKindSurvey
		applyConfig(&data, typed.Config, typed.Theme, typed.Offer)
		data.Survey = surveyState{Title: typed.Title}
		if len(typed.Questions) == 0 {
			data.Survey.Empty = true
			data.Survey.EmptyMessage = touchpoint.EmptySurveyMessage
		}
	default:
		return pageData{}, fmt.Errorf("%w: %T", touchpoint.ErrUnknownView, view)
	}
	return data, nil
}

func applyConfig(data *pageData, config model.TouchpointConfig, theme touchpoint.Theme, offer *touchpoint.Offer) {
	data.Slug = config.Slug
	data.TouchpointID = config.TouchpointID
	data.BusinessName = config.BusinessName
	data.LogoURL = config.BrandLogoURL
	data.Theme = theme
	if offer != nil {
		data.Offer = &offerState{
			Heading:     offer.Title,
			Description: offer.Description,
			Terms:       offer.Terms,
		}
	}
}

func surveyStateFor(view touchpoint.SurveyView, flow *survey.Flow) surveyState {
	position, total := flow.Progress()
	question, _ := flow.CurrentQuestion()
	snapshot := flow.Snapshot()
	encodedAnswers, _ := json.Marshal(snapshot.Answers)
	return surveyState{
		Title:            view.Title,
		Stage:            string(flow.Stage()),
		Step:             snapshot.Step,
		Position:         position,
		Total:            total,
		Question:         question,
		Answer:           flow.CurrentAnswer(),
		AnswersJSON:      string(encodedAnswers),
		Email:            flow.Email(),
		EmailPrompt:      survey.EmailPrompt,
		CanGoBack:        snapshot.Step > 0,
		CompletedMessage: survey.CompletedMessage,
		Toast:            flow.Toast(),
	}
}

func snapshotFromForm(context *gin.Context) survey.Snapshot {
	step, _ := strconv.Atoi(context.PostForm(formFieldStep))
	answers := map[string]string{}
	if encoded := context.PostForm(formFieldAnswers); encoded != "" {
		if decodeErr := json.Unmarshal([]byte(encoded), &answers); decodeErr != nil {
			answers = map[string]string{}
		}
	}
	return survey.Snapshot{Step: step, Answers: answers, Email: context.PostForm(formFieldEmail)}
}

func statusFor(view touchpoint.View) int {
	if _, notFound := view.(touchpoint.NotFoundView); notFound {
		return http.StatusNotFound
	}
	return http.StatusOK
}

func (h *PageHandlers) dispatch(touchpointID string, eventType model.EventType) {
	if h.events == nil || touchpointID == "" {
		return
	}
	dispatchErr := h.events.Dispatch(touchpointID, eventType)
	switch {
	case dispatchErr == nil:
	case errors.Is(dispatchErr, task.ErrEventTypeNotAllowed):
		h.logger.Debug("event_not_logged", zap.String("touchpoint_id", touchpointID), zap.String("event_type", string(eventType)))
	default:
		h.logger.Warn("event_dispatch_failed", zap.String("touchpoint_id", touchpointID), zap.String("event_type", string(eventType)), zap.Error(dispatchErr))
	}
}

func (h *PageHandlers) render(context *gin.Context, status int, data pageData) {
	var buffer bytes.Buffer
	if executeErr := h.pageTemplate.Execute(&buffer, data); executeErr != nil {
		h.renderFailure(context, executeErr)
		return
	}
	context.Data(status, htmlContentType, buffer.Bytes())
}

func (h *PageHandlers) renderFailure(context *gin.Context, err error) {
	h.logger.Error("touchpoint_page_failed", zap.String("path", context.Request.URL.Path), zap.Error(err))
	context.Data(pageRenderFailedStatus, htmlContentType, []byte(internalServerErrorMessage))
}

func (h *PageHandlers) redirectToPage(context *gin.Context) {
	context.Redirect(http.StatusSeeOther, "/ezinfo/"+strings.TrimSpace(context.Param("slug")))
}

// storeSubmitter submits page surveys straight to the store.
type storeSubmitter struct {
	tables store.Tables
}

func (submitter storeSubmitter) SubmitSurvey(ctx context.Context, submission survey.Submission) (string, error) {
	stored, submitErr := recordSurveySubmission(ctx, submitter.tables, submission.TouchpointID, submission.Email, submission.Answers)
	if submitErr != nil {
		return "", submitErr
	}
	return stored.ID, nil
}
