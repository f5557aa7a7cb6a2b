package model

import (
	"slices"
	"sort"
	"strings"
)

// PrimaryMode selects which flow a visitor sees on an active touchpoint.
type PrimaryMode string

// RedirectMode selects how GOOGLE_REVIEWS touchpoints hand the visitor to Google.
type RedirectMode string

// QuestionType identifies the input rendered for a survey question.
type QuestionType string

const (
	PrimaryModeGoogleReviews PrimaryMode = "GOOGLE_REVIEWS"
	PrimaryModeSurvey        PrimaryMode = "SURVEY"

	RedirectModeAssist RedirectMode = "assist"
	RedirectModeDirect RedirectMode = "direct"

	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
)

// ParsePrimaryMode falls back to GOOGLE_REVIEWS for anything other than SURVEY.
func ParsePrimaryMode(raw string) PrimaryMode {
	if PrimaryMode(strings.ToUpper(strings.TrimSpace(raw))) == PrimaryModeSurvey {
		return PrimaryModeSurvey
	}
	return PrimaryModeGoogleReviews
}

// ParseRedirectMode falls back to assist for anything other than direct.
func ParseRedirectMode(raw string) RedirectMode {
	if RedirectMode(strings.ToLower(strings.TrimSpace(raw))) == RedirectModeDirect {
		return RedirectModeDirect
	}
	return RedirectModeAssist
}

// ParseQuestionType falls back to short_answer for unknown values.
func ParseQuestionType(raw string) QuestionType {
	if QuestionType(strings.ToLower(strings.TrimSpace(raw))) == QuestionTypeMultipleChoice {
		return QuestionTypeMultipleChoice
	}
	return QuestionTypeShortAnswer
}

// SurveyQuestion is one entry of a touchpoint survey. Answers are keyed by QuestionText.
type SurveyQuestion struct {
	ID           string       `json:"id,omitempty"`
	SortOrder    int          `json:"sort_order"`
	QuestionType QuestionType `json:"question_type"`
	QuestionText string       `json:"question_text"`
	Options      []string     `json:"options"`
}

func (question SurveyQuestion) equal(other SurveyQuestion) bool {
	if question.ID != other.ID ||
		question.SortOrder != other.SortOrder ||
		question.QuestionType != other.QuestionType ||
		question.QuestionText != other.QuestionText {
		return false
	}
	return slices.Equal(question.Options, other.Options)
}

// TouchpointConfig is the configuration of one business's public page.
type TouchpointConfig struct {
	Slug                string           `json:"slug"`
	TouchpointID        string           `json:"touchpoint_id"`
	BusinessName        string           `json:"business_name"`
	Enabled             bool             `json:"enabled"`
	PrimaryMode         PrimaryMode      `json:"primary_mode"`
	RedirectMode        RedirectMode     `json:"redirect_mode"`
	GoogleReviewEnabled bool             `json:"google_review_enabled"`
	GoogleReviewURL     string           `json:"google_review_url"`
	PromptTitle         string           `json:"prompt_title"`
	PromptSubtitle      string           `json:"prompt_subtitle"`
	AIEnabled           bool             `json:"ai_enabled"`
	BrandName           string           `json:"brand_name"`
	BrandLogoURL        string           `json:"brand_logo_url"`
	BrandAccent         string           `json:"brand_accent"`
	ThemeBgColor        string           `json:"theme_bg_color"`
	ThemeShadeColor     string           `json:"theme_shade_color"`
	OfferEnabled        bool             `json:"loyalty_offer_enabled"`
	OfferTitle          string           `json:"loyalty_offer_title"`
	OfferDescription    string           `json:"loyalty_offer_description"`
	OfferTerms          string           `json:"loyalty_offer_terms"`
	SurveyQuestions     []SurveyQuestion `json:"survey_questions"`
}

// Normalized fills in the default modes.
func (config TouchpointConfig) Normalized() TouchpointConfig {
	config.PrimaryMode = ParsePrimaryMode(string(config.PrimaryMode))
	config.RedirectMode = ParseRedirectMode(string(config.RedirectMode))
	return config
}

// Clone returns a copy that shares no slices with the receiver.
func (config TouchpointConfig) Clone() TouchpointConfig {
	if config.SurveyQuestions == nil {
		return config
	}
	questions := make([]SurveyQuestion, len(config.SurveyQuestions))
	for index, question := range config.SurveyQuestions {
		question.Options = slices.Clone(question.Options)
		questions[index] = question
	}
	config.SurveyQuestions = questions
	return config
}

// Equal compares two configurations field by field. A nil question list equals an empty one,
// and likewise for options.
func (config TouchpointConfig) Equal(other TouchpointConfig) bool {
	if config.Slug != other.Slug ||
		config.TouchpointID != other.TouchpointID ||
		config.BusinessName != other.BusinessName ||
		config.Enabled != other.Enabled ||
		config.PrimaryMode != other.PrimaryMode ||
		config.RedirectMode != other.RedirectMode ||
		config.GoogleReviewEnabled != other.GoogleReviewEnabled ||
		config.GoogleReviewURL != other.GoogleReviewURL ||
		config.PromptTitle != other.PromptTitle ||
		config.PromptSubtitle != other.PromptSubtitle ||
		config.AIEnabled != other.AIEnabled ||
		config.BrandName != other.BrandName ||
		config.BrandLogoURL != other.BrandLogoURL ||
		config.BrandAccent != other.BrandAccent ||
		config.ThemeBgColor != other.ThemeBgColor ||
		config.ThemeShadeColor != other.ThemeShadeColor ||
		config.OfferEnabled != other.OfferEnabled ||
		config.OfferTitle != other.OfferTitle ||
		config.OfferDescription != other.OfferDescription ||
		config.OfferTerms != other.OfferTerms {
		return false
	}
	if len(config.SurveyQuestions) != len(other.SurveyQuestions) {
		return false
	}
	for index := range config.SurveyQuestions {
		if !config.SurveyQuestions[index].equal(other.SurveyQuestions[index]) {
			return false
		}
	}
	return true
}

// SortedQuestions returns the questions ordered by SortOrder, keeping input order for ties.
func SortedQuestions(questions []SurveyQuestion) []SurveyQuestion {
	sorted := slices.Clone(questions)
	sort.SliceStable(sorted, func(left int, right int) bool {
		return sorted[left].SortOrder < sorted[right].SortOrder
	})
	return sorted
}
