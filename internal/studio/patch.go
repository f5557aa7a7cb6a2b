package studio

import "github.com/MarkoPoloResearchLab/ezinfo/internal/model"

// Patch lists the fields the studio edits, under the column names the store expects.
// Brand name, logo and accent are not edited here and are left out.
func Patch(draft model.TouchpointConfig) map[string]any {
	questions := draft.SurveyQuestions
	if questions == nil {
		questions = []model.SurveyQuestion{}
	}
	return map[string]any{
		"enabled":                   draft.Enabled,
		"primary_mode":              string(draft.PrimaryMode),
		"redirect_mode":             string(draft.RedirectMode),
		"google_review_enabled":     draft.GoogleReviewEnabled,
		"google_review_url":         draft.GoogleReviewURL,
		"prompt_title":              draft.PromptTitle,
		"prompt_subtitle":           draft.PromptSubtitle,
		"ai_enabled":                draft.AIEnabled,
		"theme_bg_color":            draft.ThemeBgColor,
		"theme_shade_color":         draft.ThemeShadeColor,
		"loyalty_offer_enabled":     draft.OfferEnabled,
		"loyalty_offer_title":       draft.OfferTitle,
		"loyalty_offer_description": draft.OfferDescription,
		"loyalty_offer_terms":       draft.OfferTerms,
		"survey_questions":          questions,
	}
}
