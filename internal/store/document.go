package store

import (
	"encoding/json"
	"fmt"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

// touchpointDocument mirrors the column names used by the database view and procedures.
type touchpointDocument struct {
	Slug                    string                 `json:"slug"`
	TouchpointID            string                 `json:"touchpoint_id"`
	BusinessName            string                 `json:"business_name"`
	Enabled                 bool                   `json:"enabled"`
	PrimaryMode             string                 `json:"primary_mode"`
	RedirectMode            string                 `json:"redirect_mode"`
	GoogleReviewEnabled     bool                   `json:"google_review_enabled"`
	GoogleReviewURL         string                 `json:"google_review_url"`
	PromptTitle             string                 `json:"prompt_title"`
	PromptSubtitle          string                 `json:"prompt_subtitle"`
	AIEnabled               bool                   `json:"ai_enabled"`
	BrandName               string                 `json:"brand_name"`
	BrandLogoURL            string                 `json:"brand_logo_url"`
	BrandAccent             string                 `json:"brand_accent"`
	ThemeBgColor            string                 `json:"theme_bg_color"`
	ThemeShadeColor         string                 `json:"theme_shade_color"`
	LoyaltyOfferEnabled     bool                   `json:"loyalty_offer_enabled"`
	LoyaltyOfferTitle       string                 `json:"loyalty_offer_title"`
	LoyaltyOfferDescription string                 `json:"loyalty_offer_description"`
	LoyaltyOfferTerms       string                 `json:"loyalty_offer_terms"`
	SurveyQuestions         []model.SurveyQuestion `json:"survey_questions"`
}

func (document touchpointDocument) config() model.TouchpointConfig {
	return model.TouchpointConfig{
		Slug:                document.Slug,
		TouchpointID:        document.TouchpointID,
		BusinessName:        document.BusinessName,
		Enabled:             document.Enabled,
		PrimaryMode:         model.ParsePrimaryMode(document.PrimaryMode),
		RedirectMode:        model.ParseRedirectMode(document.RedirectMode),
		GoogleReviewEnabled: document.GoogleReviewEnabled,
		GoogleReviewURL:     document.GoogleReviewURL,
		PromptTitle:         document.PromptTitle,
		PromptSubtitle:      document.PromptSubtitle,
		AIEnabled:           document.AIEnabled,
		BrandName:           document.BrandName,
		BrandLogoURL:        document.BrandLogoURL,
		BrandAccent:         document.BrandAccent,
		ThemeBgColor:        document.ThemeBgColor,
		ThemeShadeColor:     document.ThemeShadeColor,
		OfferEnabled:        document.LoyaltyOfferEnabled,
		OfferTitle:          document.LoyaltyOfferTitle,
		OfferDescription:    document.LoyaltyOfferDescription,
		OfferTerms:          document.LoyaltyOfferTerms,
		SurveyQuestions:     model.SortedQuestions(document.SurveyQuestions),
	}
}

type procedureOutcome struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type adminConfigDocument struct {
	procedureOutcome
	touchpointDocument
}

// touchpointRowDocument is a touchpoints table row as returned by the update procedure.
// The row carries its own id instead of touchpoint_id and has no slug or business name.
type touchpointRowDocument struct {
	ID string `json:"id"`
	touchpointDocument
}

func (document touchpointRowDocument) config(slug string) model.TouchpointConfig {
	config := document.touchpointDocument.config()
	if config.TouchpointID == "" {
		config.TouchpointID = document.ID
	}
	if config.Slug == "" {
		config.Slug = slug
	}
	return config
}

type updateDocument struct {
	procedureOutcome
	Touchpoint touchpointRowDocument `json:"touchpoint"`
}

// decodeSurveyQuestions accepts anything that serializes to a JSON array of questions,
// such as a decoded request body or a typed slice. Missing sort orders follow list position.
func decodeSurveyQuestions(value any) ([]model.SurveyQuestion, error) {
	encoded, encodeErr := json.Marshal(value)
	if encodeErr != nil {
		return nil, fmt.Errorf("encode survey_questions: %w", encodeErr)
	}
	var rawQuestions []map[string]json.RawMessage
	if decodeErr := json.Unmarshal(encoded, &rawQuestions); decodeErr != nil {
		return nil, fmt.Errorf("decode survey_questions: %w", decodeErr)
	}
	var questions []model.SurveyQuestion
	if decodeErr := json.Unmarshal(encoded, &questions); decodeErr != nil {
		return nil, fmt.Errorf("decode survey_questions: %w", decodeErr)
	}
	for index := range questions {
		if _, hasSortOrder := rawQuestions[index]["sort_order"]; !hasSortOrder {
			questions[index].SortOrder = index
		}
		questions[index].QuestionType = model.ParseQuestionType(string(questions[index].QuestionType))
		if questions[index].Options == nil {
			questions[index].Options = []string{}
		}
	}
	return questions, nil
}
