package model

import (
	"time"

	"gorm.io/datatypes"
)

// Business owns a touchpoint. Email is stored lower-cased and identifies the owner.
type Business struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Slug         string    `gorm:"not null;size:120;uniqueIndex"`
	BusinessName string    `gorm:"not null;size:200"`
	OwnerName    string    `gorm:"size:200"`
	Email        string    `gorm:"not null;size:320;uniqueIndex"`
	Phone        string    `gorm:"size:64"`
	Notes        string    `gorm:"size:2000"`
	Source       string    `gorm:"size:64"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Touchpoint holds the stored page configuration of a business.
type Touchpoint struct {
	ID                      string    `gorm:"primaryKey;size:36"`
	BusinessID              string    `gorm:"not null;size:36;uniqueIndex"`
	Enabled                 bool      `gorm:"not null"`
	PrimaryMode             string    `gorm:"not null;size:32"`
	RedirectMode            string    `gorm:"not null;size:16"`
	GoogleReviewEnabled     bool      `gorm:"not null"`
	GoogleReviewURL         string    `gorm:"size:500"`
	PromptTitle             string    `gorm:"size:200"`
	PromptSubtitle          string    `gorm:"size:500"`
	AIEnabled               bool      `gorm:"column:ai_enabled;not null"`
	BrandName               string    `gorm:"size:200"`
	BrandLogoURL            string    `gorm:"size:500"`
	BrandAccent             string    `gorm:"size:16"`
	ThemeBgColor            string    `gorm:"size:16"`
	ThemeShadeColor         string    `gorm:"size:16"`
	LoyaltyOfferEnabled     bool      `gorm:"not null"`
	LoyaltyOfferTitle       string    `gorm:"size:200"`
	LoyaltyOfferDescription string    `gorm:"size:1000"`
	LoyaltyOfferTerms       string    `gorm:"size:1000"`
	CreatedAt               time.Time `gorm:"autoCreateTime"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime"`
}

// SurveyQuestionRecord is the stored form of a SurveyQuestion.
type SurveyQuestionRecord struct {
	ID           string         `gorm:"primaryKey;size:36"`
	TouchpointID string         `gorm:"not null;size:36;index"`
	SortOrder    int            `gorm:"not null"`
	QuestionType string         `gorm:"not null;size:32"`
	QuestionText string         `gorm:"not null;size:500"`
	Options      datatypes.JSON `gorm:"type:json"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
}

func (SurveyQuestionRecord) TableName() string {
	return "survey_questions"
}

// TouchpointConfigFor assembles the public configuration from stored rows.
func TouchpointConfigFor(business Business, touchpoint Touchpoint, questions []SurveyQuestion) TouchpointConfig {
	return TouchpointConfig{
		Slug:                business.Slug,
		TouchpointID:        touchpoint.ID,
		BusinessName:        business.BusinessName,
		Enabled:             touchpoint.Enabled,
		PrimaryMode:         ParsePrimaryMode(touchpoint.PrimaryMode),
		RedirectMode:        ParseRedirectMode(touchpoint.RedirectMode),
		GoogleReviewEnabled: touchpoint.GoogleReviewEnabled,
		GoogleReviewURL:     touchpoint.GoogleReviewURL,
		PromptTitle:         touchpoint.PromptTitle,
		PromptSubtitle:      touchpoint.PromptSubtitle,
		AIEnabled:           touchpoint.AIEnabled,
		BrandName:           touchpoint.BrandName,
		BrandLogoURL:        touchpoint.BrandLogoURL,
		BrandAccent:         touchpoint.BrandAccent,
		ThemeBgColor:        touchpoint.ThemeBgColor,
		ThemeShadeColor:     touchpoint.ThemeShadeColor,
		OfferEnabled:        touchpoint.LoyaltyOfferEnabled,
		OfferTitle:          touchpoint.LoyaltyOfferTitle,
		OfferDescription:    touchpoint.LoyaltyOfferDescription,
		OfferTerms:          touchpoint.LoyaltyOfferTerms,
		SurveyQuestions:     questions,
	}
}
