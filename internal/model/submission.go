package model

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SubmissionTypeSurvey    SubmissionType = "survey"
	SubmissionTypeOfferLead SubmissionType = "offer_lead"

	leadEmailMaxLength = 320
)

var (
	ErrInvalidLeadTouchpointID       = errors.New("invalid_lead_touchpoint_id")
	ErrMissingLeadEmail              = errors.New("missing_lead_email")
	ErrInvalidLeadEmail              = errors.New("invalid_lead_email")
	ErrInvalidSubmissionTouchpointID = errors.New("invalid_submission_touchpoint_id")
	ErrMissingSubmissionAnswers      = errors.New("missing_submission_answers")
)

// SubmissionType distinguishes the two record kinds merged into the admin submissions view.
type SubmissionType string

// LoyaltyLead records a visitor claiming the touchpoint offer.
type LoyaltyLead struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	TouchpointID string    `gorm:"not null;size:36;index" json:"touchpoint_id"`
	BusinessID   string    `gorm:"not null;size:36;index" json:"business_id"`
	Email        string    `gorm:"not null;size:320" json:"email"`
	ClaimedAt    time.Time `gorm:"not null" json:"claimed_at"`
}

// LoyaltyLeadInput holds the raw values used to construct a LoyaltyLead.
type LoyaltyLeadInput struct {
	TouchpointID string
	BusinessID   string
	Email        string
}

// NewLoyaltyLead constructs a LoyaltyLead with a validated, normalized email.
func NewLoyaltyLead(input LoyaltyLeadInput) (LoyaltyLead, error) {
	touchpointID := strings.TrimSpace(input.TouchpointID)
	if touchpointID == "" {
		return LoyaltyLead{}, ErrInvalidLeadTouchpointID
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return LoyaltyLead{}, ErrMissingLeadEmail
	}
	if len(email) > leadEmailMaxLength {
		return LoyaltyLead{}, fmt.Errorf("%w: too long", ErrInvalidLeadEmail)
	}
	if _, parseErr := mail.ParseAddress(email); parseErr != nil {
		return LoyaltyLead{}, fmt.Errorf("%w: %v", ErrInvalidLeadEmail, parseErr)
	}

	return LoyaltyLead{
		ID:           uuid.NewString(),
		TouchpointID: touchpointID,
		BusinessID:   strings.TrimSpace(input.BusinessID),
		Email:        email,
		ClaimedAt:    time.Now().UTC(),
	}, nil
}

// SurveySubmission records one completed survey. Email is optional.
type SurveySubmission struct {
	ID           string            `gorm:"primaryKey;size:36"`
	TouchpointID string            `gorm:"not null;size:36;index"`
	BusinessID   string            `gorm:"not null;size:36;index"`
	Email        *string           `gorm:"size:320"`
	Answers      datatypes.JSONMap `gorm:"type:json"`
	SubmittedAt  time.Time         `gorm:"not null;index"`
}

// SurveySubmissionInput holds the raw values used to construct a SurveySubmission.
type SurveySubmissionInput struct {
	TouchpointID string
	BusinessID   string
	Email        string
	Answers      map[string]string
}

// NewSurveySubmission constructs a SurveySubmission. A nil answers map is rejected; an empty one is not.
func NewSurveySubmission(input SurveySubmissionInput) (SurveySubmission, error) {
	touchpointID := strings.TrimSpace(input.TouchpointID)
	if touchpointID == "" {
		return SurveySubmission{}, ErrInvalidSubmissionTouchpointID
	}
	if input.Answers == nil {
		return SurveySubmission{}, ErrMissingSubmissionAnswers
	}

	answers := make(datatypes.JSONMap, len(input.Answers))
	for question, answer := range input.Answers {
		answers[question] = answer
	}

	var email *string
	if trimmedEmail := strings.TrimSpace(input.Email); trimmedEmail != "" {
		email = &trimmedEmail
	}

	return SurveySubmission{
		ID:           uuid.NewString(),
		TouchpointID: touchpointID,
		BusinessID:   strings.TrimSpace(input.BusinessID),
		Email:        email,
		Answers:      answers,
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

// AnswerStrings converts stored answers to strings; null values become empty strings.
func (submission SurveySubmission) AnswerStrings() map[string]string {
	return StringifyAnswers(submission.Answers)
}

// StringifyAnswers flattens decoded JSON answers into strings.
func StringifyAnswers(answers map[string]any) map[string]string {
	converted := make(map[string]string, len(answers))
	for question, answer := range answers {
		switch typed := answer.(type) {
		case nil:
			converted[question] = ""
		case string:
			converted[question] = typed
		default:
			converted[question] = fmt.Sprint(typed)
		}
	}
	return converted
}

// Submission is the admin view over survey submissions and offer leads.
type Submission struct {
	ID        string            `json:"id"`
	Type      SubmissionType    `json:"type"`
	Email     string            `json:"email"`
	Timestamp time.Time         `json:"timestamp"`
	Answers   map[string]string `json:"answers"`
}

// MergeSubmissions combines both record kinds, newest first.
func MergeSubmissions(surveys []SurveySubmission, leads []LoyaltyLead) []Submission {
	merged := make([]Submission, 0, len(surveys)+len(leads))
	for _, survey := range surveys {
		email := ""
		if survey.Email != nil {
			email = *survey.Email
		}
		merged = append(merged, Submission{
			ID:        survey.ID,
			Type:      SubmissionTypeSurvey,
			Email:     email,
			Timestamp: survey.SubmittedAt,
			Answers:   survey.AnswerStrings(),
		})
	}
	for _, lead := range leads {
		merged = append(merged, Submission{
			ID:        lead.ID,
			Type:      SubmissionTypeOfferLead,
			Email:     lead.Email,
			Timestamp: lead.ClaimedAt,
			Answers:   map[string]string{},
		})
	}
	sort.SliceStable(merged, func(left int, right int) bool {
		return merged[left].Timestamp.After(merged[right].Timestamp)
	})
	return merged
}
