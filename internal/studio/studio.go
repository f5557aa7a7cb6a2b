// Package studio holds the owner's editing session: a saved configuration, a draft,
// and the save status shown next to the Save action.
package studio

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

// Status is the outcome of the last save, shown until it expires.
type Status string

const (
	StatusIdle       Status = ""
	StatusSaved      Status = "Saved"
	StatusSaveFailed Status = "Save failed"

	UnsavedChangesLabel = "Unsaved changes"
	StatusDisplayTime   = 2500 * time.Millisecond
)

var (
	ErrNothingToSave = errors.New("studio_nothing_to_save")
	ErrSaveInFlight  = errors.New("studio_save_in_flight")
)

// Saver persists a patch for the owner identified by email.
type Saver interface {
	UpdateTouchpoint(ctx context.Context, slug string, email string, patch map[string]any) (model.TouchpointConfig, error)
}

// Studio is not safe for concurrent use.
type Studio struct {
	email       string
	saved       model.TouchpointConfig
	draft       model.TouchpointConfig
	saving      bool
	status      Status
	statusSetAt time.Time
	now         func() time.Time
}

// New starts a session where saved and draft are both copies of config.
func New(config model.TouchpointConfig, email string) *Studio {
	return NewWithClock(config, email, time.Now)
}

// NewWithClock is New with a custom time source for status expiry.
func NewWithClock(config model.TouchpointConfig, email string, now func() time.Time) *Studio {
	normalized := config.Normalized()
	return &Studio{
		email: email,
		saved: normalized.Clone(),
		draft: normalized.Clone(),
		now:   now,
	}
}

// Draft returns a copy of the draft.
func (studio *Studio) Draft() model.TouchpointConfig {
	return studio.draft.Clone()
}

// Saved returns a copy of the last saved configuration.
func (studio *Studio) Saved() model.TouchpointConfig {
	return studio.saved.Clone()
}

// Update applies mutate to the draft only.
func (studio *Studio) Update(mutate func(draft *model.TouchpointConfig)) {
	mutate(&studio.draft)
}

// UpdateQuestions replaces the draft questions with the result of edit.
func (studio *Studio) UpdateQuestions(edit func([]model.SurveyQuestion) ([]model.SurveyQuestion, error)) error {
	questions, editErr := edit(cloneQuestions(studio.draft.SurveyQuestions))
	if editErr != nil {
		return editErr
	}
	studio.draft.SurveyQuestions = questions
	return nil
}

// Discard resets the draft to the saved configuration.
func (studio *Studio) Discard() {
	studio.draft = studio.saved.Clone()
}

func (studio *Studio) HasChanges() bool {
	return !studio.draft.Equal(studio.saved)
}

func (studio *Studio) CanSave() bool {
	return !studio.saving && studio.HasChanges()
}

// Save sends the draft. On success the draft becomes the saved configuration; on failure
// the draft is kept so the owner can retry.
func (studio *Studio) Save(ctx context.Context, saver Saver) error {
	if studio.saving {
		return ErrSaveInFlight
	}
	if !studio.HasChanges() {
		return ErrNothingToSave
	}
	studio.saving = true
	studio.setStatus(StatusIdle)
	defer func() { studio.saving = false }()

	snapshot := studio.draft.Clone()
	if _, saveErr := saver.UpdateTouchpoint(ctx, snapshot.Slug, studio.email, Patch(snapshot)); saveErr != nil {
		studio.setStatus(StatusSaveFailed)
		return saveErr
	}
	studio.saved = snapshot
	studio.setStatus(StatusSaved)
	return nil
}

// Status returns the save outcome until StatusDisplayTime has passed.
func (studio *Studio) Status() Status {
	if studio.status == StatusIdle {
		return StatusIdle
	}
	if studio.now().Sub(studio.statusSetAt) >= StatusDisplayTime {
		studio.status = StatusIdle
	}
	return studio.status
}

// Indicator is the label next to the Save action.
func (studio *Studio) Indicator() string {
	if status := studio.Status(); status != StatusIdle {
		return string(status)
	}
	if studio.HasChanges() {
		return UnsavedChangesLabel
	}
	return ""
}

func (studio *Studio) setStatus(status Status) {
	studio.status = status
	studio.statusSetAt = studio.now()
}
