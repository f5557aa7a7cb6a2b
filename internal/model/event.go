package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType names a visitor interaction recorded against a touchpoint.
type EventType string

const (
	EventTypePageView    EventType = "page_view"
	EventTypeAIGenerate  EventType = "ai_generate"
	EventTypeCopyClick   EventType = "copy_click"
	EventTypeGoogleClick EventType = "google_click"

	// Offer claims and survey submissions are reported by the page but are not on the
	// logging allow-list, so the event endpoint rejects them.
	EventTypeOfferClaim   EventType = "offer_claim"
	EventTypeSurveySubmit EventType = "survey_submit"
)

var (
	ErrInvalidEventTouchpointID = errors.New("invalid_event_touchpoint_id")
	ErrInvalidEventType         = errors.New("invalid_event_type")
)

// LoggableEventTypes is the allow-list accepted by the event endpoint.
var LoggableEventTypes = []EventType{
	EventTypePageView,
	EventTypeAIGenerate,
	EventTypeCopyClick,
	EventTypeGoogleClick,
}

// IsLoggableEventType reports whether value is on the allow-list.
func IsLoggableEventType(value string) bool {
	for _, eventType := range LoggableEventTypes {
		if string(eventType) == value {
			return true
		}
	}
	return false
}

// LoggableEventTypeNames returns the allow-list as plain strings.
func LoggableEventTypeNames() []string {
	names := make([]string, 0, len(LoggableEventTypes))
	for _, eventType := range LoggableEventTypes {
		names = append(names, string(eventType))
	}
	return names
}

// TouchpointEvent is an append-only interaction record.
type TouchpointEvent struct {
	ID           string    `gorm:"primaryKey;size:36"`
	TouchpointID string    `gorm:"not null;size:36;index"`
	EventType    string    `gorm:"not null;size:32"`
	CreatedAt    time.Time `gorm:"not null;index"`
}

// TouchpointEventInput holds the raw values used to construct a TouchpointEvent.
type TouchpointEventInput struct {
	TouchpointID string
	EventType    string
	OccurredAt   time.Time
}

// NewTouchpointEvent validates the touchpoint id and the event type against the allow-list.
func NewTouchpointEvent(input TouchpointEventInput) (TouchpointEvent, error) {
	touchpointID := strings.TrimSpace(input.TouchpointID)
	if touchpointID == "" {
		return TouchpointEvent{}, ErrInvalidEventTouchpointID
	}
	eventType := strings.TrimSpace(input.EventType)
	if !IsLoggableEventType(eventType) {
		return TouchpointEvent{}, ErrInvalidEventType
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return TouchpointEvent{
		ID:           uuid.NewString(),
		TouchpointID: touchpointID,
		EventType:    eventType,
		CreatedAt:    occurredAt,
	}, nil
}
