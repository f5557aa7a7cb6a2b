// Package touchpoint decides what a visitor sees for a touchpoint configuration.
//
// Resolve maps a configuration to exactly one View variant. Renderers switch over the
// variants and treat anything else as an error.
package touchpoint

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/validation"
)

// Surface tells whether a view is rendered for visitors or as an owner preview.
type Surface string

const (
	SurfacePublic  Surface = "public"
	SurfacePreview Surface = "preview"
)

const (
	DefaultAccentColor  = "#f15a2d"
	DirectRedirectDelay = 800 * time.Millisecond

	ProductName        = "EZinfo"
	DefaultOfferTitle  = "Special Offer"
	ClaimedOfferTitle  = "Offer Unlocked!"
	DefaultSurveyTitle = "Survey"

	NotFoundTitle       = "Page Not Found"
	NotFoundMessage     = "This EZinfo page doesn't exist or has been removed. If you scanned a card, the business may not have set up their page yet."
	DisabledTitle       = "This Page Is Not Active"
	DisabledMessage     = "This page is currently disabled by the owner."
	disabledNamedFormat = "%s has temporarily paused this page."
	ReviewButtonLabel   = "Leave a Google Review"

	RedirectingTitle    = "Redirecting to Google Reviews…"
	RedirectingSubtitle = "You'll be taken there in a moment."
	EmptySurveyMessage  = "This survey hasn't been configured yet. Please check back later."

	DefaultPromptTitle    = "Your prompt title"
	DefaultPromptSubtitle = "Your prompt subtitle"

	secureURLPrefix = "https://"
)

var ErrUnknownView = errors.New("unknown_touchpoint_view")

// Theme holds sanitized colors. Background and Shade are empty when unset or invalid.
type Theme struct {
	Accent     string
	Background string
	Shade      string
}

// ThemeFor picks the accent from the shade color, then the brand accent, then the default.
func ThemeFor(config model.TouchpointConfig) Theme {
	shade := validation.SanitizeHex(config.ThemeShadeColor, "")
	return Theme{
		Accent:     validation.SanitizeHex(config.ThemeShadeColor, validation.SanitizeHex(config.BrandAccent, DefaultAccentColor)),
		Background: validation.SanitizeHex(config.ThemeBgColor, ""),
		Shade:      shade,
	}
}

// Offer is the loyalty offer card.
type Offer struct {
	Title       string
	Description string
	Terms       string
}

// OfferFor returns the offer card when the offer is enabled.
func OfferFor(config model.TouchpointConfig) (Offer, bool) {
	if !config.OfferEnabled {
		return Offer{}, false
	}
	title := strings.TrimSpace(config.OfferTitle)
	if title == "" {
		title = DefaultOfferTitle
	}
	return Offer{
		Title:       title,
		Description: strings.TrimSpace(config.OfferDescription),
		Terms:       strings.TrimSpace(config.OfferTerms),
	}, true
}

// View is one of NotFoundView, DisabledView, GoogleDirectView, GoogleAssistView or SurveyView.
type View interface {
	touchpointView()
}

type NotFoundView struct{}

type DisabledView struct {
	BusinessName     string
	Message          string
	Theme            Theme
	ReviewURL        string
	ShowReviewButton bool
}

// GoogleDirectView sends the visitor straight to Google. AutoRedirect is armed only for a valid
// review URL on the public surface; otherwise the redirect screen stays up with a manual button.
type GoogleDirectView struct {
	Config        model.TouchpointConfig
	Theme         Theme
	Offer         *Offer
	ReviewURL     string
	AutoRedirect  bool
	RedirectDelay time.Duration
}

// GoogleAssistView lets the visitor draft, improve and copy a review before opening Google.
type GoogleAssistView struct {
	Config         model.TouchpointConfig
	Theme          Theme
	Offer          *Offer
	PromptTitle    string
	PromptSubtitle string
	AIEnabled      bool
	ReviewURL      string
}

// SurveyView asks the configured questions. Offer is only shown once the survey is completed.
type SurveyView struct {
	Config    model.TouchpointConfig
	Theme     Theme
	Offer     *Offer
	Title     string
	Questions []model.SurveyQuestion
}

func (NotFoundView) touchpointView()     {}
func (DisabledView) touchpointView()     {}
func (GoogleDirectView) touchpointView() {}
func (GoogleAssistView) touchpointView() {}
func (SurveyView) touchpointView()       {}

// Resolve selects the view for config. A nil config resolves to NotFoundView.
func Resolve(config *model.TouchpointConfig, surface Surface) View {
	if config == nil {
		return NotFoundView{}
	}
	normalized := config.Normalized()
	theme := ThemeFor(normalized)

	if !normalized.Enabled {
		message := DisabledMessage
		if businessName := strings.TrimSpace(normalized.BusinessName); businessName != "" {
			message = fmt.Sprintf(disabledNamedFormat, businessName)
		}
		return DisabledView{
			BusinessName:     normalized.BusinessName,
			Message:          message,
			Theme:            theme,
			ReviewURL:        normalized.GoogleReviewURL,
			ShowReviewButton: strings.HasPrefix(normalized.GoogleReviewURL, secureURLPrefix),
		}
	}

	var offer *Offer
	if resolvedOffer, offerEnabled := OfferFor(normalized); offerEnabled {
		offer = &resolvedOffer
	}

	if normalized.PrimaryMode == model.PrimaryModeSurvey {
		title := strings.TrimSpace(normalized.PromptTitle)
		if title == "" {
			title = DefaultSurveyTitle
		}
		return SurveyView{
			Config:    normalized,
			Theme:     theme,
			Offer:     offer,
			Title:     title,
			Questions: model.SortedQuestions(normalized.SurveyQuestions),
		}
	}

	if normalized.RedirectMode == model.RedirectModeDirect {
		armed := surface == SurfacePublic &&
			normalized.GoogleReviewURL != "" &&
			validation.ValidateGoogleReviewURL(normalized.GoogleReviewURL).Valid
		return GoogleDirectView{
			Config:        normalized,
			Theme:         theme,
			Offer:         offer,
			ReviewURL:     normalized.GoogleReviewURL,
			AutoRedirect:  armed,
			RedirectDelay: DirectRedirectDelay,
		}
	}

	promptTitle := strings.TrimSpace(normalized.PromptTitle)
	if promptTitle == "" {
		promptTitle = DefaultPromptTitle
	}
	promptSubtitle := strings.TrimSpace(normalized.PromptSubtitle)
	if promptSubtitle == "" {
		promptSubtitle = DefaultPromptSubtitle
	}
	return GoogleAssistView{
		Config:         normalized,
		Theme:          theme,
		Offer:          offer,
		PromptTitle:    promptTitle,
		PromptSubtitle: promptSubtitle,
		AIEnabled:      normalized.AIEnabled,
		ReviewURL:      normalized.GoogleReviewURL,
	}
}

// PageTitle returns the document title for a view.
func PageTitle(view View) (string, error) {
	switch typed := view.(type) {
	case NotFoundView:
		return ProductName, nil
	case DisabledView:
		return titleFor(typed.BusinessName), nil
	case GoogleDirectView:
		return titleFor(typed.Config.BusinessName), nil
	case GoogleAssistView:
		return titleFor(typed.Config.BusinessName), nil
	case SurveyView:
		return titleFor(typed.Config.BusinessName), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownView, view)
	}
}

// RenderEvents lists the events recorded when a view is rendered on surface. Previews record nothing.
func RenderEvents(view View, surface Surface) ([]model.EventType, error) {
	if surface != SurfacePublic {
		return nil, nil
	}
	switch typed := view.(type) {
	case NotFoundView, DisabledView:
		return nil, nil
	case GoogleDirectView:
		if typed.AutoRedirect {
			return []model.EventType{model.EventTypePageView, model.EventTypeGoogleClick}, nil
		}
		return []model.EventType{model.EventTypePageView}, nil
	case GoogleAssistView, SurveyView:
		return []model.EventType{model.EventTypePageView}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownView, view)
	}
}

func titleFor(businessName string) string {
	trimmed := strings.TrimSpace(businessName)
	if trimmed == "" {
		return ProductName
	}
	return trimmed + " — " + ProductName
}
