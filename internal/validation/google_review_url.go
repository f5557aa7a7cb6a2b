// Package validation holds the field rules shared by the API handlers, the page renderer and the admin client.
package validation

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	GoogleReviewURLRequiredMessage  = "Google Review link is required."
	GoogleReviewURLSchemeMessage    = "Link must start with https:// for security."
	GoogleReviewURLMalformedMessage = "This doesn't look like a valid URL."
	GoogleReviewURLDomainMessage    = "Please use a Google Review link (g.page, google.com/maps, or maps.app.goo.gl)."

	secureSchemePrefix = "https://"
)

var googleReviewURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^https://g\.page/`),
	regexp.MustCompile(`(?i)^https://(www\.)?google\.[a-z.]+/maps\b`),
	regexp.MustCompile(`(?i)^https://maps\.google\.[a-z.]+/`),
	regexp.MustCompile(`(?i)^https://search\.google\.[a-z.]+/local/writereview`),
	regexp.MustCompile(`(?i)^https://maps\.app\.goo\.gl/`),
}

// Result reports the outcome of a validation. Error is empty when Valid is true.
type Result struct {
	Valid bool
	Error string
}

func invalid(message string) Result {
	return Result{Valid: false, Error: message}
}

// ValidateGoogleReviewURL accepts only https links that point at one of the known Google review hosts.
func ValidateGoogleReviewURL(rawURL string) Result {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return invalid(GoogleReviewURLRequiredMessage)
	}

	if !strings.HasPrefix(trimmed, secureSchemePrefix) {
		return invalid(GoogleReviewURLSchemeMessage)
	}

	parsedURL, parseErr := url.Parse(trimmed)
	if parseErr != nil || parsedURL.Host == "" {
		return invalid(GoogleReviewURLMalformedMessage)
	}

	for _, pattern := range googleReviewURLPatterns {
		if pattern.MatchString(trimmed) {
			return Result{Valid: true}
		}
	}

	return invalid(GoogleReviewURLDomainMessage)
}

// IsGoogleReviewURL is a convenience wrapper for callers that only need the verdict.
func IsGoogleReviewURL(rawURL string) bool {
	return ValidateGoogleReviewURL(rawURL).Valid
}
