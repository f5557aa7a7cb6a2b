package httpapi

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizedPatchTextKeys = []string{
	"prompt_title",
	"prompt_subtitle",
	"brand_name",
	"loyalty_offer_title",
	"loyalty_offer_description",
	"loyalty_offer_terms",
}

// patchSanitizer strips markup from the free-text fields of an update patch.
type patchSanitizer struct {
	policy *bluemonday.Policy
}

func newPatchSanitizer() patchSanitizer {
	return patchSanitizer{policy: bluemonday.StrictPolicy()}
}

func (sanitizer patchSanitizer) text(value string) string {
	return html.UnescapeString(sanitizer.policy.Sanitize(value))
}

// Sanitize returns a copy of patch. Values of unexpected types are left for the store to reject.
func (sanitizer patchSanitizer) Sanitize(patch map[string]any) map[string]any {
	sanitized := make(map[string]any, len(patch))
	for key, value := range patch {
		sanitized[key] = value
	}
	for _, key := range sanitizedPatchTextKeys {
		if text, isText := sanitized[key].(string); isText {
			sanitized[key] = sanitizer.text(text)
		}
	}
	if questions, isList := sanitized[patchKeySurveyQuestions].([]any); isList {
		sanitized[patchKeySurveyQuestions] = sanitizer.questions(questions)
	}
	return sanitized
}

func (sanitizer patchSanitizer) questions(questions []any) []any {
	cleaned := make([]any, 0, len(questions))
	for _, rawQuestion := range questions {
		question, isObject := rawQuestion.(map[string]any)
		if !isObject {
			cleaned = append(cleaned, rawQuestion)
			continue
		}
		copied := make(map[string]any, len(question))
		for key, value := range question {
			copied[key] = value
		}
		if text, isText := copied["question_text"].(string); isText {
			copied["question_text"] = sanitizer.text(text)
		}
		if options, isList := copied["options"].([]any); isList {
			cleanedOptions := make([]any, 0, len(options))
			for _, option := range options {
				if text, isText := option.(string); isText {
					cleanedOptions = append(cleanedOptions, sanitizer.text(text))
					continue
				}
				cleanedOptions = append(cleanedOptions, option)
			}
			copied["options"] = cleanedOptions
		}
		cleaned = append(cleaned, copied)
	}
	return cleaned
}
