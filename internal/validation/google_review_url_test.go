package validation_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/validation"
)

func TestValidateGoogleReviewURL(testingT *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedValid bool
		expectedError string
	}{
		{name: "g.page link", input: "https://g.page/r/abc123", expectedValid: true},
		{name: "g.page link with whitespace", input: "  https://g.page/r/CAIQA  ", expectedValid: true},
		{name: "short maps link", input: "https://maps.app.goo.gl/xyz", expectedValid: true},
		{name: "google maps place", input: "https://www.google.com/maps/place/Cafe", expectedValid: true},
		{name: "google maps without www", input: "https://google.co.uk/maps?cid=1", expectedValid: true},
		{name: "maps subdomain", input: "https://maps.google.com/?cid=42", expectedValid: true},
		{name: "write review link", input: "https://search.google.com/local/writereview?placeid=abc", expectedValid: true},
		{name: "mixed case host", input: "https://G.PAGE/r/abc", expectedValid: true},
		{name: "empty", input: "", expectedError: validation.GoogleReviewURLRequiredMessage},
		{name: "blank", input: "   ", expectedError: validation.GoogleReviewURLRequiredMessage},
		{name: "plain http", input: "http://g.page/r/abc", expectedError: validation.GoogleReviewURLSchemeMessage},
		{name: "no scheme", input: "g.page/r/abc", expectedError: validation.GoogleReviewURLSchemeMessage},
		{name: "uppercase scheme", input: "HTTPS://g.page/r/abc", expectedError: validation.GoogleReviewURLSchemeMessage},
		{name: "scheme only", input: "https://", expectedError: validation.GoogleReviewURLMalformedMessage},
		{name: "other domain", input: "https://example.com", expectedError: validation.GoogleReviewURLDomainMessage},
		{name: "google without maps path", input: "https://www.google.com/search?q=cafe", expectedError: validation.GoogleReviewURLDomainMessage},
		{name: "maps word prefix", input: "https://www.google.com/mapsfake", expectedError: validation.GoogleReviewURLDomainMessage},
		{name: "lookalike host", input: "https://g.page.evil.example/r/abc", expectedError: validation.GoogleReviewURLDomainMessage},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			result := validation.ValidateGoogleReviewURL(testCase.input)
			require.Equal(testingT, testCase.expectedValid, result.Valid)
			require.Equal(testingT, testCase.expectedError, result.Error)
			require.Equal(testingT, testCase.expectedValid, validation.IsGoogleReviewURL(testCase.input))
		})
	}
}

func TestValidateGoogleReviewURLRejectsEveryNonSecureScheme(testingT *testing.T) {
	inputs := []string{
		"http://maps.app.goo.gl/xyz",
		"ftp://g.page/r/abc",
		"javascript:alert(1)",
		"//g.page/r/abc",
	}
	for _, input := range inputs {
		result := validation.ValidateGoogleReviewURL(input)
		require.False(testingT, result.Valid, input)
		require.Equal(testingT, validation.GoogleReviewURLSchemeMessage, result.Error, input)
	}
}
