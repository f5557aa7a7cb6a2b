package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/store"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/survey"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/touchpoint"
)

const testPagePath = "/ezinfo/" + testBusinessSlug

func surveyPatch() store.Patch {
	return store.Patch{
		"primary_mode": "SURVEY",
		"prompt_title": "Tell us more",
		"survey_questions": []any{
			map[string]any{"sort_order": 2, "question_type": "short_answer", "question_text": "Anything else?"},
			map[string]any{"sort_order": 1, "question_type": "multiple_choice", "question_text": "How was it?", "options": []any{"Great", "Okay"}},
		},
	}
}

func offerPatch() store.Patch {
	return store.Patch{
		"loyalty_offer_enabled":     true,
		"loyalty_offer_title":       "Free Whitening",
		"loyalty_offer_description": "Claim a free whitening session.",
		"loyalty_offer_terms":       "Valid for 30 days.",
	}
}

func mergePatches(patches ...store.Patch) store.Patch {
	merged := store.Patch{}
	for _, patch := range patches {
		for key, value := range patch {
			merged[key] = value
		}
	}
	return merged
}

func TestShowTouchpointUnknownSlug(testingT *testing.T) {
	harness := newTestHarness(testingT)

	recorder := harness.get("/ezinfo/no-such-business")
	require.Equal(testingT, http.StatusNotFound, recorder.Code)
	body := recorder.Body.String()
	require.Contains(testingT, body, `data-view="not_found"`)
	require.Contains(testingT, body, touchpoint.NotFoundTitle)
	require.Contains(testingT, body, "<title>EZinfo</title>")
	require.Empty(testingT, harness.events.Types())
}

func TestShowTouchpointDisabled(testingT *testing.T) {
	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, store.Patch{"enabled": false})

	recorder := harness.get(testPagePath)
	require.Equal(testingT, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(testingT, body, `id="ez-disabled"`)
	require.Contains(testingT, body, touchpoint.DisabledTitle)
	require.Contains(testingT, body, "Bright Smile Dental has temporarily paused this page.")
	require.Contains(testingT, body, `id="ez-review-button"`)
	require.Contains(testingT, body, `href="`+testReviewURL+`"`)
	require.Empty(testingT, harness.events.Types())
}

func TestShowTouchpointDirectRedirect(testingT *testing.T) {
	testCases := []struct {
		name             string
		reviewURL        string
		expectArmed      bool
		expectedEvents   []model.EventType
		expectOpenButton bool
	}{
		{
			name:             "valid review link arms the redirect",
			reviewURL:        testReviewURL,
			expectArmed:      true,
			expectedEvents:   []model.EventType{model.EventTypePageView, model.EventTypeGoogleClick},
			expectOpenButton: true,
		},
		{
			name:           "missing review link stays on the page",
			reviewURL:      "",
			expectArmed:    false,
			expectedEvents: []model.EventType{model.EventTypePageView},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			harness := newTestHarness(testingT)
			harness.provisionTouchpoint(testingT, store.Patch{"redirect_mode": "direct", "google_review_url": testCase.reviewURL})

			recorder := harness.get(testPagePath)
			require.Equal(testingT, http.StatusOK, recorder.Code)
			body := recorder.Body.String()
			require.Contains(testingT, body, `id="ez-direct"`)
			require.Equal(testingT, testCase.expectArmed, strings.Contains(body, "window.setTimeout"))
			require.Equal(testingT, testCase.expectOpenButton, strings.Contains(body, `id="ez-open-review"`))
			require.Equal(testingT, testCase.expectedEvents, harness.events.Types())
		})
	}
}

func TestShowTouchpointAssist(testingT *testing.T) {
	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, nil)

	recorder := harness.get(testPagePath)
	require.Equal(testingT, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(testingT, body, "<title>Bright Smile Dental — EZinfo</title>")
	require.Contains(testingT, body, `data-view="assist"`)
	require.Contains(testingT, body, "How was your visit?")
	require.Contains(testingT, body, `<p class="ez-subtitle">Your prompt subtitle</p>`)
	require.Contains(testingT, body, `id="ez-improve"`)
	require.NotContains(testingT, body, `id="ez-undo"`)
	require.Contains(testingT, body, `id="ez-copy-open"`)
	require.Contains(testingT, body, `class="ez-footer"`)
	require.NotContains(testingT, body, `id="ez-offer"`)
	require.Equal(testingT, []model.EventType{model.EventTypePageView}, harness.events.Types())
}

func TestComposeImproveAndUndo(testingT *testing.T) {
	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, nil)

	improved := harness.postForm(testPagePath+"/compose", url.Values{"action": {"improve"}, "text": {"great service"}})
	require.Equal(testingT, http.StatusOK, improved.Code)
	improvedBody := improved.Body.String()
	require.Contains(testingT, improvedBody, ">Great service.</textarea>")
	require.Contains(testingT, improvedBody, `name="previous_text" value="great service"`)
	require.Contains(testingT, improvedBody, `id="ez-undo"`)
	require.Equal(testingT, []model.EventType{model.EventTypeAIGenerate}, harness.events.Types())

	undone := harness.postForm(testPagePath+"/compose", url.Values{"action": {"undo"}, "text": {"Great service."}, "previous_text": {"great service"}})
	require.Equal(testingT, http.StatusOK, undone.Code)
	require.Contains(testingT, undone.Body.String(), ">great service</textarea>")
	require.NotContains(testingT, undone.Body.String(), `id="ez-undo"`)

	empty := harness.postForm(testPagePath+"/compose", url.Values{"action": {"improve"}, "text": {"   "}})
	require.Contains(testingT, empty.Body.String(), "Write a few words first, then let AI polish them.")
}

func TestComposeIgnoresImproveWhenAIDisabled(testingT *testing.T) {
	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, store.Patch{"ai_enabled": false})

	recorder := harness.postForm(testPagePath+"/compose", url.Values{"action": {"improve"}, "text": {"great service"}})
	require.Equal(testingT, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(testingT, body, ">great service</textarea>")
	require.NotContains(testingT, body, `id="ez-improve"`)
	require.Empty(testingT, harness.events.Types())
}

func TestComposeOnSurveyPageRedirects(testingT *testing.T) {
	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, surveyPatch())

	recorder := harness.postForm(testPagePath+"/compose", url.Values{"action": {"improve"}, "text": {"hi"}})
	require.Equal(testingT, http.StatusSeeOther, recorder.Code)
	require.Equal(testingT, testPagePath, recorder.Header().Get("Location"))
}

func TestShowTouchpointEmptySurvey(testingT *testing.T) {
	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, store.Patch{"primary_mode": "SURVEY"})

	recorder := harness.get(testPagePath)
	require.Equal(testingT, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(testingT, body, `id="ez-survey-empty"`)
	require.NotContains(testingT, body, `id="ez-survey-form"`)
	require.Contains(testingT, body, ">How was your visit?</h1>")
}

func TestSurveyStepFlow(testingT *testing.T) {
	harness := newTestHarness(testingT)
	provisioned := harness.provisionTouchpoint(testingT, mergePatches(surveyPatch(), offerPatch()))

	first := harness.get(testPagePath)
	require.Equal(testingT, http.StatusOK, first.Code)
	firstBody := first.Body.String()
	require.Contains(testingT, firstBody, ">Tell us more</h1>")
	require.Contains(testingT, firstBody, "Step 1 of 3")
	require.Contains(testingT, firstBody, "How was it?")
	require.Contains(testingT, firstBody, `type="radio" name="answer" value="Great"`)
	require.NotContains(testingT, firstBody, `id="ez-survey-back"`)
	require.NotContains(testingT, firstBody, `id="ez-offer"`)

	unanswered := harness.postForm(testPagePath+"/survey", url.Values{"step": {"0"}, "answers": {"{}"}})
	require.Contains(testingT, unanswered.Body.String(), "Please answer this question to continue.")
	require.Contains(testingT, unanswered.Body.String(), "Step 1 of 3")

	second := harness.postForm(testPagePath+"/survey", url.Values{"step": {"0"}, "answers": {"{}"}, "answer": {"Great"}})
	require.Equal(testingT, http.StatusOK, second.Code)
	require.Contains(testingT, second.Body.String(), "Step 2 of 3")
	require.Contains(testingT, second.Body.String(), "Anything else?")
	require.Contains(testingT, second.Body.String(), `id="ez-survey-back"`)

	answers, encodeErr := json.Marshal(map[string]string{"How was it?": "Great"})
	require.NoError(testingT, encodeErr)

	back := harness.postForm(testPagePath+"/survey", url.Values{"step": {"1"}, "answers": {string(answers)}, "answer": {"Clean office"}, "action": {"back"}})
	require.Contains(testingT, back.Body.String(), "Step 1 of 3")
	require.Contains(testingT, back.Body.String(), `value="Great" checked="checked"`)

	emailStage := harness.postForm(testPagePath+"/survey", url.Values{"step": {"1"}, "answers": {string(answers)}, "answer": {"Clean office"}})
	require.Contains(testingT, emailStage.Body.String(), "Step 3 of 3")
	require.Contains(testingT, emailStage.Body.String(), `id="ez-survey-email"`)
	require.Contains(testingT, emailStage.Body.String(), `id="ez-survey-submit"`)

	allAnswers, encodeAllErr := json.Marshal(map[string]string{"How was it?": "Great", "Anything else?": "Clean office"})
	require.NoError(testingT, encodeAllErr)
	completed := harness.postForm(testPagePath+"/survey", url.Values{
		"step":    {"2"},
		"answers": {string(allAnswers)},
		"email":   {"guest@example.com"},
		"action":  {"submit"},
	})
	require.Equal(testingT, http.StatusOK, completed.Code)
	completedBody := completed.Body.String()
	require.Contains(testingT, completedBody, `id="ez-survey-complete"`)
	require.Contains(testingT, completedBody, survey.CompletedMessage)
	require.Contains(testingT, completedBody, survey.ToastSubmitted)
	require.Contains(testingT, completedBody, `id="ez-offer"`)
	require.Contains(testingT, completedBody, "Free Whitening")

	submissions, listErr := harness.store.ListSurveySubmissions(context.Background(), provisioned.TouchpointID)
	require.NoError(testingT, listErr)
	require.Len(testingT, submissions, 1)
	require.Equal(testingT, map[string]string{"How was it?": "Great", "Anything else?": "Clean office"}, submissions[0].AnswerStrings())
	require.NotNil(testingT, submissions[0].Email)
	require.Equal(testingT, "guest@example.com", *submissions[0].Email)

	require.Equal(testingT, []model.EventType{model.EventTypePageView}, harness.events.Types())
}

func TestSurveyStepOnAssistPageRedirects(testingT *testing.T) {
	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, nil)

	recorder := harness.postForm(testPagePath+"/survey", url.Values{"step": {"0"}, "answer": {"x"}})
	require.Equal(testingT, http.StatusSeeOther, recorder.Code)
}

func TestOfferClaimPage(testingT *testing.T) {
	harness := newTestHarness(testingT)
	provisioned := harness.provisionTouchpoint(testingT, offerPatch())

	shown := harness.get(testPagePath)
	shownBody := shown.Body.String()
	require.Contains(testingT, shownBody, `id="ez-offer"`)
	require.Contains(testingT, shownBody, "Free Whitening")
	require.Contains(testingT, shownBody, "Claim a free whitening session.")
	require.NotContains(testingT, shownBody, "Valid for 30 days.")

	missing := harness.postForm(testPagePath+"/offer", url.Values{})
	require.Contains(testingT, missing.Body.String(), "An email is required to claim the offer.")
	require.Contains(testingT, missing.Body.String(), `open="open"`)

	invalid := harness.postForm(testPagePath+"/offer", url.Values{"email": {"nope"}})
	require.Contains(testingT, invalid.Body.String(), "Please provide a valid email.")
	require.Contains(testingT, invalid.Body.String(), `value="nope"`)

	claimed := harness.postForm(testPagePath+"/offer", url.Values{"email": {"Guest@Example.com"}})
	require.Equal(testingT, http.StatusOK, claimed.Code)
	claimedBody := claimed.Body.String()
	require.Contains(testingT, claimedBody, touchpoint.ClaimedOfferTitle)
	require.Contains(testingT, claimedBody, `id="ez-offer-terms"`)
	require.Contains(testingT, claimedBody, "Valid for 30 days.")
	require.NotContains(testingT, claimedBody, `id="ez-offer-form"`)

	leads, leadsErr := harness.store.ListLoyaltyLeads(context.Background(), provisioned.TouchpointID)
	require.NoError(testingT, leadsErr)
	require.Len(testingT, leads, 1)
	require.Equal(testingT, "guest@example.com", leads[0].Email)
}

func TestOfferClaimWithoutOfferRedirects(testingT *testing.T) {
	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, nil)

	recorder := harness.postForm(testPagePath+"/offer", url.Values{"email": {"guest@example.com"}})
	require.Equal(testingT, http.StatusSeeOther, recorder.Code)
}
