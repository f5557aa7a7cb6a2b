package httpapi_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/survey"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/touchpoint"
)

const (
	browserTestTimeout                   = 20 * time.Second
	headlessBrowserSkipReason            = "chromedp headless browser not available"
	headlessBrowserLocateErrorMessage    = "locate headless browser executable"
	headlessBrowserEnvironmentChromedp   = "CHROMEDP_BROWSER"
	headlessBrowserEnvironmentChromePath = "CHROME_PATH"

	surveyGreatOptionSelector = `#ez-survey-form input[value="Great"]`
	surveyNextSelector        = "#ez-survey-next"
	surveyAnswerSelector      = "#ez-answer"
	surveyEmailSelector       = "#ez-survey-email"
	surveySubmitSelector      = "#ez-survey-submit"
	surveyCompleteSelector    = "#ez-survey-complete"
	surveyToastSelector       = "#ez-survey-toast"
	offerSummarySelector      = "#ez-offer summary"
	offerEmailSelector        = "#ez-offer-email"
	offerSubmitSelector       = "#ez-offer-form button"
	offerTermsSelector        = "#ez-offer-terms"
	offerHeadingSelector      = "#ez-offer h2"
	composerTextSelector      = "#ez-review-text"
	composerImproveSelector   = "#ez-improve"
	composerUndoSelector      = "#ez-undo"
)

var headlessBrowserExecutableNames = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
	"headless-shell",
}

var errHeadlessBrowserNotFound = errors.New("headless browser executable not found")

func TestSurveyPageInBrowser(testingT *testing.T) {
	browserContext := buildHeadlessBrowserContext(testingT)

	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, mergePatches(surveyPatch(), offerPatch()))
	server := httptest.NewServer(harness.router)
	testingT.Cleanup(server.Close)

	var completedText string
	var toastText string
	runErr := chromedp.Run(browserContext,
		chromedp.Navigate(server.URL+testPagePath),
		chromedp.WaitVisible(surveyGreatOptionSelector, chromedp.ByQuery),
		chromedp.Click(surveyGreatOptionSelector, chromedp.ByQuery),
		chromedp.Click(surveyNextSelector, chromedp.ByQuery),
		chromedp.WaitVisible(surveyAnswerSelector, chromedp.ByQuery),
		chromedp.SetValue(surveyAnswerSelector, "Clean office", chromedp.ByQuery),
		chromedp.Click(surveyNextSelector, chromedp.ByQuery),
		chromedp.WaitVisible(surveyEmailSelector, chromedp.ByQuery),
		chromedp.SetValue(surveyEmailSelector, "guest@example.com", chromedp.ByQuery),
		chromedp.Click(surveySubmitSelector, chromedp.ByQuery),
		chromedp.WaitVisible(surveyCompleteSelector, chromedp.ByQuery),
		chromedp.Text(surveyCompleteSelector, &completedText, chromedp.ByQuery),
		chromedp.Text(surveyToastSelector, &toastText, chromedp.ByQuery),
	)
	require.NoError(testingT, runErr)
	require.Equal(testingT, survey.CompletedMessage, strings.TrimSpace(completedText))
	require.Equal(testingT, survey.ToastSubmitted, strings.TrimSpace(toastText))

	var offerHeading string
	var offerTerms string
	claimErr := chromedp.Run(browserContext,
		chromedp.Click(offerSummarySelector, chromedp.ByQuery),
		chromedp.WaitVisible(offerEmailSelector, chromedp.ByQuery),
		chromedp.SetValue(offerEmailSelector, "guest@example.com", chromedp.ByQuery),
		chromedp.Click(offerSubmitSelector, chromedp.ByQuery),
		chromedp.WaitVisible(offerTermsSelector, chromedp.ByQuery),
		chromedp.Text(offerHeadingSelector, &offerHeading, chromedp.ByQuery),
		chromedp.Text(offerTermsSelector, &offerTerms, chromedp.ByQuery),
	)
	require.NoError(testingT, claimErr)
	require.Equal(testingT, touchpoint.ClaimedOfferTitle, strings.TrimSpace(offerHeading))
	require.Equal(testingT, "Valid for 30 days.", strings.TrimSpace(offerTerms))
}

func TestComposerImproveInBrowser(testingT *testing.T) {
	browserContext := buildHeadlessBrowserContext(testingT)

	harness := newTestHarness(testingT)
	harness.provisionTouchpoint(testingT, nil)
	server := httptest.NewServer(harness.router)
	testingT.Cleanup(server.Close)

	var improvedText string
	runErr := chromedp.Run(browserContext,
		chromedp.Navigate(server.URL+testPagePath),
		chromedp.WaitVisible(composerTextSelector, chromedp.ByQuery),
		chromedp.SetValue(composerTextSelector, "great service", chromedp.ByQuery),
		chromedp.Click(composerImproveSelector, chromedp.ByQuery),
		chromedp.WaitVisible(composerUndoSelector, chromedp.ByQuery),
		chromedp.Value(composerTextSelector, &improvedText, chromedp.ByQuery),
	)
	require.NoError(testingT, runErr)
	require.Equal(testingT, "Great service.", improvedText)
}

func locateHeadlessBrowserExecutable() (string, error) {
	environmentVariableNames := []string{
		headlessBrowserEnvironmentChromedp,
		headlessBrowserEnvironmentChromePath,
	}

	for _, environmentVariableName := range environmentVariableNames {
		environmentValue := strings.TrimSpace(os.Getenv(environmentVariableName))
		if environmentValue == "" {
			continue
		}
		return environmentValue, nil
	}

	for _, executableName := range headlessBrowserExecutableNames {
		executablePath, lookupErr := exec.LookPath(executableName)
		if lookupErr == nil {
			return executablePath, nil
		}
	}

	return "", fmt.Errorf("%s: %w", headlessBrowserLocateErrorMessage, errHeadlessBrowserNotFound)
}

func buildHeadlessBrowserContext(testingT *testing.T) context.Context {
	testingT.Helper()

	browserExecutablePath, locateBrowserErr := locateHeadlessBrowserExecutable()
	if locateBrowserErr != nil {
		testingT.Skipf("%s: %v", headlessBrowserSkipReason, locateBrowserErr)
	}

	headlessAllocatorOptions := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browserExecutablePath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocatorContext, allocatorCancel := chromedp.NewExecAllocator(context.Background(), headlessAllocatorOptions...)
	testingT.Cleanup(allocatorCancel)

	browserContext, browserCancel := chromedp.NewContext(allocatorContext)
	testingT.Cleanup(browserCancel)

	contextWithTimeout, timeoutCancel := context.WithTimeout(browserContext, browserTestTimeout)
	testingT.Cleanup(timeoutCancel)

	return contextWithTimeout
}
