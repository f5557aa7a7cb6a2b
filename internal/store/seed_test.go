package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/store"
)

const testSeedContents = `
touchpoints:
  - business_name: Harbor Bakery
    email: hello@harbor.example
    google_review_url: https://g.page/r/harbor/review
    patch:
      primary_mode: SURVEY
      loyalty_offer_enabled: true
      loyalty_offer_title: Free croissant
      survey_questions:
        - question_type: multiple_choice
          question_text: How did you hear about us?
          options: [Friend, Social media]
          sort_order: 0
  - business_name: Dockside Diner
    email: owner@dockside.example
`

func TestParseSeedRejectsIncompleteEntries(testingT *testing.T) {
	_, parseErr := store.ParseSeed([]byte("touchpoints:\n  - business_name: Nameless\n"))
	require.ErrorIs(testingT, parseErr, store.ErrInvalidSeed)

	_, invalidErr := store.ParseSeed([]byte("touchpoints: [unterminated"))
	require.ErrorIs(testingT, invalidErr, store.ErrInvalidSeed)
}

func TestApplySeedProvisionsAndPatches(testingT *testing.T) {
	seedPath := filepath.Join(testingT.TempDir(), "seed.yaml")
	require.NoError(testingT, os.WriteFile(seedPath, []byte(testSeedContents), 0o600))

	seed, loadErr := store.LoadSeedFile(seedPath)
	require.NoError(testingT, loadErr)
	require.Len(testingT, seed.Touchpoints, 2)

	localStore := newLocalStore(testingT)
	results, applyErr := store.ApplySeed(context.Background(), localStore, seed)
	require.NoError(testingT, applyErr)
	require.Len(testingT, results, 2)
	require.Equal(testingT, "harbor-bakery", results[0].Slug)
	require.Equal(testingT, "dockside-diner", results[1].Slug)

	config, configErr := localStore.GetAdminConfig(context.Background(), "harbor-bakery", "hello@harbor.example")
	require.NoError(testingT, configErr)
	require.True(testingT, config.OK)
	require.Equal(testingT, model.PrimaryModeSurvey, config.Config.PrimaryMode)
	require.Equal(testingT, "Free croissant", config.Config.OfferTitle)
	require.Len(testingT, config.Config.SurveyQuestions, 1)
	require.Equal(testingT, []string{"Friend", "Social media"}, config.Config.SurveyQuestions[0].Options)

	repeated, repeatErr := store.ApplySeed(context.Background(), localStore, seed)
	require.NoError(testingT, repeatErr)
	require.True(testingT, repeated[0].AlreadyExists)
	require.Equal(testingT, "harbor-bakery", repeated[0].Slug)
}

func TestLoadSeedFileReportsMissingFile(testingT *testing.T) {
	_, loadErr := store.LoadSeedFile(filepath.Join(testingT.TempDir(), "absent.yaml"))
	require.Error(testingT, loadErr)
}
