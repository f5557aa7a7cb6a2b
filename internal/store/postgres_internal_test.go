package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

type fakeRow struct {
	payload []byte
	text    string
	null    bool
	err     error
}

func (row fakeRow) Scan(destinations ...any) error {
	if row.err != nil {
		return row.err
	}
	switch destination := destinations[0].(type) {
	case *[]byte:
		*destination = row.payload
	case *string:
		*destination = row.text
	case **string:
		if row.null {
			*destination = nil
			return nil
		}
		text := row.text
		*destination = &text
	default:
		return errors.New("unsupported scan destination")
	}
	return nil
}

type recordedCall struct {
	statement string
	arguments []any
}

type fakeQuerier struct {
	row     fakeRow
	execErr error
	calls   []recordedCall
}

func (querier *fakeQuerier) QueryRow(_ context.Context, statement string, arguments ...any) pgx.Row {
	querier.calls = append(querier.calls, recordedCall{statement: statement, arguments: arguments})
	return querier.row
}

func (querier *fakeQuerier) Exec(_ context.Context, statement string, arguments ...any) (pgconn.CommandTag, error) {
	querier.calls = append(querier.calls, recordedCall{statement: statement, arguments: arguments})
	return pgconn.NewCommandTag("INSERT 0 1"), querier.execErr
}

func newFakePostgresStore() (*PostgresStore, *fakeQuerier, *fakeQuerier, *fakeQuerier) {
	anonymous := &fakeQuerier{}
	service := &fakeQuerier{}
	tables := &fakeQuerier{}
	return newPostgresStore(anonymous, service, tables), anonymous, service, tables
}

func TestPostgresStoreProvisionCallsProcedure(testingT *testing.T) {
	postgresStore, _, service, _ := newFakePostgresStore()
	service.row = fakeRow{payload: []byte(`{"ok":true,"already_exists":true,"slug":"acme","business_id":"b1","touchpoint_id":"t1"}`)}

	result, provisionErr := postgresStore.Provision(context.Background(), ProvisionInput{
		BusinessName:    " Acme ",
		Email:           "owner@acme.example",
		GoogleReviewURL: "https://g.page/r/acme/review",
	})
	require.NoError(testingT, provisionErr)
	require.Equal(testingT, ProvisionResult{OK: true, AlreadyExists: true, Slug: "acme", BusinessID: "b1", TouchpointID: "t1"}, result)

	require.Len(testingT, service.calls, 1)
	require.Equal(testingT, provisionStatement, service.calls[0].statement)
	require.Equal(testingT, []any{"Acme", nil, "owner@acme.example", nil, "https://g.page/r/acme/review", nil, ProvisionSourceLanding}, service.calls[0].arguments)
}

func TestPostgresStoreAdminConfigDecodesDocument(testingT *testing.T) {
	postgresStore, _, service, _ := newFakePostgresStore()
	service.row = fakeRow{payload: []byte(`{
		"ok": true,
		"slug": "acme",
		"touchpoint_id": "t1",
		"enabled": true,
		"primary_mode": "SURVEY",
		"redirect_mode": "direct",
		"loyalty_offer_enabled": true,
		"loyalty_offer_title": "Free Coffee",
		"survey_questions": [
			{"sort_order": 2, "question_type": "short_answer", "question_text": "Second", "options": null},
			{"sort_order": 1, "question_type": "multiple_choice", "question_text": "First", "options": ["A", "B"]}
		]
	}`)}

	result, configErr := postgresStore.GetAdminConfig(context.Background(), "acme", "owner@acme.example")
	require.NoError(testingT, configErr)
	require.True(testingT, result.OK)
	require.Equal(testingT, model.PrimaryModeSurvey, result.Config.PrimaryMode)
	require.Equal(testingT, model.RedirectModeDirect, result.Config.RedirectMode)
	require.True(testingT, result.Config.OfferEnabled)
	require.Equal(testingT, "Free Coffee", result.Config.OfferTitle)
	require.Len(testingT, result.Config.SurveyQuestions, 2)
	require.Equal(testingT, "First", result.Config.SurveyQuestions[0].QuestionText)
	require.Equal(testingT, "Second", result.Config.SurveyQuestions[1].QuestionText)
}

func TestPostgresStoreProcedureDenial(testingT *testing.T) {
	postgresStore, _, service, _ := newFakePostgresStore()
	service.row = fakeRow{payload: []byte(`{"ok":false,"error":"Access denied"}`)}

	configResult, configErr := postgresStore.GetAdminConfig(context.Background(), "acme", "stranger@example.com")
	require.NoError(testingT, configErr)
	require.False(testingT, configResult.OK)
	require.Equal(testingT, DeniedMessageAccess, configResult.Error)

	updateResult, updateErr := postgresStore.UpdateTouchpoint(context.Background(), "acme", "stranger@example.com", Patch{"enabled": false})
	require.NoError(testingT, updateErr)
	require.False(testingT, updateResult.OK)
	require.Equal(testingT, DeniedMessageAccess, updateResult.Error)

	encodedPatch, isBytes := service.calls[1].arguments[2].([]byte)
	require.True(testingT, isBytes)
	require.JSONEq(testingT, `{"enabled":false}`, string(encodedPatch))
}

func TestPostgresStoreUpdateDecodesTouchpointRow(testingT *testing.T) {
	postgresStore, _, service, _ := newFakePostgresStore()
	service.row = fakeRow{payload: []byte(`{
		"ok": true,
		"touchpoint": {
			"id": "t1",
			"business_id": "b1",
			"enabled": true,
			"primary_mode": "SURVEY",
			"loyalty_offer_title": "Free Coffee",
			"updated_at": "2026-03-04T10:30:00+00:00"
		}
	}`)}

	result, updateErr := postgresStore.UpdateTouchpoint(context.Background(), "acme", "owner@acme.example", Patch{"primary_mode": "SURVEY"})
	require.NoError(testingT, updateErr)
	require.True(testingT, result.OK)
	require.Equal(testingT, "t1", result.Touchpoint.TouchpointID)
	require.Equal(testingT, "acme", result.Touchpoint.Slug)
	require.Equal(testingT, model.PrimaryModeSurvey, result.Touchpoint.PrimaryMode)
	require.Equal(testingT, "Free Coffee", result.Touchpoint.OfferTitle)
}

func TestPostgresStoreTouchpointBusinessID(testingT *testing.T) {
	testCases := []struct {
		name               string
		row                fakeRow
		expectedBusinessID string
		expectNotFound     bool
	}{
		{name: "assigned business", row: fakeRow{text: "b1"}, expectedBusinessID: "b1"},
		{name: "null business", row: fakeRow{null: true}},
		{name: "missing touchpoint", row: fakeRow{err: pgx.ErrNoRows}, expectNotFound: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			postgresStore, _, _, tables := newFakePostgresStore()
			tables.row = testCase.row

			businessID, lookupErr := postgresStore.TouchpointBusinessID(context.Background(), "t1")
			if testCase.expectNotFound {
				require.ErrorIs(testingT, lookupErr, ErrNotFound)
				return
			}
			require.NoError(testingT, lookupErr)
			require.Equal(testingT, testCase.expectedBusinessID, businessID)
			require.Equal(testingT, touchpointBusinessStatement, tables.calls[0].statement)
		})
	}
}

func TestPostgresStoreTranslatesErrors(testingT *testing.T) {
	testCases := []struct {
		name           string
		err            error
		expectNotFound bool
		expectedCode   string
	}{
		{name: "no rows", err: pgx.ErrNoRows, expectNotFound: true},
		{name: "postgres error", err: &pgconn.PgError{Code: "23503", Message: "violates foreign key"}, expectedCode: "23503"},
		{name: "connection error", err: errors.New("connection reset")},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			postgresStore, _, service, _ := newFakePostgresStore()
			service.row = fakeRow{err: testCase.err}

			_, logErr := postgresStore.LogEvent(context.Background(), "t1", "page_view")
			require.Error(testingT, logErr)
			if testCase.expectNotFound {
				require.ErrorIs(testingT, logErr, ErrNotFound)
				return
			}
			var upstreamError *UpstreamError
			require.True(testingT, errors.As(logErr, &upstreamError))
			require.Equal(testingT, testCase.expectedCode, upstreamError.Code)
			require.Equal(testingT, "ezinfo_log_event", upstreamError.Operation)
		})
	}
}

func TestPostgresStoreLogEventReturnsIdentifier(testingT *testing.T) {
	postgresStore, _, service, _ := newFakePostgresStore()
	service.row = fakeRow{payload: []byte(`{"event_id":"e1"}`)}

	eventID, logErr := postgresStore.LogEvent(context.Background(), "t1", "copy_click")
	require.NoError(testingT, logErr)
	require.Equal(testingT, "e1", eventID)
	require.Equal(testingT, []any{"t1", "copy_click"}, service.calls[0].arguments)
}

func TestPostgresStorePublicTouchpointUsesAnonymousPool(testingT *testing.T) {
	postgresStore, anonymous, service, tables := newFakePostgresStore()
	anonymous.row = fakeRow{payload: []byte(`{"slug":"acme","touchpoint_id":"t1","business_name":"Acme","enabled":false,"google_review_url":"https://g.page/r/acme"}`)}

	config, lookupErr := postgresStore.PublicTouchpoint(context.Background(), "acme")
	require.NoError(testingT, lookupErr)
	require.Equal(testingT, "Acme", config.BusinessName)
	require.False(testingT, config.Enabled)
	require.Equal(testingT, model.PrimaryModeGoogleReviews, config.PrimaryMode)
	require.Len(testingT, anonymous.calls, 1)
	require.Empty(testingT, service.calls)
	require.Empty(testingT, tables.calls)
}

func TestPostgresStoreTableAccess(testingT *testing.T) {
	postgresStore, _, _, tables := newFakePostgresStore()
	submittedAt := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	tables.row = fakeRow{payload: []byte(`[{"id":"s1","touchpoint_id":"t1","email":null,"answers":{"Q":"A"},"submitted_at":"2026-03-04T10:30:00+00:00"}]`)}
	submissions, listErr := postgresStore.ListSurveySubmissions(context.Background(), "t1")
	require.NoError(testingT, listErr)
	require.Len(testingT, submissions, 1)
	require.Nil(testingT, submissions[0].Email)
	require.True(testingT, submittedAt.Equal(submissions[0].SubmittedAt))
	require.Equal(testingT, map[string]string{"Q": "A"}, submissions[0].AnswerStrings())

	tables.row = fakeRow{text: "b1"}
	businessID, lookupErr := postgresStore.TouchpointBusinessID(context.Background(), "t1")
	require.NoError(testingT, lookupErr)
	require.Equal(testingT, "b1", businessID)

	lead := model.LoyaltyLead{ID: "l1", TouchpointID: "t1", BusinessID: "b1", Email: "guest@example.com", ClaimedAt: submittedAt}
	require.NoError(testingT, postgresStore.InsertLoyaltyLead(context.Background(), lead))
	lastCall := tables.calls[len(tables.calls)-1]
	require.Equal(testingT, insertLeadStatement, lastCall.statement)
	require.Equal(testingT, []any{"l1", "t1", "b1", "guest@example.com", submittedAt}, lastCall.arguments)

	email := "guest@example.com"
	submission := model.SurveySubmission{ID: "s1", TouchpointID: "t1", BusinessID: "b1", Email: &email, Answers: map[string]any{"Q": "A"}, SubmittedAt: submittedAt}
	require.NoError(testingT, postgresStore.InsertSurveySubmission(context.Background(), submission))
	lastCall = tables.calls[len(tables.calls)-1]
	require.Equal(testingT, insertSubmissionStatement, lastCall.statement)
	require.Len(testingT, lastCall.arguments, 5)
	require.Equal(testingT, []any{"s1", "t1", &email}, lastCall.arguments[:3])
	require.JSONEq(testingT, `{"Q":"A"}`, string(lastCall.arguments[3].([]byte)))
	require.Equal(testingT, submittedAt, lastCall.arguments[4])

	tables.execErr = &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	insertErr := postgresStore.InsertSurveySubmission(context.Background(), model.SurveySubmission{ID: "s2", Answers: map[string]any{}})
	var upstreamError *UpstreamError
	require.True(testingT, errors.As(insertErr, &upstreamError))
	require.Equal(testingT, "23505", upstreamError.Code)
}

func TestDecodeSurveyQuestionsDefaultsSortOrder(testingT *testing.T) {
	questions, decodeErr := decodeSurveyQuestions(json.RawMessage(`[{"question_text":"A"},{"question_text":"B","question_type":"MULTIPLE_CHOICE","options":["x"]}]`))
	require.NoError(testingT, decodeErr)
	require.Equal(testingT, []model.SurveyQuestion{
		{SortOrder: 0, QuestionType: model.QuestionTypeShortAnswer, QuestionText: "A", Options: []string{}},
		{SortOrder: 1, QuestionType: model.QuestionTypeMultipleChoice, QuestionText: "B", Options: []string{"x"}},
	}, questions)

	_, invalidErr := decodeSurveyQuestions("not a list")
	require.Error(testingT, invalidErr)
}
