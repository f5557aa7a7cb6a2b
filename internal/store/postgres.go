package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/storage"
)

const (
	provisionStatement = `SELECT ezinfo_auto_provision(
	p_business_name => $1,
	p_owner_name => $2,
	p_email => $3,
	p_phone => $4,
	p_google_review_url => $5,
	p_notes => $6,
	p_source => $7)`

	adminConfigStatement      = `SELECT ezinfo_get_admin_config(p_slug => $1, p_email => $2)`
	updateTouchpointStatement = `SELECT ezinfo_update_touchpoint(p_slug => $1, p_email => $2, p_patch => $3)`
	logEventStatement         = `SELECT ezinfo_log_event(p_touchpoint_id => $1, p_event_type => $2)`

	publicTouchpointStatement      = `SELECT row_to_json(t) FROM ezinfo_public_touchpoints t WHERE t.slug = $1 LIMIT 1`
	touchpointBusinessStatement    = `SELECT business_id FROM touchpoints WHERE id = $1`
	businessBySlugStatement        = `SELECT row_to_json(b) FROM (SELECT id, slug, business_name, email FROM businesses WHERE slug = $1) b`
	touchpointForBusinessStatement = `SELECT id FROM touchpoints WHERE business_id = $1 LIMIT 1`
	insertSubmissionStatement      = `INSERT INTO survey_submissions (id, touchpoint_id, email, answers, submitted_at) VALUES ($1, $2, $3, $4, $5)`
	insertLeadStatement            = `INSERT INTO loyalty_leads (id, touchpoint_id, business_id, email, claimed_at) VALUES ($1, $2, $3, $4, $5)`

	surveyQuestionsStatement = `SELECT coalesce(json_agg(q ORDER BY q.sort_order), '[]'::json)
FROM (SELECT id, sort_order, question_type, question_text, options FROM survey_questions WHERE touchpoint_id = $1) q`

	listSubmissionsStatement = `SELECT coalesce(json_agg(s ORDER BY s.submitted_at DESC), '[]'::json)
FROM (SELECT id, touchpoint_id, email, answers, submitted_at FROM survey_submissions WHERE touchpoint_id = $1) s`

	listLeadsStatement = `SELECT coalesce(json_agg(l ORDER BY l.claimed_at DESC), '[]'::json)
FROM (SELECT id, touchpoint_id, business_id, email, claimed_at FROM loyalty_leads WHERE touchpoint_id = $1) l`
)

// querier is the subset of pgxpool.Pool used by PostgresStore.
type querier interface {
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresStore talks to the hosted schema. Procedures run on the service pool, the public
// view on the anonymous pool and table access on the schema-scoped pool.
type PostgresStore struct {
	anonymous querier
	service   querier
	tables    querier
}

// NewPostgresStore builds a store over opened pools.
func NewPostgresStore(pools storage.PostgresPools) *PostgresStore {
	return newPostgresStore(pools.Anonymous, pools.Service, pools.Schema)
}

func newPostgresStore(anonymous querier, service querier, tables querier) *PostgresStore {
	return &PostgresStore{anonymous: anonymous, service: service, tables: tables}
}

func (postgresStore *PostgresStore) Provision(ctx context.Context, input ProvisionInput) (ProvisionResult, error) {
	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = ProvisionSourceLanding
	}
	var result ProvisionResult
	callErr := postgresStore.callProcedure(ctx, "ezinfo_auto_provision", &result, provisionStatement,
		strings.TrimSpace(input.BusinessName),
		nullableText(input.OwnerName),
		strings.TrimSpace(input.Email),
		nullableText(input.Phone),
		strings.TrimSpace(input.GoogleReviewURL),
		nullableText(input.Notes),
		source,
	)
	if callErr != nil {
		return ProvisionResult{}, callErr
	}
	return result, nil
}

func (postgresStore *PostgresStore) GetAdminConfig(ctx context.Context, slug string, email string) (AdminConfigResult, error) {
	var document adminConfigDocument
	if callErr := postgresStore.callProcedure(ctx, "ezinfo_get_admin_config", &document, adminConfigStatement, slug, email); callErr != nil {
		return AdminConfigResult{}, callErr
	}
	if !document.OK {
		return AdminConfigResult{OK: false, Error: document.Error}, nil
	}
	return AdminConfigResult{OK: true, Config: document.touchpointDocument.config()}, nil
}

func (postgresStore *PostgresStore) UpdateTouchpoint(ctx context.Context, slug string, email string, patch Patch) (UpdateResult, error) {
	encodedPatch, encodeErr := json.Marshal(patch)
	if encodeErr != nil {
		return UpdateResult{}, fmt.Errorf("encode patch: %w", encodeErr)
	}
	var document updateDocument
	if callErr := postgresStore.callProcedure(ctx, "ezinfo_update_touchpoint", &document, updateTouchpointStatement, slug, email, encodedPatch); callErr != nil {
		return UpdateResult{}, callErr
	}
	if !document.OK {
		return UpdateResult{OK: false, Error: document.Error}, nil
	}
	return UpdateResult{OK: true, Touchpoint: document.Touchpoint.config(slug)}, nil
}

func (postgresStore *PostgresStore) LogEvent(ctx context.Context, touchpointID string, eventType string) (string, error) {
	var logged struct {
		EventID string `json:"event_id"`
	}
	if callErr := postgresStore.callProcedure(ctx, "ezinfo_log_event", &logged, logEventStatement, touchpointID, eventType); callErr != nil {
		return "", callErr
	}
	return logged.EventID, nil
}

func (postgresStore *PostgresStore) PublicTouchpoint(ctx context.Context, slug string) (model.TouchpointConfig, error) {
	var document touchpointDocument
	if queryErr := queryJSON(ctx, postgresStore.anonymous, "ezinfo_public_touchpoints", &document, publicTouchpointStatement, slug); queryErr != nil {
		return model.TouchpointConfig{}, queryErr
	}
	config := document.config()
	config.SurveyQuestions = nil
	return config, nil
}

func (postgresStore *PostgresStore) SurveyQuestions(ctx context.Context, touchpointID string) ([]model.SurveyQuestion, error) {
	var raw json.RawMessage
	if queryErr := queryJSON(ctx, postgresStore.tables, "survey_questions", &raw, surveyQuestionsStatement, touchpointID); queryErr != nil {
		return nil, queryErr
	}
	questions, decodeErr := decodeSurveyQuestions(raw)
	if decodeErr != nil {
		return nil, decodeErr
	}
	return model.SortedQuestions(questions), nil
}

// TouchpointBusinessID returns an empty id for a touchpoint whose business_id is NULL.
func (postgresStore *PostgresStore) TouchpointBusinessID(ctx context.Context, touchpointID string) (string, error) {
	var businessID *string
	if scanErr := postgresStore.tables.QueryRow(ctx, touchpointBusinessStatement, touchpointID).Scan(&businessID); scanErr != nil {
		return "", translatePostgresError("touchpoints", scanErr)
	}
	if businessID == nil {
		return "", nil
	}
	return *businessID, nil
}

func (postgresStore *PostgresStore) BusinessBySlug(ctx context.Context, slug string) (model.Business, error) {
	var document struct {
		ID           string `json:"id"`
		Slug         string `json:"slug"`
		BusinessName string `json:"business_name"`
		Email        string `json:"email"`
	}
	if queryErr := queryJSON(ctx, postgresStore.tables, "businesses", &document, businessBySlugStatement, slug); queryErr != nil {
		return model.Business{}, queryErr
	}
	return model.Business{ID: document.ID, Slug: document.Slug, BusinessName: document.BusinessName, Email: document.Email}, nil
}

func (postgresStore *PostgresStore) TouchpointIDForBusiness(ctx context.Context, businessID string) (string, error) {
	var touchpointID string
	if scanErr := postgresStore.tables.QueryRow(ctx, touchpointForBusinessStatement, businessID).Scan(&touchpointID); scanErr != nil {
		return "", translatePostgresError("touchpoints", scanErr)
	}
	return touchpointID, nil
}

func (postgresStore *PostgresStore) InsertSurveySubmission(ctx context.Context, submission model.SurveySubmission) error {
	encodedAnswers, encodeErr := json.Marshal(submission.Answers)
	if encodeErr != nil {
		return fmt.Errorf("encode answers: %w", encodeErr)
	}
	_, execErr := postgresStore.tables.Exec(ctx, insertSubmissionStatement,
		submission.ID,
		submission.TouchpointID,
		submission.Email,
		encodedAnswers,
		submission.SubmittedAt,
	)
	if execErr != nil {
		return translatePostgresError("survey_submissions", execErr)
	}
	return nil
}

func (postgresStore *PostgresStore) InsertLoyaltyLead(ctx context.Context, lead model.LoyaltyLead) error {
	_, execErr := postgresStore.tables.Exec(ctx, insertLeadStatement, lead.ID, lead.TouchpointID, lead.BusinessID, lead.Email, lead.ClaimedAt)
	if execErr != nil {
		return translatePostgresError("loyalty_leads", execErr)
	}
	return nil
}

type submissionDocument struct {
	ID           string         `json:"id"`
	TouchpointID string         `json:"touchpoint_id"`
	Email        *string        `json:"email"`
	Answers      map[string]any `json:"answers"`
	SubmittedAt  time.Time      `json:"submitted_at"`
}

func (postgresStore *PostgresStore) ListSurveySubmissions(ctx context.Context, touchpointID string) ([]model.SurveySubmission, error) {
	var documents []submissionDocument
	if queryErr := queryJSON(ctx, postgresStore.tables, "survey_submissions", &documents, listSubmissionsStatement, touchpointID); queryErr != nil {
		return nil, queryErr
	}
	submissions := make([]model.SurveySubmission, 0, len(documents))
	for _, document := range documents {
		submissions = append(submissions, model.SurveySubmission{
			ID:           document.ID,
			TouchpointID: document.TouchpointID,
			Email:        document.Email,
			Answers:      document.Answers,
			SubmittedAt:  document.SubmittedAt,
		})
	}
	return submissions, nil
}

func (postgresStore *PostgresStore) ListLoyaltyLeads(ctx context.Context, touchpointID string) ([]model.LoyaltyLead, error) {
	var leads []model.LoyaltyLead
	if queryErr := queryJSON(ctx, postgresStore.tables, "loyalty_leads", &leads, listLeadsStatement, touchpointID); queryErr != nil {
		return nil, queryErr
	}
	return leads, nil
}

func (postgresStore *PostgresStore) callProcedure(ctx context.Context, operation string, target any, statement string, arguments ...any) error {
	return queryJSON(ctx, postgresStore.service, operation, target, statement, arguments...)
}

func queryJSON(ctx context.Context, source querier, operation string, target any, statement string, arguments ...any) error {
	var payload []byte
	if scanErr := source.QueryRow(ctx, statement, arguments...).Scan(&payload); scanErr != nil {
		return translatePostgresError(operation, scanErr)
	}
	if len(payload) == 0 {
		return ErrNotFound
	}
	if decodeErr := json.Unmarshal(payload, target); decodeErr != nil {
		return fmt.Errorf("store: %s: decode result: %w", operation, decodeErr)
	}
	return nil
}

func translatePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var postgresError *pgconn.PgError
	if errors.As(err, &postgresError) {
		return &UpstreamError{Operation: operation, Message: postgresError.Message, Code: postgresError.Code, Err: err}
	}
	return &UpstreamError{Operation: operation, Message: err.Error(), Err: err}
}

func nullableText(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}
