package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/storage"
)

const (
	defaultPromptTitle      = "How was your visit?"
	defaultSlugBase         = "touchpoint"
	slugMaxLength           = 60
	slugCollisionAttempts   = 1000
	patchKeySurveyQuestions = "survey_questions"

	localOperationProvision = "auto_provision"
	localOperationUpdate    = "update_touchpoint"
	localOperationLogEvent  = "log_event"

	foreignKeyViolationCode = "23503"
	invalidValueCode        = "22P02"
)

var slugSeparatorPattern = regexp.MustCompile(`[^a-z0-9]+`)

type patchColumnKind int

const (
	patchColumnBool patchColumnKind = iota
	patchColumnText
	patchColumnPrimaryMode
	patchColumnRedirectMode
)

// patchableColumns lists the touchpoint columns an owner may overwrite.
var patchableColumns = map[string]patchColumnKind{
	"enabled":                   patchColumnBool,
	"primary_mode":              patchColumnPrimaryMode,
	"redirect_mode":             patchColumnRedirectMode,
	"google_review_enabled":     patchColumnBool,
	"google_review_url":         patchColumnText,
	"prompt_title":              patchColumnText,
	"prompt_subtitle":           patchColumnText,
	"ai_enabled":                patchColumnBool,
	"brand_name":                patchColumnText,
	"brand_logo_url":            patchColumnText,
	"brand_accent":              patchColumnText,
	"theme_bg_color":            patchColumnText,
	"theme_shade_color":         patchColumnText,
	"loyalty_offer_enabled":     patchColumnBool,
	"loyalty_offer_title":       patchColumnText,
	"loyalty_offer_description": patchColumnText,
	"loyalty_offer_terms":       patchColumnText,
}

// LocalStore keeps touchpoints in a gorm database and reproduces the contract of the
// remote procedures: provisioning is idempotent per email and owners are matched by email.
type LocalStore struct {
	database *gorm.DB
}

// NewLocalStore wraps a migrated gorm database.
func NewLocalStore(database *gorm.DB) *LocalStore {
	return &LocalStore{database: database}
}

// Provision creates a business and its touchpoint, or returns the existing one for a known email.
func (localStore *LocalStore) Provision(ctx context.Context, input ProvisionInput) (ProvisionResult, error) {
	email := normalizeEmail(input.Email)
	businessName := strings.TrimSpace(input.BusinessName)
	if email == "" || businessName == "" {
		return ProvisionResult{OK: false, Error: "business_name and email are required"}, nil
	}

	existing, existingErr := localStore.provisionedForEmail(ctx, email)
	if existingErr == nil {
		return existing, nil
	}
	if !errors.Is(existingErr, ErrNotFound) {
		return ProvisionResult{}, upstreamFromGorm(localOperationProvision, existingErr)
	}

	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = ProvisionSourceLanding
	}

	var created ProvisionResult
	transactionErr := localStore.database.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		slug, slugErr := uniqueSlug(transaction, businessName)
		if slugErr != nil {
			return slugErr
		}
		business := model.Business{
			ID:           storage.NewID(),
			Slug:         slug,
			BusinessName: businessName,
			OwnerName:    strings.TrimSpace(input.OwnerName),
			Email:        email,
			Phone:        strings.TrimSpace(input.Phone),
			Notes:        strings.TrimSpace(input.Notes),
			Source:       source,
		}
		if createErr := transaction.Create(&business).Error; createErr != nil {
			return createErr
		}
		touchpoint := model.Touchpoint{
			ID:                  storage.NewID(),
			BusinessID:          business.ID,
			Enabled:             true,
			PrimaryMode:         string(model.PrimaryModeGoogleReviews),
			RedirectMode:        string(model.RedirectModeAssist),
			GoogleReviewEnabled: true,
			GoogleReviewURL:     strings.TrimSpace(input.GoogleReviewURL),
			PromptTitle:         defaultPromptTitle,
			AIEnabled:           true,
		}
		if createErr := transaction.Create(&touchpoint).Error; createErr != nil {
			return createErr
		}
		created = ProvisionResult{
			OK:           true,
			Slug:         business.Slug,
			BusinessID:   business.ID,
			TouchpointID: touchpoint.ID,
		}
		return nil
	})
	if transactionErr != nil {
		// A concurrent request may have provisioned the same email first.
		if existing, lookupErr := localStore.provisionedForEmail(ctx, email); lookupErr == nil {
			return existing, nil
		}
		return ProvisionResult{}, upstreamFromGorm(localOperationProvision, transactionErr)
	}
	return created, nil
}

func (localStore *LocalStore) provisionedForEmail(ctx context.Context, email string) (ProvisionResult, error) {
	var business model.Business
	if findErr := localStore.database.WithContext(ctx).Where("email = ?", email).First(&business).Error; findErr != nil {
		return ProvisionResult{}, notFoundOr(findErr)
	}
	var touchpoint model.Touchpoint
	if findErr := localStore.database.WithContext(ctx).Where("business_id = ?", business.ID).First(&touchpoint).Error; findErr != nil {
		return ProvisionResult{}, notFoundOr(findErr)
	}
	return ProvisionResult{
		OK:            true,
		AlreadyExists: true,
		Slug:          business.Slug,
		BusinessID:    business.ID,
		TouchpointID:  touchpoint.ID,
	}, nil
}

// GetAdminConfig returns the configuration when email matches the business owner.
func (localStore *LocalStore) GetAdminConfig(ctx context.Context, slug string, email string) (AdminConfigResult, error) {
	business, touchpoint, denial, authorizeErr := localStore.authorize(ctx, slug, email)
	if authorizeErr != nil {
		return AdminConfigResult{}, authorizeErr
	}
	if denial != "" {
		return AdminConfigResult{OK: false, Error: denial}, nil
	}
	config, configErr := localStore.configFor(ctx, business, touchpoint)
	if configErr != nil {
		return AdminConfigResult{}, configErr
	}
	return AdminConfigResult{OK: true, Config: config}, nil
}

// UpdateTouchpoint applies patch when email matches the business owner. Unknown keys are ignored.
func (localStore *LocalStore) UpdateTouchpoint(ctx context.Context, slug string, email string, patch Patch) (UpdateResult, error) {
	business, touchpoint, denial, authorizeErr := localStore.authorize(ctx, slug, email)
	if authorizeErr != nil {
		return UpdateResult{}, authorizeErr
	}
	if denial != "" {
		return UpdateResult{OK: false, Error: denial}, nil
	}

	assignments, questions, replaceQuestions, patchErr := columnAssignments(patch)
	if patchErr != nil {
		return UpdateResult{}, &UpstreamError{Operation: localOperationUpdate, Message: patchErr.Error(), Code: invalidValueCode, Err: patchErr}
	}

	transactionErr := localStore.database.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if len(assignments) > 0 {
			if updateErr := transaction.Model(&model.Touchpoint{}).Where("id = ?", touchpoint.ID).Updates(assignments).Error; updateErr != nil {
				return updateErr
			}
		}
		if !replaceQuestions {
			return nil
		}
		if deleteErr := transaction.Where("touchpoint_id = ?", touchpoint.ID).Delete(&model.SurveyQuestionRecord{}).Error; deleteErr != nil {
			return deleteErr
		}
		for _, question := range questions {
			record, recordErr := questionRecord(touchpoint.ID, question)
			if recordErr != nil {
				return recordErr
			}
			if createErr := transaction.Create(&record).Error; createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if transactionErr != nil {
		return UpdateResult{}, upstreamFromGorm(localOperationUpdate, transactionErr)
	}

	var refreshed model.Touchpoint
	if findErr := localStore.database.WithContext(ctx).Where("id = ?", touchpoint.ID).First(&refreshed).Error; findErr != nil {
		return UpdateResult{}, upstreamFromGorm(localOperationUpdate, findErr)
	}
	config, configErr := localStore.configFor(ctx, business, refreshed)
	if configErr != nil {
		return UpdateResult{}, configErr
	}
	return UpdateResult{OK: true, Touchpoint: config}, nil
}

// LogEvent appends an interaction record and returns its id.
func (localStore *LocalStore) LogEvent(ctx context.Context, touchpointID string, eventType string) (string, error) {
	event, eventErr := model.NewTouchpointEvent(model.TouchpointEventInput{TouchpointID: touchpointID, EventType: eventType})
	if eventErr != nil {
		return "", &UpstreamError{Operation: localOperationLogEvent, Message: eventErr.Error(), Code: invalidValueCode, Err: eventErr}
	}
	if _, lookupErr := localStore.TouchpointBusinessID(ctx, event.TouchpointID); lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			return "", &UpstreamError{Operation: localOperationLogEvent, Message: "touchpoint does not exist", Code: foreignKeyViolationCode, Err: lookupErr}
		}
		return "", lookupErr
	}
	if createErr := localStore.database.WithContext(ctx).Create(&event).Error; createErr != nil {
		return "", upstreamFromGorm(localOperationLogEvent, createErr)
	}
	return event.ID, nil
}

// PublicTouchpoint returns the configuration shown to visitors, without survey questions.
func (localStore *LocalStore) PublicTouchpoint(ctx context.Context, slug string) (model.TouchpointConfig, error) {
	var business model.Business
	if findErr := localStore.database.WithContext(ctx).Where("slug = ?", strings.TrimSpace(slug)).First(&business).Error; findErr != nil {
		return model.TouchpointConfig{}, notFoundOr(findErr)
	}
	var touchpoint model.Touchpoint
	if findErr := localStore.database.WithContext(ctx).Where("business_id = ?", business.ID).First(&touchpoint).Error; findErr != nil {
		return model.TouchpointConfig{}, notFoundOr(findErr)
	}
	return model.TouchpointConfigFor(business, touchpoint, nil), nil
}

// SurveyQuestions returns the questions of a touchpoint ordered by sort_order.
func (localStore *LocalStore) SurveyQuestions(ctx context.Context, touchpointID string) ([]model.SurveyQuestion, error) {
	var records []model.SurveyQuestionRecord
	if findErr := localStore.database.WithContext(ctx).
		Where("touchpoint_id = ?", touchpointID).
		Order("sort_order ASC").
		Find(&records).Error; findErr != nil {
		return nil, findErr
	}
	questions := make([]model.SurveyQuestion, 0, len(records))
	for _, record := range records {
		options := []string{}
		if len(record.Options) > 0 {
			if decodeErr := json.Unmarshal(record.Options, &options); decodeErr != nil {
				return nil, fmt.Errorf("decode options of question %s: %w", record.ID, decodeErr)
			}
		}
		questions = append(questions, model.SurveyQuestion{
			ID:           record.ID,
			SortOrder:    record.SortOrder,
			QuestionType: model.ParseQuestionType(record.QuestionType),
			QuestionText: record.QuestionText,
			Options:      options,
		})
	}
	return questions, nil
}

func (localStore *LocalStore) TouchpointBusinessID(ctx context.Context, touchpointID string) (string, error) {
	var touchpoint model.Touchpoint
	if findErr := localStore.database.WithContext(ctx).Select("id", "business_id").Where("id = ?", touchpointID).First(&touchpoint).Error; findErr != nil {
		return "", notFoundOr(findErr)
	}
	return touchpoint.BusinessID, nil
}

func (localStore *LocalStore) BusinessBySlug(ctx context.Context, slug string) (model.Business, error) {
	var business model.Business
	if findErr := localStore.database.WithContext(ctx).Where("slug = ?", slug).First(&business).Error; findErr != nil {
		return model.Business{}, notFoundOr(findErr)
	}
	return business, nil
}

func (localStore *LocalStore) TouchpointIDForBusiness(ctx context.Context, businessID string) (string, error) {
	var touchpoint model.Touchpoint
	if findErr := localStore.database.WithContext(ctx).Select("id").Where("business_id = ?", businessID).First(&touchpoint).Error; findErr != nil {
		return "", notFoundOr(findErr)
	}
	return touchpoint.ID, nil
}

func (localStore *LocalStore) InsertSurveySubmission(ctx context.Context, submission model.SurveySubmission) error {
	return localStore.database.WithContext(ctx).Create(&submission).Error
}

func (localStore *LocalStore) InsertLoyaltyLead(ctx context.Context, lead model.LoyaltyLead) error {
	return localStore.database.WithContext(ctx).Create(&lead).Error
}

func (localStore *LocalStore) ListSurveySubmissions(ctx context.Context, touchpointID string) ([]model.SurveySubmission, error) {
	var submissions []model.SurveySubmission
	findErr := localStore.database.WithContext(ctx).
		Where("touchpoint_id = ?", touchpointID).
		Order("submitted_at DESC").
		Find(&submissions).Error
	return submissions, findErr
}

func (localStore *LocalStore) ListLoyaltyLeads(ctx context.Context, touchpointID string) ([]model.LoyaltyLead, error) {
	var leads []model.LoyaltyLead
	findErr := localStore.database.WithContext(ctx).
		Where("touchpoint_id = ?", touchpointID).
		Order("claimed_at DESC").
		Find(&leads).Error
	return leads, findErr
}

// authorize resolves slug and compares the owner email. A non-empty denial means access is refused.
func (localStore *LocalStore) authorize(ctx context.Context, slug string, email string) (model.Business, model.Touchpoint, string, error) {
	var business model.Business
	findErr := localStore.database.WithContext(ctx).Where("slug = ?", strings.TrimSpace(slug)).First(&business).Error
	if errors.Is(findErr, gorm.ErrRecordNotFound) {
		return model.Business{}, model.Touchpoint{}, DeniedMessageTouchpointMissing, nil
	}
	if findErr != nil {
		return model.Business{}, model.Touchpoint{}, "", findErr
	}
	if business.Email != normalizeEmail(email) {
		return model.Business{}, model.Touchpoint{}, DeniedMessageAccess, nil
	}
	var touchpoint model.Touchpoint
	findErr = localStore.database.WithContext(ctx).Where("business_id = ?", business.ID).First(&touchpoint).Error
	if errors.Is(findErr, gorm.ErrRecordNotFound) {
		return model.Business{}, model.Touchpoint{}, DeniedMessageTouchpointMissing, nil
	}
	if findErr != nil {
		return model.Business{}, model.Touchpoint{}, "", findErr
	}
	return business, touchpoint, "", nil
}

func (localStore *LocalStore) configFor(ctx context.Context, business model.Business, touchpoint model.Touchpoint) (model.TouchpointConfig, error) {
	questions, questionsErr := localStore.SurveyQuestions(ctx, touchpoint.ID)
	if questionsErr != nil {
		return model.TouchpointConfig{}, questionsErr
	}
	return model.TouchpointConfigFor(business, touchpoint, questions), nil
}

func columnAssignments(patch Patch) (map[string]any, []model.SurveyQuestion, bool, error) {
	assignments := make(map[string]any)
	for key, value := range patch {
		kind, patchable := patchableColumns[key]
		if !patchable {
			continue
		}
		switch kind {
		case patchColumnBool:
			flag, isBool := value.(bool)
			if !isBool {
				return nil, nil, false, fmt.Errorf("invalid value for %s: expected boolean", key)
			}
			assignments[key] = flag
		case patchColumnText:
			text, textErr := patchText(key, value)
			if textErr != nil {
				return nil, nil, false, textErr
			}
			assignments[key] = text
		case patchColumnPrimaryMode:
			text, textErr := patchText(key, value)
			if textErr != nil {
				return nil, nil, false, textErr
			}
			assignments[key] = string(model.ParsePrimaryMode(text))
		case patchColumnRedirectMode:
			text, textErr := patchText(key, value)
			if textErr != nil {
				return nil, nil, false, textErr
			}
			assignments[key] = string(model.ParseRedirectMode(text))
		}
	}

	rawQuestions, replaceQuestions := patch[patchKeySurveyQuestions]
	if !replaceQuestions || rawQuestions == nil {
		return assignments, nil, false, nil
	}
	questions, decodeErr := decodeSurveyQuestions(rawQuestions)
	if decodeErr != nil {
		return nil, nil, false, decodeErr
	}
	return assignments, questions, true, nil
}

func patchText(key string, value any) (string, error) {
	switch typed := value.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(typed), nil
	default:
		return "", fmt.Errorf("invalid value for %s: expected string", key)
	}
}

func questionRecord(touchpointID string, question model.SurveyQuestion) (model.SurveyQuestionRecord, error) {
	options := question.Options
	if options == nil {
		options = []string{}
	}
	encodedOptions, encodeErr := json.Marshal(options)
	if encodeErr != nil {
		return model.SurveyQuestionRecord{}, encodeErr
	}
	return model.SurveyQuestionRecord{
		ID:           storage.NewID(),
		TouchpointID: touchpointID,
		SortOrder:    question.SortOrder,
		QuestionType: string(model.ParseQuestionType(string(question.QuestionType))),
		QuestionText: strings.TrimSpace(question.QuestionText),
		Options:      datatypes.JSON(encodedOptions),
	}, nil
}

func uniqueSlug(database *gorm.DB, businessName string) (string, error) {
	base := slugify(businessName)
	candidate := base
	for attempt := 2; attempt <= slugCollisionAttempts; attempt++ {
		var count int64
		if countErr := database.Model(&model.Business{}).Where("slug = ?", candidate).Count(&count).Error; countErr != nil {
			return "", countErr
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}
	return fmt.Sprintf("%s-%s", base, storage.NewID()[:8]), nil
}

func slugify(businessName string) string {
	slug := strings.Trim(slugSeparatorPattern.ReplaceAllString(strings.ToLower(businessName), "-"), "-")
	if len(slug) > slugMaxLength {
		slug = strings.TrimRight(slug[:slugMaxLength], "-")
	}
	if slug == "" {
		return defaultSlugBase
	}
	return slug
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func upstreamFromGorm(operation string, err error) error {
	var upstreamError *UpstreamError
	if errors.As(err, &upstreamError) {
		return err
	}
	return &UpstreamError{Operation: operation, Message: err.Error(), Err: err}
}
