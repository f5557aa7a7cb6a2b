// Package apiclient talks to the EZinfo JSON API. It backs the admin CLI and can submit
// surveys on behalf of a survey.Flow.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/survey"
)

const (
	DefaultTimeout = 15 * time.Second

	apiPrefix            = "/api/ezinfo"
	pathApply            = apiPrefix + "/apply"
	pathAdminLogin       = apiPrefix + "/admin/login"
	pathSubmissions      = apiPrefix + "/admin/submissions"
	pathUpdateTouchpoint = apiPrefix + "/touchpoint/update"
	pathEvent            = apiPrefix + "/event"
	pathOfferClaim       = apiPrefix + "/offer/claim"
	pathSurveySubmit     = apiPrefix + "/survey/submit"
	pathReviewRewrite    = apiPrefix + "/ai/rewrite"

	jsonContentType       = "application/json"
	csvContentType        = "text/csv"
	submissionsFormatCSV  = "csv"
	errorBodyPreviewLimit = 200
)

var (
	ErrMissingBaseURL     = errors.New("apiclient_missing_base_url")
	ErrMalformedResponse  = errors.New("apiclient_malformed_response")
	ErrUnexpectedCSVReply = errors.New("apiclient_unexpected_csv_reply")
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (apiError *APIError) Error() string {
	if apiError.RequestID == "" {
		return fmt.Sprintf("ezinfo api: %d %s", apiError.Status, apiError.Message)
	}
	return fmt.Sprintf("ezinfo api: %d %s (request %s)", apiError.Status, apiError.Message, apiError.RequestID)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for baseURL. A nil httpClient gets DefaultTimeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	normalizedBaseURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if normalizedBaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: normalizedBaseURL, httpClient: httpClient}, nil
}

type envelope struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

type ApplyInput struct {
	BusinessName    string `json:"business_name"`
	OwnerName       string `json:"owner_name,omitempty"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	GoogleReviewURL string `json:"google_review_url"`
	Notes           string `json:"notes,omitempty"`
}

type Provisioned struct {
	AlreadyExists bool   `json:"already_exists"`
	Slug          string `json:"slug"`
	BusinessID    string `json:"business_id"`
	TouchpointID  string `json:"touchpoint_id"`
}

func (client *Client) Apply(ctx context.Context, input ApplyInput) (Provisioned, error) {
	var response struct {
		AlreadyExists bool        `json:"already_exists"`
		Provisioned   Provisioned `json:"provisioned"`
	}
	if postErr := client.post(ctx, pathApply, input, &response); postErr != nil {
		return Provisioned{}, postErr
	}
	provisioned := response.Provisioned
	provisioned.AlreadyExists = response.AlreadyExists
	return provisioned, nil
}

// AdminLogin returns the configuration of the touchpoint owned by email.
func (client *Client) AdminLogin(ctx context.Context, slug string, email string) (model.TouchpointConfig, error) {
	var response struct {
		Config model.TouchpointConfig `json:"config"`
	}
	payload := map[string]string{"slug": slug, "email": email}
	if postErr := client.post(ctx, pathAdminLogin, payload, &response); postErr != nil {
		return model.TouchpointConfig{}, postErr
	}
	return response.Config, nil
}

// UpdateTouchpoint sends patch and returns the stored configuration. It satisfies studio.Saver.
func (client *Client) UpdateTouchpoint(ctx context.Context, slug string, email string, patch map[string]any) (model.TouchpointConfig, error) {
	var response struct {
		Touchpoint model.TouchpointConfig `json:"touchpoint"`
	}
	payload := map[string]any{"slug": slug, "email": email, "patch": patch}
	if postErr := client.post(ctx, pathUpdateTouchpoint, payload, &response); postErr != nil {
		return model.TouchpointConfig{}, postErr
	}
	return response.Touchpoint, nil
}

func (client *Client) Submissions(ctx context.Context, slug string, email string) ([]model.Submission, error) {
	var response struct {
		Submissions []model.Submission `json:"submissions"`
	}
	payload := map[string]string{"slug": slug, "email": email}
	if postErr := client.post(ctx, pathSubmissions, payload, &response); postErr != nil {
		return nil, postErr
	}
	return response.Submissions, nil
}

// SubmissionsCSV downloads the CSV export as text.
func (client *Client) SubmissionsCSV(ctx context.Context, slug string, email string) (string, error) {
	payload := map[string]string{"slug": slug, "email": email, "format": submissionsFormatCSV}
	status, header, body, sendErr := client.send(ctx, pathSubmissions, payload)
	if sendErr != nil {
		return "", sendErr
	}
	if status != http.StatusOK {
		return "", failure(status, body)
	}
	if !strings.HasPrefix(header.Get("Content-Type"), csvContentType) {
		return "", fmt.Errorf("%w: content type %q", ErrUnexpectedCSVReply, header.Get("Content-Type"))
	}
	return string(body), nil
}

func (client *Client) LogEvent(ctx context.Context, touchpointID string, eventType model.EventType) (string, error) {
	var response struct {
		EventID string `json:"event_id"`
	}
	payload := map[string]string{"touchpoint_id": touchpointID, "event_type": string(eventType)}
	if postErr := client.post(ctx, pathEvent, payload, &response); postErr != nil {
		return "", postErr
	}
	return response.EventID, nil
}

func (client *Client) ClaimOffer(ctx context.Context, touchpointID string, email string) (model.LoyaltyLead, error) {
	var response struct {
		Lead model.LoyaltyLead `json:"lead"`
	}
	payload := map[string]string{"touchpoint_id": touchpointID, "email": email}
	if postErr := client.post(ctx, pathOfferClaim, payload, &response); postErr != nil {
		return model.LoyaltyLead{}, postErr
	}
	return response.Lead, nil
}

// SubmitSurvey satisfies survey.Submitter. Network failures wrap survey.ErrTransport.
func (client *Client) SubmitSurvey(ctx context.Context, submission survey.Submission) (string, error) {
	answers := submission.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	var response struct {
		SubmissionID string `json:"submission_id"`
	}
	payload := map[string]any{
		"touchpoint_id": submission.TouchpointID,
		"email":         submission.Email,
		"answers":       answers,
	}
	if postErr := client.post(ctx, pathSurveySubmit, payload, &response); postErr != nil {
		return "", postErr
	}
	return response.SubmissionID, nil
}

func (client *Client) RewriteReview(ctx context.Context, text string, tone string, mode string) (string, error) {
	var response struct {
		RewrittenText string `json:"rewritten_text"`
	}
	payload := map[string]string{"text": text, "ai_tone": tone, "ai_mode": mode}
	if postErr := client.post(ctx, pathReviewRewrite, payload, &response); postErr != nil {
		return "", postErr
	}
	return response.RewrittenText, nil
}

// post sends payload and decodes a success envelope into target.
func (client *Client) post(ctx context.Context, path string, payload any, target any) error {
	status, _, body, sendErr := client.send(ctx, path, payload)
	if sendErr != nil {
		return sendErr
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return failure(status, body)
	}
	var decoded envelope
	if decodeErr := json.Unmarshal(body, &decoded); decodeErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	if !decoded.OK {
		return &APIError{Status: status, Message: decoded.Error, RequestID: decoded.RequestID}
	}
	if decodeErr := json.Unmarshal(body, target); decodeErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	return nil
}

func (client *Client) send(ctx context.Context, path string, payload any) (int, http.Header, []byte, error) {
	encoded, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		return 0, nil, nil, fmt.Errorf("encode %s request: %w", path, encodeErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+path, bytes.NewReader(encoded))
	if requestErr != nil {
		return 0, nil, nil, fmt.Errorf("build %s request: %w", path, requestErr)
	}
	request.Header.Set("Content-Type", jsonContentType)

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return 0, nil, nil, fmt.Errorf("%w: %s: %v", survey.ErrTransport, path, doErr)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return 0, nil, nil, fmt.Errorf("%w: read %s response: %v", survey.ErrTransport, path, readErr)
	}
	return response.StatusCode, response.Header, body, nil
}

// failure builds an APIError from a non-2xx reply, falling back to the raw body.
func failure(status int, body []byte) error {
	var decoded envelope
	if decodeErr := json.Unmarshal(body, &decoded); decodeErr == nil && decoded.Error != "" {
		return &APIError{Status: status, Message: decoded.Error, RequestID: decoded.RequestID}
	}
	preview := strings.TrimSpace(string(body))
	if len(preview) > errorBodyPreviewLimit {
		preview = preview[:errorBodyPreviewLimit]
	}
	if preview == "" {
		preview = http.StatusText(status)
	}
	return &APIError{Status: status, Message: preview}
}
