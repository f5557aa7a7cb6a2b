package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/httpapi"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/store"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/task"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/testutil"
)

const (
	testBusinessName = "Bright Smile Dental"
	testOwnerEmail   = "owner@brightsmile.example"
	testReviewURL    = "https://g.page/r/bright-smile/review"
	testBusinessSlug = "bright-smile-dental"
	jsonContentType  = "application/json"
	formContentType  = "application/x-www-form-urlencoded"
)

type dispatchedEvent struct {
	TouchpointID string
	EventType    model.EventType
}

// recordingEventSink mirrors the dispatcher allow-list and remembers accepted events.
type recordingEventSink struct {
	mutex  sync.Mutex
	events []dispatchedEvent
}

func (sink *recordingEventSink) Dispatch(touchpointID string, eventType model.EventType) error {
	if !model.IsLoggableEventType(string(eventType)) {
		return task.ErrEventTypeNotAllowed
	}
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.events = append(sink.events, dispatchedEvent{TouchpointID: touchpointID, EventType: eventType})
	return nil
}

func (sink *recordingEventSink) Types() []model.EventType {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	types := make([]model.EventType, 0, len(sink.events))
	for _, event := range sink.events {
		types = append(types, event.EventType)
	}
	return types
}

type testHarness struct {
	router *gin.Engine
	store  *store.LocalStore
	events *recordingEventSink
}

func newTestHarness(testingT *testing.T) testHarness {
	testingT.Helper()
	return newWrappedTestHarness(testingT, nil)
}

// newWrappedTestHarness serves the API from wrap(localStore) when wrap is set.
func newWrappedTestHarness(testingT *testing.T, wrap func(*store.LocalStore) store.Store) testHarness {
	testingT.Helper()
	gin.SetMode(gin.TestMode)

	localStore := store.NewLocalStore(testutil.OpenMigratedDatabase(testingT))
	events := &recordingEventSink{}
	logger := zap.NewNop()

	var apiStore store.Store = localStore
	if wrap != nil {
		apiStore = wrap(localStore)
	}
	apiHandlers := httpapi.NewAPIHandlers(apiStore, logger)
	pageHandlers, pageErr := httpapi.NewPageHandlers(localStore, events, logger)
	require.NoError(testingT, pageErr)

	router := gin.New()
	router.Use(httpapi.RequestID(), httpapi.RecoverEnvelope(logger))

	httpapi.RegisterAPIRoutes(router.Group(httpapi.APIRoutePrefix), apiHandlers)
	httpapi.RegisterPageRoutes(router, pageHandlers)

	return testHarness{router: router, store: localStore, events: events}
}

// provisionTouchpoint creates the test business and applies patch to its touchpoint.
func (harness testHarness) provisionTouchpoint(testingT *testing.T, patch store.Patch) store.ProvisionResult {
	testingT.Helper()
	result, provisionErr := harness.store.Provision(context.Background(), store.ProvisionInput{
		BusinessName:    testBusinessName,
		Email:           testOwnerEmail,
		GoogleReviewURL: testReviewURL,
	})
	require.NoError(testingT, provisionErr)
	require.True(testingT, result.OK)
	if len(patch) > 0 {
		updateResult, updateErr := harness.store.UpdateTouchpoint(context.Background(), result.Slug, testOwnerEmail, patch)
		require.NoError(testingT, updateErr)
		require.True(testingT, updateResult.OK)
	}
	return result
}

func (harness testHarness) postJSON(testingT *testing.T, path string, body any) *httptest.ResponseRecorder {
	testingT.Helper()
	encoded, encodeErr := json.Marshal(body)
	require.NoError(testingT, encodeErr)
	return harness.postRaw(path, jsonContentType, encoded)
}

func (harness testHarness) postRaw(path string, contentType string, body []byte) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func (harness testHarness) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	return harness.postRaw(path, formContentType, []byte(values.Encode()))
}

func (harness testHarness) get(path string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, path, nil)
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeEnvelope(testingT *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	testingT.Helper()
	var envelope map[string]any
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &envelope), recorder.Body.String())
	requestID, isString := envelope["requestId"].(string)
	require.True(testingT, isString)
	require.True(testingT, strings.HasPrefix(requestID, "req_"))
	return envelope
}

func requireFailure(testingT *testing.T, recorder *httptest.ResponseRecorder, expectedStatus int, expectedMessage string) {
	testingT.Helper()
	require.Equal(testingT, expectedStatus, recorder.Code, recorder.Body.String())
	envelope := decodeEnvelope(testingT, recorder)
	require.Equal(testingT, false, envelope["ok"])
	require.Equal(testingT, expectedMessage, envelope["error"])
}
