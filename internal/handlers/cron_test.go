package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/notifyai/notification-service/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) ProcessDue(ctx context.Context) (*dispatch.Report, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*dispatch.Report), args.Error(1)
	}
	return nil, args.Error(1)
}

func cronRouter(dispatcher Dispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewCronHandler(dispatcher, "cron-secret", zap.NewNop())
	router := gin.New()
	router.GET("/api/cron/scheduled-notifications", handler.ProcessScheduledNotifications)
	return router
}

func TestCron_Unauthorized(t *testing.T) {
	dispatcher := new(MockDispatcher)
	router := cronRouter(dispatcher)

	req, _ := http.NewRequest("GET", "/api/cron/scheduled-notifications", nil)
	req.Header.Set("x-api-key", "wrong")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	// No batch is even attempted for an unauthorized caller.
	dispatcher.AssertNotCalled(t, "ProcessDue", mock.Anything)
}

func TestCron_MissingKey(t *testing.T) {
	dispatcher := new(MockDispatcher)
	router := cronRouter(dispatcher)

	req, _ := http.NewRequest("GET", "/api/cron/scheduled-notifications", nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	dispatcher.AssertNotCalled(t, "ProcessDue", mock.Anything)
}

func TestCron_NoKeyConfiguredRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dispatcher := new(MockDispatcher)
	handler := NewCronHandler(dispatcher, "", zap.NewNop())
	router := gin.New()
	router.GET("/api/cron/scheduled-notifications", handler.ProcessScheduledNotifications)

	// No header matches an empty configured key; the endpoint must
	// still refuse.
	req, _ := http.NewRequest("GET", "/api/cron/scheduled-notifications", nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	dispatcher.AssertNotCalled(t, "ProcessDue", mock.Anything)
}

func TestCron_EmptyBatch(t *testing.T) {
	dispatcher := new(MockDispatcher)
	dispatcher.On("ProcessDue", mock.Anything).Return(&dispatch.Report{Processed: 0, Results: []dispatch.Result{}}, nil)
	router := cronRouter(dispatcher)

	req, _ := http.NewRequest("GET", "/api/cron/scheduled-notifications", nil)
	req.Header.Set("x-api-key", "cron-secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, "No notifications to process", body["message"])
}

func TestCron_ReportsBatch(t *testing.T) {
	dispatcher := new(MockDispatcher)
	dispatcher.On("ProcessDue", mock.Anything).Return(&dispatch.Report{
		Processed: 2,
		Results: []dispatch.Result{
			{ID: "s-1", Success: true},
			{ID: "s-2", Success: false, Error: "provider exploded"},
		},
	}, nil)
	router := cronRouter(dispatcher)

	req, _ := http.NewRequest("GET", "/api/cron/scheduled-notifications", nil)
	req.Header.Set("x-api-key", "cron-secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Processed int               `json:"processed"`
		Results   []dispatch.Result `json:"results"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	assert.Equal(t, 2, body.Processed)
	assert.Len(t, body.Results, 2)
	assert.True(t, body.Results[0].Success)
	assert.Equal(t, "provider exploded", body.Results[1].Error)
}

func TestCron_ClaimFailureIs500(t *testing.T) {
	dispatcher := new(MockDispatcher)
	dispatcher.On("ProcessDue", mock.Anything).Return(nil, errors.New("db down"))
	router := cronRouter(dispatcher)

	req, _ := http.NewRequest("GET", "/api/cron/scheduled-notifications", nil)
	req.Header.Set("x-api-key", "cron-secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
