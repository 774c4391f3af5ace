package leadstagenotify

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"amocrm-relay/internal/common/amocrm"
	"amocrm-relay/internal/common/config"
	"amocrm-relay/internal/common/logger"
)

// ==========================
// Mock Implementations
// ==========================

type MockCRM struct {
	mock.Mock
}

func (m *MockCRM) GetLead(ctx context.Context, leadID string) (*amocrm.Lead, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*amocrm.Lead), args.Error(1)
}

func (m *MockCRM) ListContacts(ctx context.Context, ids []int64) ([]amocrm.Contact, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]amocrm.Contact), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Name() string { return "mock" }

func (m *MockNotifier) Notify(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

// ==========================
// Test Helpers
// ==========================

func createValidConfig() *Config {
	return &Config{
		WebhookSecret: "s3cret",
		AmoBaseURL:    "https://acme.amocrm.ru",
		LeadFields:    config.DefaultLeadFields("1057359"),
		ContactFields: config.DefaultContactFields(),
		ContactLimit:  3,
		Labels:        DefaultLabels(),
		Timeout:       30 * time.Second,
	}
}

func newTestRouter(t *testing.T, crm CRM, cfg *Config, notifiers ...Notifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h, err := NewHandler(HandlerOptions{
		CustomConfig: cfg,
		Logger:       logger.NewTestLogger(t),
		CRM:          crm,
		Notifiers:    notifiers,
	})
	require.NoError(t, err)

	router := gin.New()
	h.Register(router, "/webhooks/amocrm/stage")
	return router
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	tests := []struct {
		name    string
		opts    HandlerOptions
		wantErr string
	}{
		{
			name: "valid configuration",
			opts: HandlerOptions{CustomConfig: createValidConfig(), CRM: new(MockCRM), Logger: logger.NewNoOpLogger()},
		},
		{
			name: "defaults from app config",
			opts: HandlerOptions{AppConfig: &config.Config{}, CRM: new(MockCRM), Logger: logger.NewNoOpLogger()},
		},
		{
			name:    "missing crm",
			opts:    HandlerOptions{CustomConfig: createValidConfig()},
			wantErr: "crm client is required",
		},
		{
			name: "invalid contact limit",
			opts: HandlerOptions{
				CustomConfig: func() *Config { c := createValidConfig(); c.ContactLimit = 0; return c }(),
				CRM:          new(MockCRM),
			},
			wantErr: "contact_limit must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, h.GetConfig())
		})
	}
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	app := &config.Config{
		Amo:           config.AmoConfig{BaseURL: "https://acme.amocrm.ru/", WebhookSecret: "x"},
		CF:            config.CustomFieldsConfig{ContactLimit: 5},
		Card:          config.CardConfig{Title: "Deal"},
		LeadFields:    config.FieldMap{{Key: "k", Target: "1"}},
		ContactFields: config.FieldMap{{Key: "p", Target: config.TargetPhone}},
	}

	cfg := createConfigFromAppConfig(app, nil)
	assert.Equal(t, "https://acme.amocrm.ru", cfg.AmoBaseURL)
	assert.Equal(t, "x", cfg.WebhookSecret)
	assert.Equal(t, 5, cfg.ContactLimit)
	assert.Equal(t, "Deal", cfg.Labels.Title)
	assert.Equal(t, "Без названия", cfg.Labels.Untitled)
	assert.Equal(t, app.LeadFields, cfg.LeadFields)
	assert.Equal(t, app.ContactFields, cfg.ContactFields)
	require.NoError(t, cfg.Validate())
}

// ==========================
// Request Handling Tests
// ==========================

func TestHandler_BadSecret(t *testing.T) {
	crm := new(MockCRM)
	router := newTestRouter(t, crm, createValidConfig())

	for _, target := range []string{
		"/webhooks/amocrm/stage?lead_id=42",
		"/webhooks/amocrm/stage?lead_id=42&secret=wrong",
	} {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		w := serve(router, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"ok":false,"error":"bad secret"}`, w.Body.String())
	}
	crm.AssertNotCalled(t, "GetLead", mock.Anything, mock.Anything)
}

func TestHandler_JSONBody(t *testing.T) {
	crm := new(MockCRM)
	crm.On("GetLead", mock.Anything, "42").Return(decodeLead(t, `{"id": 42, "name": "Deal", "price": 100}`), nil)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	router := newTestRouter(t, crm, createValidConfig(), notifier)

	body := `{"leads":{"status":[{"id":42}]},"leads[status][0][id]":[" 42 "]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/amocrm/stage", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set(SecretHeader, "s3cret")
	w := serve(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"ok": true,
		"webhook_minimal": {"leads": "{\"status\":[{\"id\":42}]}", "leads[status][0][id]": "42"},
		"leads_full": [{
			"id": "42",
			"name": "Deal",
			"price": 100,
			"pipeline_id": null,
			"status_id": null,
			"custom_fields": {"training_day": null},
			"contacts": [],
			"link": "https://acme.amocrm.ru/leads/detail/42"
		}]
	}`, w.Body.String())
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestHandler_FormAndQuery(t *testing.T) {
	crm := new(MockCRM)
	crm.On("GetLead", mock.Anything, "7").Return(nil, assert.AnError)

	router := newTestRouter(t, crm, createValidConfig())

	form := "leads%5Bstatus%5D%5B0%5D%5Bid%5D=7&account%5Bsubdomain%5D=acme"
	req := httptest.NewRequest(http.MethodPost, "/webhooks/amocrm/stage?secret=s3cret&account%5Bsubdomain%5D=other", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"ok": true,
		"webhook_minimal": {"leads[status][0][id]": "7", "account[subdomain]": "acme", "secret": "s3cret"},
		"leads_full": []
	}`, w.Body.String())
	crm.AssertExpectations(t)
}

func TestHandler_Multipart(t *testing.T) {
	crm := new(MockCRM)
	crm.On("GetLead", mock.Anything, "9").Return(nil, assert.AnError)
	router := newTestRouter(t, crm, createValidConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("lead_id", "9"))
	fw, err := mw.CreateFormFile("attachment", "card.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("ignored"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("account[id]", "5"))
	require.NoError(t, mw.WriteField("lead_id", "10"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/amocrm/stage", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(SecretHeader, "s3cret")
	w := serve(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"webhook_minimal":{"lead_id":"9","account[id]":"5"},"leads_full":[]}`, w.Body.String())
	assert.Contains(t, w.Body.String(), `"webhook_minimal":{"lead_id":"9","account[id]":"5"}`, "fields keep wire order")
	crm.AssertExpectations(t)
}

func TestHandler_MalformedJSONBody(t *testing.T) {
	crm := new(MockCRM)
	crm.On("GetLead", mock.Anything, "3").Return(nil, assert.AnError)
	router := newTestRouter(t, crm, createValidConfig())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/amocrm/stage?secret=s3cret&lead_id=3",
		strings.NewReader(`{"lead_id": "99"`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"webhook_minimal":{"secret":"s3cret","lead_id":"3"},"leads_full":[]}`, w.Body.String())
	crm.AssertExpectations(t)
}

func TestHandler_GetWithoutSecretConfigured(t *testing.T) {
	crm := new(MockCRM)
	cfg := createValidConfig()
	cfg.WebhookSecret = ""
	router := newTestRouter(t, crm, cfg)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/amocrm/stage?foo=bar", nil)
	w := serve(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"webhook_minimal":{"foo":"bar"},"leads_full":[]}`, w.Body.String())
	crm.AssertNotCalled(t, "GetLead", mock.Anything, mock.Anything)
}

func TestIsJSONMediaType(t *testing.T) {
	assert.True(t, isJSONMediaType("application/json"))
	assert.True(t, isJSONMediaType("application/hal+json"))
	assert.False(t, isJSONMediaType("text/plain"))
	assert.False(t, isJSONMediaType("application/x-www-form-urlencoded"))
}

func TestHandler_LeadWithoutFieldsOrContacts(t *testing.T) {
	crm := new(MockCRM)
	crm.On("GetLead", mock.Anything, "42").Return(decodeLead(t, `{"id": 42, "name": "Bare"}`), nil)
	router := newTestRouter(t, crm, createValidConfig())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/amocrm/stage?secret=s3cret",
		strings.NewReader(`{"leads[status][0][id]": "42"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(router, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		LeadsFull []struct {
			ID           string                 `json:"id"`
			Contacts     []interface{}          `json:"contacts"`
			CustomFields map[string]interface{} `json:"custom_fields"`
		} `json:"leads_full"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.LeadsFull, 1)
	assert.Equal(t, "42", resp.LeadsFull[0].ID)
	assert.NotNil(t, resp.LeadsFull[0].Contacts)
	assert.Empty(t, resp.LeadsFull[0].Contacts)
	v, ok := resp.LeadsFull[0].CustomFields["training_day"]
	assert.True(t, ok)
	assert.Nil(t, v)
	crm.AssertNotCalled(t, "ListContacts", mock.Anything, mock.Anything)
}
