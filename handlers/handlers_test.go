package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/handlers"
	"github.com/hohbackend/budget_backend/integrations"
	"github.com/hohbackend/budget_backend/middlewares"
	"github.com/hohbackend/budget_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T, h *handlers.Handler) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := config.OpenDatabase(config.DatabaseSettings{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "budget.db"),
	})
	require.NoError(t, err)
	config.UseDB(conn)
	config.UseRedis(nil)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
		config.UseDB(nil)
	})
	require.NoError(t, models.MigrateTable())

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware(), middlewares.AuthMiddleware(), middlewares.SessionMiddleware())
	if h == nil {
		h = &handlers.Handler{}
	}
	handlers.Register(r, h)
	return &testServer{t: t, router: r}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(email string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"first_name": "Test",
		"last_name":  "User",
		"email":      email,
		"password":   "secret-password",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var reg struct {
		OTP string `json:"otp"`
	}
	decode(s.t, w, &reg)
	require.Len(s.t, reg.OTP, 6)

	w = s.do(http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": email, "otp": reg.OTP})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "secret-password"})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Data models.LoginInfo `json:"data"`
	}
	decode(s.t, w, &out)
	require.NotEmpty(s.t, out.Data.Token)
	return out.Data.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

type idResponse struct {
	Data struct {
		ID            int `json:"id"`
		VersionNumber int `json:"version_number"`
	} `json:"data"`
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/api/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/projects", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := s.login("alice@example.com")

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/register", "", map[string]string{"first_name": "A", "email": "alice@example.com", "password": "secret-password"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		Data models.User `json:"data"`
	}
	decode(t, w, &me)
	assert.Equal(t, "alice@example.com", me.Data.Email)
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotEmpty(t, w.Header().Get(middlewares.CorrelationHeader))

	w = s.do(http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOTPVerificationOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	creds := map[string]string{"email": "bob@example.com", "password": "secret-password"}

	w := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"first_name": "Bob",
		"email":      creds["email"],
		"password":   creds["password"],
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reg struct {
		Data         models.User `json:"data"`
		OTP          string      `json:"otp"`
		OTPExpiresIn int         `json:"otp_expires_in"`
	}
	decode(t, w, &reg)
	assert.False(t, reg.Data.IsVerified)
	assert.Equal(t, 80, reg.OTPExpiresIn)
	assert.NotContains(t, w.Body.String(), "otp_hash")

	w = s.do(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": creds["email"], "otp": "12ab56"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	wrong := "000000"
	if reg.OTP == wrong {
		wrong = "111111"
	}
	w = s.do(http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": creds["email"], "otp": wrong})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/resend-otp", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/auth/resend-otp", "", map[string]string{"email": creds["email"]})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resent struct {
		OTP string `json:"otp"`
	}
	decode(t, w, &resent)

	w = s.do(http.MethodPost, "/api/auth/verify-otp", "", map[string]string{"email": creds["email"], "otp": resent.OTP})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/auth/resend-otp", "", map[string]string{"email": creds["email"]})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectVersioningOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login("alice@example.com")

	w := s.do(http.MethodPost, "/api/projects", token, map[string]interface{}{"name": "", "start_date": "2025-13-01"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var invalid struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &invalid)
	assert.Contains(t, invalid.Fields, "name")

	w = s.do(http.MethodPost, "/api/projects", token, map[string]interface{}{"name": "Tower A", "location": "Pune"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created idResponse
	decode(t, w, &created)
	assert.Equal(t, 1, created.Data.VersionNumber)
	projectPath := "/api/projects/" + strconv.Itoa(created.Data.ID)

	w = s.do(http.MethodPut, projectPath, token, map[string]interface{}{"location": "Mumbai", "change_reason": "moved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated struct {
		Data            models.Project `json:"data"`
		PreviousVersion int            `json:"previous_version"`
		ChangedFields   []string       `json:"changed_fields"`
	}
	decode(t, w, &updated)
	assert.Equal(t, 2, updated.Data.VersionNumber)
	assert.Equal(t, 1, updated.PreviousVersion)
	assert.Equal(t, []string{"location"}, updated.ChangedFields)

	// same values: no new version
	w = s.do(http.MethodPut, projectPath, token, map[string]interface{}{"location": "Mumbai"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &updated)
	assert.Equal(t, 2, updated.Data.VersionNumber)
	assert.Empty(t, updated.ChangedFields)

	w = s.do(http.MethodGet, projectPath+"/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Current       models.Project          `json:"current_version"`
		History       []models.ProjectVersion `json:"version_history"`
		TotalVersions int                     `json:"total_versions"`
	}
	decode(t, w, &history)
	assert.Equal(t, 2, history.TotalVersions)
	require.Len(t, history.History, 1)
	assert.Equal(t, "alice@example.com", history.History[0].ChangedBy)
	assert.Equal(t, "moved", history.History[0].ChangeReason)
	assert.Equal(t, "Pune", *history.History[0].Location)

	w = s.do(http.MethodPost, "/api/costs", token, map[string]interface{}{
		"project_id":       created.Data.ID,
		"category_code":    "A",
		"category_name":    "Civil",
		"item_description": "Cement",
		"quantity":         "10",
		"rate_per_unit":    "5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/costs?project_id="+strconv.Itoa(created.Data.ID)+"&category_code=a", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var costs struct {
		Data []models.ProjectCost `json:"data"`
	}
	decode(t, w, &costs)
	require.Len(t, costs.Data, 1)
	assert.True(t, costs.Data[0].LineTotal.Equal(decimal.NewFromInt(50)), "line total %s", costs.Data[0].LineTotal)

	w = s.do(http.MethodGet, projectPath+"/latest", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, projectPath+"/export", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Contains(t, f.GetSheetList(), "History")
	require.NoError(t, f.Close())

	w = s.do(http.MethodGet, "/api/projects/9999", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/projects/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/events?project_id="+strconv.Itoa(created.Data.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events struct {
		Data []models.BudgetEvent `json:"data"`
	}
	decode(t, w, &events)
	assert.Len(t, events.Data, 1)

	w = s.do(http.MethodDelete, projectPath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, projectPath, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportMultipartJSON(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login("alice@example.com")

	doc := map[string]interface{}{
		"project": map[string]interface{}{"name": "Villa", "location": "Goa"},
		"cost_line_items": []map[string]interface{}{
			{"category_code": "A", "category_name": "Civil", "item_description": "Cement", "quantity": 10, "rate_per_unit": 5},
		},
		"overheads": []map[string]interface{}{},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "villa.json")
	require.NoError(t, err)
	_, err = part.Write(raw)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out struct {
		Data models.ImportResult `json:"data"`
	}
	decode(t, w, &out)
	assert.Equal(t, "Villa", out.Data.Project.Name)
	require.Len(t, out.Data.Costs, 1)

	w = s.do(http.MethodGet, "/api/activities?action_type=import", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var activities struct {
		Data []models.Activity `json:"data"`
	}
	decode(t, w, &activities)
	assert.NotEmpty(t, activities.Data)

	w = s.do(http.MethodPost, "/api/imports", token, map[string]interface{}{"project": map[string]interface{}{"name": ""}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubChatbot struct {
	reply *integrations.ChatbotReply
}

func (b *stubChatbot) Ask(_ context.Context, _ *integrations.ChatbotRequest) (*integrations.ChatbotReply, error) {
	return b.reply, nil
}

func TestChatProposalOverHTTP(t *testing.T) {
	bot := &stubChatbot{reply: &integrations.ChatbotReply{
		Answer: "Use 20 bags",
		Costing: &integrations.ChatbotCosting{
			Status: "success",
			Data: &models.CostingData{
				Project: models.CostingProject{Name: "Tower A", Location: "Pune", TotalCost: 100},
				CostLineItems: []models.CostingLineItem{
					{CategoryCode: "A", CategoryName: "Civil", ItemDescription: "Cement", Quantity: 20, RatePerUnit: 5},
				},
			},
		},
		Raw: json.RawMessage(`{"answer":"Use 20 bags"}`),
	}}
	s := newTestServer(t, &handlers.Handler{Chatbot: bot})
	token := s.login("alice@example.com")
	other := s.login("bob@example.com")

	w := s.do(http.MethodPost, "/api/projects", token, map[string]interface{}{"name": "Tower A", "location": "Pune"})
	require.Equal(t, http.StatusCreated, w.Code)
	var project idResponse
	decode(t, w, &project)
	w = s.do(http.MethodPost, "/api/costs", token, map[string]interface{}{
		"project_id": project.Data.ID, "category_code": "A", "category_name": "Civil",
		"item_description": "Cement", "quantity": "10", "rate_per_unit": "5",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var cost idResponse
	decode(t, w, &cost)

	w = s.do(http.MethodPost, "/api/chat/sessions", token, map[string]int{"project_id": project.Data.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var start struct {
		Data models.ChatStart `json:"data"`
	}
	decode(t, w, &start)
	messagesPath := "/api/chat/conversations/" + strconv.Itoa(start.Data.Conversation.ID) + "/messages"

	w = s.do(http.MethodPost, messagesPath, other, map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, messagesPath, token, map[string]string{"content": "How many bags?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var exchange struct {
		Data struct {
			Proposal *models.CostProposal `json:"proposal"`
		} `json:"data"`
	}
	decode(t, w, &exchange)
	require.NotNil(t, exchange.Data.Proposal)

	w = s.do(http.MethodPost, "/api/chat/proposals/"+strconv.Itoa(exchange.Data.Proposal.ID)+"/accept", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/costs/"+strconv.Itoa(cost.Data.ID)+"/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		History []models.ProjectCostVersion `json:"version_history"`
	}
	decode(t, w, &history)
	require.Len(t, history.History, 1)
	assert.Equal(t, models.ChatAcceptActor("alice@example.com"), history.History[0].ChangedBy)

	w = s.do(http.MethodPost, "/api/chat/proposals/"+strconv.Itoa(exchange.Data.Proposal.ID)+"/accept", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnconfiguredClients(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login("alice@example.com")

	w := s.do(http.MethodPost, "/api/news/fetch", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = s.do(http.MethodPost, "/api/news/process", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(http.MethodGet, "/api/news/alerts", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExplicitNullClearsFieldOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login("alice@example.com")

	w := s.do(http.MethodPost, "/api/projects", token, map[string]interface{}{"name": "Tower A", "location": "NY"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created idResponse
	decode(t, w, &created)
	projectPath := "/api/projects/" + strconv.Itoa(created.Data.ID)

	w = s.do(http.MethodPut, projectPath, token, map[string]interface{}{"location": nil})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated struct {
		Data          models.Project `json:"data"`
		ChangedFields []string       `json:"changed_fields"`
	}
	decode(t, w, &updated)
	assert.Nil(t, updated.Data.Location)
	assert.Equal(t, 2, updated.Data.VersionNumber)
	assert.Equal(t, []string{"location"}, updated.ChangedFields)

	w = s.do(http.MethodPut, projectPath, token, map[string]interface{}{"name": nil})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
