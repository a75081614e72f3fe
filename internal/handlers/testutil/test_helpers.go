package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/api"
	iauth "github.com/charlesng35/shiftlog/internal/auth"
	sharedtestutil "github.com/charlesng35/shiftlog/internal/database/testutil"
	"github.com/charlesng35/shiftlog/internal/middleware"
	"github.com/charlesng35/shiftlog/internal/models"
	"github.com/charlesng35/shiftlog/internal/realtime"
	"github.com/charlesng35/shiftlog/internal/services"
	"github.com/charlesng35/shiftlog/pkg/crypto"
	"github.com/charlesng35/shiftlog/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Hub      *realtime.Hub
	Services *services.Stack
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	hub := realtime.NewHub(realtime.WithPushTimeout(500 * time.Millisecond))
	t.Cleanup(hub.Close)

	stack, err := services.NewStack(db, hub, services.StackConfig{})
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:             db,
		JWT:            jwtSvc,
		Hub:            hub,
		Services:       stack,
		RateStore:      middleware.NewMemoryRateStore(),
		LoginRateLimit: 1000,
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Hub:      hub,
		Services: stack,
	}
}

// CreateUser inserts a user with a hashed password.
func (e *Env) CreateUser(username, password, role string, validated bool) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Username:    username,
		Email:       username + "@example.com",
		Password:    hashed,
		Role:        role,
		IsValidated: validated,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// Token issues an access token for the user without going through login.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Username: user.Username, Role: user.Role})
	require.NoError(e.T, err)
	return token
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        models.User `json:"user"`
}

// Login authenticates with username and password and returns the issued token.
func (e *Env) Login(username, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"username": username,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Equal(e.T, username, result.User.Username)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success  bool                `json:"success"`
	Data     json.RawMessage     `json:"data"`
	Error    *response.ErrorInfo `json:"error"`
	Meta     *response.Meta      `json:"meta"`
	Warnings []string            `json:"warnings"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
