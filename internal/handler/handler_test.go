package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/neilb14/users-service/internal/auth"
	"github.com/neilb14/users-service/internal/config"
	"github.com/neilb14/users-service/internal/middleware"
	"github.com/neilb14/users-service/internal/repository"
	"github.com/neilb14/users-service/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	router http.Handler
	svc    *service.Service
	tokens *auth.TokenCodec
	repo   *repository.MemoryRepository
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	AuthToken string          `json:"auth_token"`
	Data      json.RawMessage `json:"data"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{SecretKey: "test-secret", BcryptCost: bcrypt.MinCost}
	log, _ := logtest.NewNullLogger()
	repo := repository.NewMemoryRepository()
	tokens := auth.NewTokenCodec(cfg)
	svc := service.NewService(repo, auth.NewHasher(cfg), tokens, nil, log)

	reg := prometheus.NewRegistry()
	metrics, err := middleware.NewMetrics(reg)
	require.NoError(t, err)

	h := NewHandler(svc, log)
	router := NewRouter(h, middleware.AuthMiddleware(svc, log), metrics, reg, log)
	return &testEnv{router: router, svc: svc, tokens: tokens, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (e *testEnv) register(t *testing.T, username, email string) string {
	t.Helper()
	body := `{"username":"` + username + `","email":"` + email + `","password":"greaterthaneight"}`
	rec, env := e.do(t, http.MethodPost, "/auth/register", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return env.AuthToken
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/ping", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "pong!", body.Message)
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/auth/register",
		`{"username":"neil","email":"neil@example.com","password":"greaterthaneight"}`, "")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "Successfully registered.", body.Message)
	require.NotEmpty(t, body.AuthToken)

	id, err := env.tokens.Decode(body.AuthToken)
	require.NoError(t, err)
	user, err := env.svc.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "neil@example.com", user.Email)
	assert.True(t, user.Active)
}

func TestRegister_InvalidPayloads(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		``,
		`{}`,
		`[]`,
		`not json`,
		`{"email":"neil@example.com","password":"greaterthaneight"}`,
		`{"username":"neil","password":"greaterthaneight"}`,
		`{"username":"neil","email":"neil@example.com"}`,
		`{"username":"neil","email":"neil@example.com","password":42}`,
		`{"username":" ","email":"neil@example.com","password":"greaterthaneight"}`,
	} {
		rec, resp := env.do(t, http.MethodPost, "/auth/register", body, "")

		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, "error", resp.Status, "body %q", body)
		assert.Equal(t, "Invalid payload.", resp.Message, "body %q", body)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "neil", "neil@example.com")

	for _, body := range []string{
		`{"username":"neil","email":"other@example.com","password":"greaterthaneight"}`,
		`{"username":"other","email":"neil@example.com","password":"greaterthaneight"}`,
	} {
		rec, resp := env.do(t, http.MethodPost, "/auth/register", body, "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, "Sorry. That user already exists.", resp.Message)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "neil", "neil@example.com")

	rec, body := env.do(t, http.MethodPost, "/auth/login",
		`{"email":"neil@example.com","password":"greaterthaneight"}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "Successfully logged in.", body.Message)
	assert.NotEmpty(t, body.AuthToken)
}

func TestLogin_UniformNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "neil", "neil@example.com")

	unknownRec, unknown := env.do(t, http.MethodPost, "/auth/login",
		`{"email":"nobody@example.com","password":"greaterthaneight"}`, "")
	wrongRec, wrong := env.do(t, http.MethodPost, "/auth/login",
		`{"email":"neil@example.com","password":"wrongpassword"}`, "")

	assert.Equal(t, http.StatusNotFound, unknownRec.Code)
	assert.Equal(t, unknownRec.Code, wrongRec.Code)
	assert.Equal(t, "User does not exist.", unknown.Message)
	assert.Equal(t, unknown, wrong)
}

func TestLogin_InvalidPayload(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{``, `{}`, `{"email":"neil@example.com"}`} {
		rec, resp := env.do(t, http.MethodPost, "/auth/login", body, "")

		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, "Invalid payload.", resp.Message, "body %q", body)
	}
}

func TestAddUser_Success(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "neil", "neil@example.com")

	rec, body := env.do(t, http.MethodPost, "/users",
		`{"username":"juneau","email":"juneau@example.com","password":"greaterthaneight"}`, token)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "juneau@example.com was added!", body.Message)
	assert.Empty(t, body.AuthToken)
}

func TestAddUser_PayloadErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "neil", "neil@example.com")

	cases := []struct {
		body string
		msg  string
	}{
		{``, "Invalid payload"},
		{`{}`, "Invalid payload"},
		{`{"email":"a@b.com"}`, "Invalid payload keys"},
		{`{"username":"a","email":"a@b.com"}`, "Invalid payload keys"},
		{`{"username":"","email":"a@b.com","password":"greaterthaneight"}`, "Invalid payload keys"},
		{`{"username":"neil","email":"a@b.com","password":"greaterthaneight"}`, "User already exists."},
	}
	for _, c := range cases {
		rec, body := env.do(t, http.MethodPost, "/users", c.body, token)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", c.body)
		assert.Equal(t, "fail", body.Status, "body %q", c.body)
		assert.Equal(t, c.msg, body.Message, "body %q", c.body)
	}
}

func TestAddUser_Gate(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "neil", "neil@example.com")
	payload := `{"username":"juneau","email":"juneau@example.com","password":"greaterthaneight"}`

	rec, body := env.do(t, http.MethodPost, "/users", payload, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Provide a valid auth token.", body.Message)

	rec, body = env.do(t, http.MethodPost, "/users", payload, token+"x")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token. Please log in again.", body.Message)

	id, err := env.tokens.Decode(token)
	require.NoError(t, err)
	expired, err := env.tokens.Encode(id, time.Now().Add(-auth.TokenTTL-time.Minute))
	require.NoError(t, err)
	rec, body = env.do(t, http.MethodPost, "/users", payload, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Signature expired. Please log in again.", body.Message)

	orphan, err := env.tokens.Encode(999, time.Now())
	require.NoError(t, err)
	rec, body = env.do(t, http.MethodPost, "/users", payload, orphan)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token. Please log in again.", body.Message)

	users, err := env.svc.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAddUser_InactiveCanLoginButNotWrite(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "neil", "neil@example.com")
	id, err := env.tokens.Decode(token)
	require.NoError(t, err)
	require.NoError(t, env.svc.SetActive(context.Background(), id, false))

	rec, body := env.do(t, http.MethodPost, "/auth/login",
		`{"email":"neil@example.com","password":"greaterthaneight"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, body.AuthToken)

	rec, body = env.do(t, http.MethodPost, "/users",
		`{"username":"juneau","email":"juneau@example.com","password":"greaterthaneight"}`, body.AuthToken)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "Something went wrong. Please contact us.", body.Message)
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "neil", "neil@example.com")
	id, err := env.tokens.Decode(token)
	require.NoError(t, err)

	rec, body := env.do(t, http.MethodGet, "/users/"+strconv.FormatInt(id, 10), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body.Status)

	var data map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, "neil", data["username"])
	assert.Equal(t, "neil@example.com", data["email"])
	assert.Equal(t, true, data["active"])
	assert.Contains(t, data, "created_at")
	assert.NotContains(t, data, "password")
	assert.False(t, bytes.Contains(rec.Body.Bytes(), []byte("$2a$")))
}

func TestGetUser_NotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/users/999", "/users/blah"} {
		rec, body := env.do(t, http.MethodGet, path, "", "")

		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "fail", body.Status, path)
		assert.Equal(t, "User does not exist.", body.Message, path)
	}
}

func TestListUsers_OldestFirst(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/users", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[]}`, string(body.Data))

	env.register(t, "neil", "neil@example.com")
	env.register(t, "juneau", "juneau@example.com")

	rec, body = env.do(t, http.MethodGet, "/users", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Users []struct {
			Username string `json:"username"`
		} `json:"users"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	require.Len(t, data.Users, 2)
	assert.Equal(t, "neil", data.Users[0].Username)
	assert.Equal(t, "juneau", data.Users[1].Username)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/ping", "", "")

	rec, _ := env.do(t, http.MethodGet, "/metrics", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `users_api_http_requests_total{method="GET",route="/ping",status="200"} 1`)
}

func TestUnmatchedRequestsAreCounted(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = env.do(t, http.MethodDelete, "/users", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec, _ = env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `users_api_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, rec.Body.String(), `users_api_http_requests_total{method="DELETE",route="unmatched",status="405"} 1`)
}
