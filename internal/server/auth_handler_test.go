package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/researchgpt/internal/config"
	"github.com/researchgpt/researchgpt/internal/types"
)

func newAuthHandler() (*AuthHandler, *fakeUserStore) {
	store := newFakeUserStore()
	userSvc := NewUserService(store, testPasswordConfig())
	jwtSvc := NewJWTService(&config.JWTConfig{Secret: "test-secret-for-auth-tests", ExpirationHours: 1})
	return NewAuthHandler(userSvc, jwtSvc), store
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestAuthHandler_Register(t *testing.T) {
	handler, _ := newAuthHandler()

	rec := postJSON(t, handler.Register, "/auth/register", types.CreateUserRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "secret-password",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp types.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "ada@example.com", resp.User.Email)
}

func TestAuthHandler_Register_DuplicateEmail(t *testing.T) {
	handler, _ := newAuthHandler()
	req := types.CreateUserRequest{Name: "Ada", Email: "ada@example.com", Password: "secret-password"}

	rec := postJSON(t, handler.Register, "/auth/register", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, handler.Register, "/auth/register", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	handler, _ := newAuthHandler()

	tests := []struct {
		name string
		req  types.CreateUserRequest
	}{
		{"missing email", types.CreateUserRequest{Name: "Ada", Password: "secret-password"}},
		{"bad email", types.CreateUserRequest{Name: "Ada", Email: "not-an-email", Password: "secret-password"}},
		{"short password", types.CreateUserRequest{Name: "Ada", Email: "ada@example.com", Password: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler.Register, "/auth/register", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	handler, _ := newAuthHandler()

	rec := postJSON(t, handler.Register, "/auth/register", types.CreateUserRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "secret-password",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, handler.Login, "/auth/login", types.LoginRequest{
		Email:    "ada@example.com",
		Password: "secret-password",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Token)
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	handler, _ := newAuthHandler()

	rec := postJSON(t, handler.Register, "/auth/register", types.CreateUserRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "secret-password",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, handler.Login, "/auth/login", types.LoginRequest{
		Email:    "ada@example.com",
		Password: "wrong-password",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
