package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/researchgpt/internal/broadcast"
	"github.com/researchgpt/researchgpt/internal/config"
	"github.com/researchgpt/researchgpt/internal/server/middleware"
	"github.com/researchgpt/researchgpt/internal/types"
)

// stubStore returns canned data so handler tests exercise routing, auth
// scoping, and response shaping without a database.
type stubStore struct {
	project   *types.Project
	projects  []types.Project
	runs      []types.Run
	artifacts []types.Artifact
	artifact  *types.Artifact
	events    []types.LogEvent
	deleted   bool
	err       error

	versionAsked int
}

func (s *stubStore) CreateProject(_ context.Context, _ uuid.UUID, name, description string) (*types.Project, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := &types.Project{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	return p, nil
}

func (s *stubStore) GetProject(_ context.Context, ownerID, projectID uuid.UUID) (*types.Project, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.project == nil || s.project.ID != projectID || s.project.OwnerID != ownerID {
		return nil, nil
	}
	return s.project, nil
}

func (s *stubStore) ListProjects(_ context.Context, _ uuid.UUID) ([]types.Project, error) {
	return s.projects, s.err
}

func (s *stubStore) DeleteProject(_ context.Context, ownerID, projectID uuid.UUID) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.project == nil || s.project.ID != projectID || s.project.OwnerID != ownerID {
		return false, nil
	}
	s.deleted = true
	return true, nil
}

func (s *stubStore) ListRuns(_ context.Context, _ uuid.UUID) ([]types.Run, error) {
	return s.runs, s.err
}

func (s *stubStore) ListLatestArtifacts(_ context.Context, _ uuid.UUID) ([]types.Artifact, error) {
	return s.artifacts, s.err
}

func (s *stubStore) ListArtifactVersions(_ context.Context, _ uuid.UUID, _ string) ([]types.Artifact, error) {
	return s.artifacts, s.err
}

func (s *stubStore) GetLatestArtifact(_ context.Context, _ uuid.UUID, _ string) (*types.Artifact, error) {
	return s.artifact, s.err
}

func (s *stubStore) GetArtifactVersion(_ context.Context, _ uuid.UUID, _ string, version int) (*types.Artifact, error) {
	s.versionAsked = version
	return s.artifact, s.err
}

func (s *stubStore) ListLogEvents(_ context.Context, _ uuid.UUID) ([]types.LogEvent, error) {
	return s.events, s.err
}

// stubWizard returns its canned run or artifact, or its injected error, for
// every operation.
type stubWizard struct {
	run       *types.Run
	artifact  *types.Artifact
	err       error
	lastStep  string
	lastReq   types.TriggerStepRequest
	lastIdea  types.IdeaContent
	deleteErr error
}

func (s *stubWizard) CreateRun(_ context.Context, _, _ uuid.UUID) (*types.Run, error) {
	return s.run, s.err
}

func (s *stubWizard) GetRun(_ context.Context, _, _ uuid.UUID) (*types.Run, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.run, nil
}

func (s *stubWizard) DeleteRun(_ context.Context, _, _ uuid.UUID) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.err
}

func (s *stubWizard) SubmitIdea(_ context.Context, _, _ uuid.UUID, idea types.IdeaContent) (*types.Artifact, error) {
	s.lastIdea = idea
	return s.artifact, s.err
}

func (s *stubWizard) AcceptTopic(_ context.Context, _, _ uuid.UUID, _ types.AcceptTopicRequest) (*types.Artifact, error) {
	return s.artifact, s.err
}

func (s *stubWizard) TransitionToPhase2(_ context.Context, _, _ uuid.UUID) (*types.Run, error) {
	return s.run, s.err
}

func (s *stubWizard) SubmitConstraints(_ context.Context, _, _ uuid.UUID, _ types.ConstraintsContent) (*types.Artifact, error) {
	return s.artifact, s.err
}

func (s *stubWizard) SelectApproach(_ context.Context, _, _ uuid.UUID, _ types.SelectedApproachContent) (*types.Artifact, error) {
	return s.artifact, s.err
}

func (s *stubWizard) TriggerStep(_ context.Context, _, _ uuid.UUID, stepName string, req types.TriggerStepRequest) (*types.Run, error) {
	s.lastStep = stepName
	s.lastReq = req
	return s.run, s.err
}

// testServer wires stubs into a Server with real JWT auth and the production
// route table.
type testServer struct {
	srv    *Server
	store  *stubStore
	wizard *stubWizard
	mux    http.Handler
	userID uuid.UUID
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := &stubStore{}
	wiz := &stubWizard{}
	jwtSvc := NewJWTService(&config.JWTConfig{Secret: "test-secret-for-handler-tests", ExpirationHours: 1})

	s := &Server{
		store:      store,
		wizard:     wiz,
		events:     broadcast.NewRegistry(),
		jwtService: jwtSvc,
	}
	s.authMW = middleware.AuthMiddleware(jwtSvc.AsTokenValidator())

	userID := uuid.New()
	token, err := jwtSvc.GenerateToken(userID)
	require.NoError(t, err)

	return &testServer{
		srv:    s,
		store:  store,
		wizard: wiz,
		mux:    s.routes(),
		userID: userID,
		token:  token,
	}
}

func (ts *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/projects"},
		{http.MethodPost, "/projects"},
		{http.MethodGet, "/runs/" + uuid.NewString()},
		{http.MethodPost, "/runs/" + uuid.NewString() + "/steps/topic_critic"},
		{http.MethodGet, "/runs/" + uuid.NewString() + "/stream"},
	}

	for _, tt := range paths {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		ts.mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestProtectedRoutesRejectBadToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
