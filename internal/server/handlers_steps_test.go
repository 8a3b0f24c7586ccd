package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/researchgpt/internal/types"
	"github.com/researchgpt/researchgpt/internal/wizard"
)

func TestTriggerStep_Accepted(t *testing.T) {
	ts := newTestServer(t)
	runID := uuid.New()
	ts.wizard.run = &types.Run{
		ID:     runID,
		Phase:  types.PhaseOne,
		Step:   types.StepTopicCritic,
		Status: types.StatusRunning,
	}

	rec := ts.request(t, http.MethodPost, "/runs/"+runID.String()+"/steps/topic_critic",
		types.TriggerStepRequest{Feedback: "more applied angles", NumCandidates: 3})

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, runID.String(), body["run_id"])
	assert.Equal(t, types.StepTopicCritic, body["step"])
	assert.Equal(t, string(types.StatusRunning), body["status"])

	assert.Equal(t, "topic_critic", ts.wizard.lastStep)
	assert.Equal(t, "more applied angles", ts.wizard.lastReq.Feedback)
	assert.Equal(t, 3, ts.wizard.lastReq.NumCandidates)
}

func TestTriggerStep_EmptyBodyAllowed(t *testing.T) {
	ts := newTestServer(t)
	runID := uuid.New()
	ts.wizard.run = &types.Run{ID: runID, Status: types.StatusRunning, Step: types.StepOutline}

	rec := ts.request(t, http.MethodPost, "/runs/"+runID.String()+"/steps/outline", nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, types.TriggerStepRequest{}, ts.wizard.lastReq)
}

func TestTriggerStep_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "missing prerequisites",
			err:  &wizard.PrerequisiteError{Step: "outline", Missing: []string{"accepted_topic"}},
			want: http.StatusUnprocessableEntity,
		},
		{name: "wrong phase", err: wizard.ErrInvalidState, want: http.StatusUnprocessableEntity},
		{name: "already running", err: wizard.ErrConflict, want: http.StatusConflict},
		{name: "not owned", err: wizard.ErrNotFound, want: http.StatusNotFound},
		{name: "bad input", err: wizard.ErrInvalidInput, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.wizard.err = tt.err

			rec := ts.request(t, http.MethodPost, "/runs/"+uuid.NewString()+"/steps/outline", nil)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestTriggerStep_InternalErrorIsGeneric(t *testing.T) {
	ts := newTestServer(t)
	ts.wizard.err = assert.AnError

	rec := ts.request(t, http.MethodPost, "/runs/"+uuid.NewString()+"/steps/plan", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "internal server error", body["error"])
	assert.NotContains(t, body["error"], assert.AnError.Error())
}

func TestSubmitIdea(t *testing.T) {
	ts := newTestServer(t)
	runID := uuid.New()
	ts.wizard.artifact = &types.Artifact{
		ID:       uuid.New(),
		RunID:    runID,
		StepName: types.StepIdea,
		Version:  1,
	}

	rec := ts.request(t, http.MethodPost, "/runs/"+runID.String()+"/idea", types.IdeaContent{
		Title:   "Sleep and memory consolidation",
		Summary: "How does sleep affect memory consolidation in adults?",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	artifact := decodeBody[types.Artifact](t, rec)
	assert.Equal(t, types.StepIdea, artifact.StepName)
	assert.Equal(t, 1, artifact.Version)
	assert.Contains(t, ts.wizard.lastIdea.Title, "Sleep")
}

func TestSubmitIdea_MalformedBody(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, "/runs/"+uuid.NewString()+"/idea", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitIdea_InvalidState(t *testing.T) {
	ts := newTestServer(t)
	ts.wizard.err = wizard.ErrInvalidState

	rec := ts.request(t, http.MethodPost, "/runs/"+uuid.NewString()+"/idea",
		types.IdeaContent{Title: "an idea"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAcceptTopic(t *testing.T) {
	ts := newTestServer(t)
	runID := uuid.New()
	ts.wizard.artifact = &types.Artifact{
		ID:       uuid.New(),
		RunID:    runID,
		StepName: types.ArtifactAcceptedTopic,
		Version:  1,
	}

	rec := ts.request(t, http.MethodPost, "/runs/"+runID.String()+"/accept_topic",
		types.AcceptTopicRequest{CandidateIndex: 2})

	require.Equal(t, http.StatusCreated, rec.Code)
	artifact := decodeBody[types.Artifact](t, rec)
	assert.Equal(t, types.ArtifactAcceptedTopic, artifact.StepName)
}

func TestAcceptTopic_MissingCritic(t *testing.T) {
	ts := newTestServer(t)
	ts.wizard.err = &wizard.PrerequisiteError{Step: "accept_topic", Missing: []string{types.StepTopicCritic}}

	rec := ts.request(t, http.MethodPost, "/runs/"+uuid.NewString()+"/accept_topic",
		types.AcceptTopicRequest{CandidateIndex: 0})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Contains(t, body["error"], "topic_critic")
}

func TestSubmitConstraints(t *testing.T) {
	ts := newTestServer(t)
	runID := uuid.New()
	ts.wizard.artifact = &types.Artifact{
		ID:       uuid.New(),
		RunID:    runID,
		StepName: types.StepConstraints,
		Version:  1,
	}

	rec := ts.request(t, http.MethodPost, "/runs/"+runID.String()+"/constraints", types.ConstraintsContent{
		TimeBudget:       "months",
		DataAvailability: "public_only",
		Resources: types.ConstraintResources{
			SoftwareTools: []string{"R", "Python"},
		},
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSelectApproach(t *testing.T) {
	ts := newTestServer(t)
	runID := uuid.New()
	ts.wizard.artifact = &types.Artifact{
		ID:       uuid.New(),
		RunID:    runID,
		StepName: types.ArtifactSelectedApproach,
		Version:  1,
	}

	rec := ts.request(t, http.MethodPost, "/runs/"+runID.String()+"/select_approach",
		types.SelectedApproachContent{
			SelectedApproach: "Systematic Literature Review",
			SelectedTitle:    "Sleep and memory consolidation",
		})

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSelectApproach_MissingRecommendation(t *testing.T) {
	ts := newTestServer(t)
	ts.wizard.err = &wizard.PrerequisiteError{Step: "select_approach", Missing: []string{types.ArtifactApproachRec}}

	rec := ts.request(t, http.MethodPost, "/runs/"+uuid.NewString()+"/select_approach",
		types.SelectedApproachContent{SelectedApproach: "Field Experiment", SelectedTitle: "A field study"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTransitionToPhase2(t *testing.T) {
	ts := newTestServer(t)
	runID := uuid.New()
	ts.wizard.run = &types.Run{
		ID:     runID,
		Phase:  types.PhaseTwo,
		Step:   types.StepConstraints,
		Status: types.StatusAwaitingFeedback,
	}

	rec := ts.request(t, http.MethodPost, "/runs/"+runID.String()+"/phase2", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	run := decodeBody[types.Run](t, rec)
	assert.Equal(t, types.PhaseTwo, run.Phase)
	assert.Equal(t, types.StepConstraints, run.Step)
}

func TestTransitionToPhase2_OutlineNotCompleted(t *testing.T) {
	ts := newTestServer(t)
	ts.wizard.err = wizard.ErrInvalidState

	rec := ts.request(t, http.MethodPost, "/runs/"+uuid.NewString()+"/phase2", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
