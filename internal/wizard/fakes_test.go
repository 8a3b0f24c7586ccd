package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/llm"
	"github.com/researchgpt/researchgpt/internal/research"
	"github.com/researchgpt/researchgpt/internal/types"
)

// fakeStore is an in-memory Store with the same semantics as the database
// layer: owner scoping, monotonic artifact versions, and a conditional
// running-state transition.
type fakeStore struct {
	mu             sync.Mutex
	projects       map[uuid.UUID]*types.Project
	runs           map[uuid.UUID]*types.Run
	artifacts      map[uuid.UUID][]types.Artifact
	logs           []types.LogEvent
	updateStateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:  make(map[uuid.UUID]*types.Project),
		runs:      make(map[uuid.UUID]*types.Run),
		artifacts: make(map[uuid.UUID][]types.Artifact),
	}
}

func (f *fakeStore) addProject(ownerID uuid.UUID) *types.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &types.Project{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      "Test Project",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.projects[p.ID] = p
	return p
}

func (f *fakeStore) GetProject(_ context.Context, ownerID, projectID uuid.UUID) (*types.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok || p.OwnerID != ownerID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) CreateRun(_ context.Context, projectID uuid.UUID) (*types.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	number := 1
	for _, r := range f.runs {
		if r.ProjectID == projectID && r.RunNumber >= number {
			number = r.RunNumber + 1
		}
	}
	run := &types.Run{
		ID:        uuid.New(),
		ProjectID: projectID,
		RunNumber: number,
		Phase:     types.PhaseOne,
		Step:      types.StepIdea,
		Status:    types.StatusAwaitingFeedback,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.runs[run.ID] = run
	cp := *run
	return &cp, nil
}

func (f *fakeStore) GetRun(_ context.Context, ownerID, runID uuid.UUID) (*types.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, nil
	}
	project, ok := f.projects[run.ProjectID]
	if !ok || project.OwnerID != ownerID {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (f *fakeStore) TryStartStep(_ context.Context, runID uuid.UUID, step string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return false, nil
	}
	if run.Status == types.StatusRunning {
		return false, nil
	}
	run.Step = step
	run.Status = types.StatusRunning
	run.UpdatedAt = time.Now()
	return true, nil
}

// failStateUpdates makes every UpdateRunState call fail until cleared.
func (f *fakeStore) failStateUpdates(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateStateErr = err
}

func (f *fakeStore) UpdateRunState(_ context.Context, runID uuid.UUID, phase types.Phase, step string, status types.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateStateErr != nil {
		return f.updateStateErr
	}
	run, ok := f.runs[runID]
	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	run.Phase = phase
	run.Step = step
	run.Status = status
	run.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) UpdateRunStatus(_ context.Context, runID uuid.UUID, status types.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	run.Status = status
	run.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) DeleteRun(_ context.Context, runID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[runID]; !ok {
		return false, nil
	}
	delete(f.runs, runID)
	delete(f.artifacts, runID)
	return true, nil
}

func (f *fakeStore) CreateArtifact(_ context.Context, runID uuid.UUID, stepName string, content any) (*types.Artifact, error) {
	contentMap, err := toContentMap(content)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	version := 1
	for _, a := range f.artifacts[runID] {
		if a.StepName == stepName && a.Version >= version {
			version = a.Version + 1
		}
	}
	artifact := types.Artifact{
		ID:        uuid.New(),
		RunID:     runID,
		StepName:  stepName,
		Version:   version,
		Content:   contentMap,
		CreatedAt: time.Now(),
	}
	f.artifacts[runID] = append(f.artifacts[runID], artifact)
	cp := artifact
	return &cp, nil
}

func (f *fakeStore) GetLatestArtifact(_ context.Context, runID uuid.UUID, stepName string) (*types.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.Artifact
	for i := range f.artifacts[runID] {
		a := &f.artifacts[runID][i]
		if a.StepName == stepName && (latest == nil || a.Version > latest.Version) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeStore) InsertLogEvent(_ context.Context, runID uuid.UUID, agentName, eventType string, payload map[string]any) (*types.LogEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := types.LogEvent{
		ID:        uuid.New(),
		RunID:     runID,
		AgentName: agentName,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	f.logs = append(f.logs, ev)
	cp := ev
	return &cp, nil
}

func (f *fakeStore) runSnapshot(runID uuid.UUID) types.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.runs[runID]
}

func (f *fakeStore) eventsOf(runID uuid.UUID, agentName, eventType string) []types.LogEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.LogEvent
	for _, ev := range f.logs {
		if ev.RunID != runID {
			continue
		}
		if agentName != "" && ev.AgentName != agentName {
			continue
		}
		if eventType != "" && ev.EventType != eventType {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func toContentMap(content any) (map[string]any, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fakeLLM returns queued responses in order. An injected error fails every
// call until cleared.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (f *fakeLLM) enqueue(responses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
}

func (f *fakeLLM) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeLLM) next(prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", fmt.Errorf("fakeLLM: no response queued for prompt %.60q", prompt)
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeLLM) GenerateContent(_ context.Context, prompt string, _ llm.ModelTier, _ float32) (string, error) {
	return f.next(prompt)
}

func (f *fakeLLM) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier, _ float32) (string, error) {
	return f.next(prompt)
}

func (f *fakeLLM) GetModel(llm.ModelTier) string { return "fake-model" }

func (f *fakeLLM) Close() error { return nil }

// Fake research collaborators.

type fakeKeywordSource struct {
	papers []research.PaperResult
	err    error
}

func (f *fakeKeywordSource) SearchPapers(context.Context, []string, int) ([]research.PaperResult, error) {
	return f.papers, f.err
}

type fakeQuerySource struct {
	papers []research.PaperResult
	err    error
}

func (f *fakeQuerySource) SearchPapers(context.Context, string, int) ([]research.PaperResult, error) {
	return f.papers, f.err
}

type fakeDOIVerifier struct {
	byDOI map[string]*research.PaperResult
}

func (f *fakeDOIVerifier) VerifyDOI(_ context.Context, doi string) (*research.PaperResult, error) {
	return f.byDOI[research.NormalizeDOI(doi)], nil
}

type fakeOAResolver struct {
	byDOI map[string]string
}

func (f *fakeOAResolver) OpenAccessURL(_ context.Context, doi string) (string, error) {
	return f.byDOI[research.NormalizeDOI(doi)], nil
}

type fakeWebSearcher struct {
	results []research.WebResult
	err     error
}

func (f *fakeWebSearcher) Search(context.Context, string, int) ([]research.WebResult, error) {
	return f.results, f.err
}
