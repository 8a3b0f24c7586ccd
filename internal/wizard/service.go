package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/broadcast"
	"github.com/researchgpt/researchgpt/internal/llm"
	"github.com/researchgpt/researchgpt/internal/research"
	"github.com/researchgpt/researchgpt/internal/schemas"
	"github.com/researchgpt/researchgpt/internal/types"
)

// DefaultStepTimeout bounds one step-runner execution, including all LLM and
// external API calls it makes.
const DefaultStepTimeout = 120 * time.Second

// Store is the persistence surface the wizard needs. *db.DB satisfies it.
type Store interface {
	GetProject(ctx context.Context, ownerID, projectID uuid.UUID) (*types.Project, error)
	CreateRun(ctx context.Context, projectID uuid.UUID) (*types.Run, error)
	GetRun(ctx context.Context, ownerID, runID uuid.UUID) (*types.Run, error)
	TryStartStep(ctx context.Context, runID uuid.UUID, step string) (bool, error)
	UpdateRunState(ctx context.Context, runID uuid.UUID, phase types.Phase, step string, status types.RunStatus) error
	UpdateRunStatus(ctx context.Context, runID uuid.UUID, status types.RunStatus) error
	DeleteRun(ctx context.Context, runID uuid.UUID) (bool, error)
	CreateArtifact(ctx context.Context, runID uuid.UUID, stepName string, content any) (*types.Artifact, error)
	GetLatestArtifact(ctx context.Context, runID uuid.UUID, stepName string) (*types.Artifact, error)
	InsertLogEvent(ctx context.Context, runID uuid.UUID, agentName, eventType string, payload map[string]any) (*types.LogEvent, error)
}

// Keyword-based academic paper search (OpenAlex).
type KeywordPaperSource interface {
	SearchPapers(ctx context.Context, keywords []string, limit int) ([]research.PaperResult, error)
}

// Query-string academic paper search (Semantic Scholar).
type QueryPaperSource interface {
	SearchPapers(ctx context.Context, query string, limit int) ([]research.PaperResult, error)
}

// DOI metadata verification (Crossref).
type DOIVerifier interface {
	VerifyDOI(ctx context.Context, doi string) (*research.PaperResult, error)
}

// Open-access PDF resolution (Unpaywall).
type OpenAccessResolver interface {
	OpenAccessURL(ctx context.Context, doi string) (string, error)
}

// General web search for datasets, tools, and learning resources.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]research.WebResult, error)
}

// Research bundles the external collaborators of the source discovery step.
// Any field may be nil; the step degrades to partial results with a warning
// event instead of failing.
type Research struct {
	OpenAlex  KeywordPaperSource
	Scholar   QueryPaperSource
	Crossref  DOIVerifier
	Unpaywall OpenAccessResolver
	Web       WebSearcher
}

// Service is the wizard state machine. All mutations of runs, artifacts, and
// logs go through it.
type Service struct {
	store       Store
	llm         llm.Client
	research    Research
	events      *broadcast.Registry
	stepTimeout time.Duration
}

// NewService creates a wizard Service.
func NewService(store Store, llmClient llm.Client, res Research, events *broadcast.Registry) *Service {
	return &Service{
		store:       store,
		llm:         llmClient,
		research:    res,
		events:      events,
		stepTimeout: DefaultStepTimeout,
	}
}

// WithStepTimeout overrides the per-step execution timeout.
func (s *Service) WithStepTimeout(d time.Duration) *Service {
	if d > 0 {
		s.stepTimeout = d
	}
	return s
}

// CreateRun starts a new wizard run in the given project. The run begins at
// phase1/idea, waiting for the user to submit their research idea.
func (s *Service) CreateRun(ctx context.Context, ownerID, projectID uuid.UUID) (*types.Run, error) {
	project, err := s.store.GetProject(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return s.store.CreateRun(ctx, projectID)
}

// GetRun retrieves an owned run.
func (s *Service) GetRun(ctx context.Context, ownerID, runID uuid.UUID) (*types.Run, error) {
	run, err := s.store.GetRun(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, nil
}

// DeleteRun removes a run and everything attached to it.
func (s *Service) DeleteRun(ctx context.Context, ownerID, runID uuid.UUID) error {
	run, err := s.GetRun(ctx, ownerID, runID)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	s.events.CloseRun(run.ID)
	return nil
}

// SubmitIdea records the user's research idea as an artifact. The run stays
// at the idea step until the user triggers topic_critic; resubmitting creates
// a new idea version.
func (s *Service) SubmitIdea(ctx context.Context, ownerID, runID uuid.UUID, idea types.IdeaContent) (*types.Artifact, error) {
	if err := idea.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	run, err := s.GetRun(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == types.StatusRunning {
		return nil, ErrConflict
	}
	if run.Phase != types.PhaseOne {
		return nil, fmt.Errorf("idea can only be submitted in phase 1: %w", ErrInvalidState)
	}
	if run.Step != types.StepIdea && run.Step != types.StepTopicCritic {
		return nil, fmt.Errorf("idea can no longer be changed at step %s: %w", run.Step, ErrInvalidState)
	}

	return s.store.CreateArtifact(ctx, run.ID, types.StepIdea, idea)
}

// AcceptTopic records the user's choice among the latest topic_critic
// candidates and advances the run to the outline step.
func (s *Service) AcceptTopic(ctx context.Context, ownerID, runID uuid.UUID, req types.AcceptTopicRequest) (*types.Artifact, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	run, err := s.GetRun(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == types.StatusRunning {
		return nil, ErrConflict
	}
	if run.Phase != types.PhaseOne {
		return nil, fmt.Errorf("topics are accepted in phase 1: %w", ErrInvalidState)
	}

	critic, err := s.store.GetLatestArtifact(ctx, run.ID, types.StepTopicCritic)
	if err != nil {
		return nil, err
	}
	if critic == nil {
		return nil, &PrerequisiteError{Step: "accept_topic", Missing: []string{types.StepTopicCritic}}
	}

	var content types.TopicCriticContent
	if err := decodeContent(critic, &content); err != nil {
		return nil, err
	}
	if req.CandidateIndex < 0 || req.CandidateIndex >= len(content.Candidates) {
		return nil, fmt.Errorf("candidate_index %d out of range [0, %d): %w",
			req.CandidateIndex, len(content.Candidates), ErrInvalidInput)
	}

	accepted := types.AcceptedTopicContent{
		SelectedIndex:            req.CandidateIndex,
		Selected:                 content.Candidates[req.CandidateIndex],
		SourceTopicCriticVersion: critic.Version,
		AcceptedAt:               time.Now().UTC().Format(time.RFC3339),
	}

	artifact, err := s.store.CreateArtifact(ctx, run.ID, types.ArtifactAcceptedTopic, accepted)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateRunState(ctx, run.ID, types.PhaseOne, types.StepOutline, types.StatusAwaitingFeedback); err != nil {
		return nil, err
	}
	return artifact, nil
}

// TransitionToPhase2 moves a run whose outline step has completed into
// phase 2, landing at the constraints form.
func (s *Service) TransitionToPhase2(ctx context.Context, ownerID, runID uuid.UUID) (*types.Run, error) {
	run, err := s.GetRun(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	if run.Phase != types.PhaseOne || run.Step != types.StepOutline || run.Status != types.StatusCompleted {
		return nil, fmt.Errorf("phase 2 requires a completed outline (at %s/%s/%s): %w",
			run.Phase, run.Step, run.Status, ErrInvalidState)
	}

	missing := []string{}
	for _, name := range []string{types.ArtifactAcceptedTopic, types.StepOutline} {
		a, err := s.store.GetLatestArtifact(ctx, run.ID, name)
		if err != nil {
			return nil, err
		}
		if a == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &PrerequisiteError{Step: "transition_to_phase2", Missing: missing}
	}

	if err := s.store.UpdateRunState(ctx, run.ID, types.PhaseTwo, types.StepConstraints, types.StatusAwaitingFeedback); err != nil {
		return nil, err
	}
	run.Phase = types.PhaseTwo
	run.Step = types.StepConstraints
	run.Status = types.StatusAwaitingFeedback
	return run, nil
}

// SubmitConstraints records the researcher's constraints and advances the run
// to the approach recommendation step.
func (s *Service) SubmitConstraints(ctx context.Context, ownerID, runID uuid.UUID, constraints types.ConstraintsContent) (*types.Artifact, error) {
	if err := constraints.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	run, err := s.GetRun(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == types.StatusRunning {
		return nil, ErrConflict
	}
	if run.Phase != types.PhaseTwo {
		return nil, fmt.Errorf("constraints are submitted in phase 2: %w", ErrInvalidState)
	}

	artifact, err := s.store.CreateArtifact(ctx, run.ID, types.StepConstraints, constraints)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateRunState(ctx, run.ID, types.PhaseTwo, types.StepApproach, types.StatusAwaitingFeedback); err != nil {
		return nil, err
	}
	return artifact, nil
}

// SelectApproach records the user's approach choice and advances the run to
// the source discovery step.
func (s *Service) SelectApproach(ctx context.Context, ownerID, runID uuid.UUID, selection types.SelectedApproachContent) (*types.Artifact, error) {
	if err := selection.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	run, err := s.GetRun(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == types.StatusRunning {
		return nil, ErrConflict
	}
	if run.Phase != types.PhaseTwo {
		return nil, fmt.Errorf("approaches are selected in phase 2: %w", ErrInvalidState)
	}

	rec, err := s.store.GetLatestArtifact(ctx, run.ID, types.ArtifactApproachRec)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &PrerequisiteError{Step: "select_approach", Missing: []string{types.ArtifactApproachRec}}
	}

	if selection.SelectedAt == "" {
		selection.SelectedAt = time.Now().UTC().Format(time.RFC3339)
	}

	artifact, err := s.store.CreateArtifact(ctx, run.ID, types.ArtifactSelectedApproach, selection)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateRunState(ctx, run.ID, types.PhaseTwo, types.StepSources, types.StatusAwaitingFeedback); err != nil {
		return nil, err
	}
	return artifact, nil
}

// TriggerStep starts a generated step in the background and returns
// immediately with the run in status running. Exactly one runner may be in
// flight per run; the losing caller of a concurrent trigger gets ErrConflict.
func (s *Service) TriggerStep(ctx context.Context, ownerID, runID uuid.UUID, stepName string, req types.TriggerStepRequest) (*types.Run, error) {
	def, ok := LookupStep(stepName)
	if !ok {
		return nil, fmt.Errorf("unknown step %q: %w", stepName, ErrInvalidInput)
	}

	run, err := s.GetRun(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	if run.Phase != def.Phase {
		return nil, fmt.Errorf("step %s belongs to %s, run is in %s: %w",
			stepName, def.Phase, run.Phase, ErrInvalidState)
	}

	var missing []string
	for _, name := range def.Prerequisites {
		a, err := s.store.GetLatestArtifact(ctx, run.ID, name)
		if err != nil {
			return nil, err
		}
		if a == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &PrerequisiteError{Step: stepName, Missing: missing}
	}

	started, err := s.store.TryStartStep(ctx, run.ID, stepName)
	if err != nil {
		return nil, err
	}
	if !started {
		return nil, ErrConflict
	}

	run.Step = stepName
	run.Status = types.StatusRunning

	in := runInput{run: run, feedback: req.Feedback, numCandidates: req.NumCandidates}
	go s.runStep(def, in)

	return run, nil
}

// emit persists a log event and then fans it out to live listeners. Persist
// comes first so the history endpoint never misses an event a stream has
// already delivered.
func (s *Service) emit(ctx context.Context, runID uuid.UUID, agent, eventType, message string, extra map[string]any) {
	payload := map[string]any{"message": message}
	for k, v := range extra {
		payload[k] = v
	}
	ev, err := s.store.InsertLogEvent(ctx, runID, agent, eventType, payload)
	if err != nil {
		log.Printf("Failed to persist log event for run %s: %v", runID, err)
		return
	}
	s.events.Publish(*ev)
}

// createValidatedArtifact checks a generated payload against its step schema
// before persisting it. Malformed LLM output fails the step instead of
// polluting the artifact history.
func (s *Service) createValidatedArtifact(ctx context.Context, runID uuid.UUID, stepName string, content any) (*types.Artifact, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s artifact: %w", stepName, err)
	}
	if err := schemas.ValidateArtifact(stepName, string(raw)); err != nil {
		return nil, err
	}
	return s.store.CreateArtifact(ctx, runID, stepName, content)
}

// requireArtifact fetches the latest version of a prerequisite artifact,
// failing when it is absent. Runners use it for inputs the trigger already
// verified; the error path guards against deletion races.
func (s *Service) requireArtifact(ctx context.Context, runID uuid.UUID, stepName string, v any) error {
	a, err := s.store.GetLatestArtifact(ctx, runID, stepName)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("required artifact %s not found for run %s", stepName, runID)
	}
	return decodeContent(a, v)
}

// optionalArtifact fetches and decodes an artifact if present, reporting
// whether it existed.
func (s *Service) optionalArtifact(ctx context.Context, runID uuid.UUID, stepName string, v any) (bool, error) {
	a, err := s.store.GetLatestArtifact(ctx, runID, stepName)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	return true, decodeContent(a, v)
}

// decodeContent converts an artifact's generic JSON content into a typed
// payload.
func decodeContent(a *types.Artifact, v any) error {
	raw, err := json.Marshal(a.Content)
	if err != nil {
		return fmt.Errorf("failed to re-marshal artifact %s: %w", a.StepName, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode artifact %s: %w", a.StepName, err)
	}
	return nil
}
