// Package types provides type definitions for structured data used throughout the ResearchGPT system.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Phase identifies which half of the wizard a run is in.
type Phase string

// Wizard phases. A run starts in Phase 1 and transitions to Phase 2 exactly
// once, after the outline step completes.
const (
	PhaseOne Phase = "phase1"
	PhaseTwo Phase = "phase2"
)

// RunStatus is the lifecycle status of a run.
type RunStatus string

// Run statuses. "running" means a step runner is in flight; only one may be
// in flight per run at a time.
const (
	StatusRunning          RunStatus = "running"
	StatusAwaitingFeedback RunStatus = "awaiting_feedback"
	StatusCompleted        RunStatus = "completed"
	StatusFailed           RunStatus = "failed"
)

// Step names in wizard order.
const (
	StepIdea        = "idea"
	StepTopicCritic = "topic_critic"
	StepOutline     = "outline"
	StepConstraints = "phase2_constraints"
	StepApproach    = "phase2_approach"
	StepSources     = "phase2_sources"
	StepPlan        = "phase2_plan"
)

// Artifact step names that differ from the step that produces them.
const (
	ArtifactAcceptedTopic    = "accepted_topic"
	ArtifactApproachRec      = "phase2_approach_recommendation"
	ArtifactSelectedApproach = "phase2_selected_approach"
	ArtifactSourcesPack      = "phase2_sources_pack"
	ArtifactEvidencePlan     = "phase2_evidence_plan"
	ArtifactResearchPlan     = "phase2_research_plan_pack"
)

// Project owns zero or more runs. Deleting a project cascades to its runs,
// artifacts, and logs.
type Project struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Run is one wizard execution scoped to a project.
type Run struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	RunNumber int       `json:"run_number"`
	Phase     Phase     `json:"phase"`
	Step      string    `json:"step"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Artifact is one versioned, immutable JSON output of a step. Regeneration
// creates a new version; rows are never updated.
type Artifact struct {
	ID        uuid.UUID      `json:"id"`
	RunID     uuid.UUID      `json:"run_id"`
	StepName  string         `json:"step_name"`
	Version   int            `json:"version"`
	Content   map[string]any `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}

// LogEvent is one persisted, broadcastable unit of step-runner progress.
type LogEvent struct {
	ID        uuid.UUID      `json:"id"`
	RunID     uuid.UUID      `json:"run_id"`
	AgentName string         `json:"agent_name"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// AgentSystem is the reserved agent name for state-machine-level failures,
// as opposed to step-runner-level narration.
const AgentSystem = "System"

// Log event types emitted by step runners. The set is open-ended; these are
// the ones the built-in agents use.
const (
	EventStart          = "start"
	EventThinking       = "thinking"
	EventSearching      = "searching"
	EventRanking        = "ranking"
	EventOutput         = "output"
	EventCandidate      = "candidate"
	EventEvaluation     = "evaluation"
	EventRecommendation = "recommendation"
	EventWarning        = "warning"
	EventSection        = "section"
	EventTemplates      = "templates"
	EventRisks          = "risks"
	EventComplete       = "complete"
	EventError          = "error"
)
