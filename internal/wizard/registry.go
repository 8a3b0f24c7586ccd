// Package wizard implements the research-planning state machine: run
// lifecycle, form steps, and the LLM-backed step runners behind them.
package wizard

import (
	"context"

	"github.com/researchgpt/researchgpt/internal/types"
)

// runnerFunc executes one generated step against a run. Runners emit log
// events and create artifacts; the harness owns status transitions.
type runnerFunc func(ctx context.Context, s *Service, in runInput) error

// runInput carries the trigger parameters into a step runner.
type runInput struct {
	run           *types.Run
	feedback      string
	numCandidates int
}

// StepDefinition describes one triggerable (LLM-backed) wizard step. Form
// steps are handled synchronously by the Service and are not registered here.
type StepDefinition struct {
	// Name is the step name as stored on the run.
	Name string
	// Agent is the primary agent that narrates this step.
	Agent string
	// Phase the run must be in to trigger the step.
	Phase types.Phase
	// Prerequisites are the artifact step names that must exist before the
	// step may start.
	Prerequisites []string
	// Produces are the artifact step names the runner writes on success.
	Produces []string
	// Terminal steps leave the run in status completed instead of
	// awaiting_feedback.
	Terminal bool

	run runnerFunc
}

// stepRegistry holds every triggerable step keyed by step name.
var stepRegistry = map[string]StepDefinition{
	types.StepTopicCritic: {
		Name:          types.StepTopicCritic,
		Agent:         "TopicProposer",
		Phase:         types.PhaseOne,
		Prerequisites: []string{types.StepIdea},
		Produces:      []string{types.StepTopicCritic},
		run:           runTopicCritic,
	},
	types.StepOutline: {
		Name:          types.StepOutline,
		Agent:         "OutlineWriter",
		Phase:         types.PhaseOne,
		Prerequisites: []string{types.ArtifactAcceptedTopic},
		Produces:      []string{types.StepOutline},
		Terminal:      true,
		run:           runOutline,
	},
	types.StepApproach: {
		Name:          types.StepApproach,
		Agent:         "ApproachRecommender",
		Phase:         types.PhaseTwo,
		Prerequisites: []string{types.ArtifactAcceptedTopic, types.StepOutline, types.StepConstraints},
		Produces:      []string{types.ArtifactApproachRec},
		run:           runApproachRecommender,
	},
	types.StepSources: {
		Name:          types.StepSources,
		Agent:         "SourceScout",
		Phase:         types.PhaseTwo,
		Prerequisites: []string{types.ArtifactAcceptedTopic, types.StepOutline, types.StepConstraints, types.ArtifactSelectedApproach},
		Produces:      []string{types.ArtifactSourcesPack, types.ArtifactEvidencePlan},
		run:           runSourcesAndEvidence,
	},
	types.StepPlan: {
		Name:          types.StepPlan,
		Agent:         "MethodologyWriter",
		Phase:         types.PhaseTwo,
		Prerequisites: []string{types.ArtifactAcceptedTopic},
		Produces:      []string{types.ArtifactResearchPlan},
		Terminal:      true,
		run:           runResearchPlan,
	},
}

// LookupStep returns the definition of a triggerable step.
func LookupStep(name string) (StepDefinition, bool) {
	def, ok := stepRegistry[name]
	return def, ok
}

// TriggerableSteps returns the names of every registered step.
func TriggerableSteps() []string {
	names := make([]string, 0, len(stepRegistry))
	for name := range stepRegistry {
		names = append(names, name)
	}
	return names
}
