package types

import (
	"github.com/go-playground/validator/v10"
)

// CreateProjectRequest creates a project owned by the authenticated user.
type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}

// Validate validates the CreateProjectRequest using the validator.
func (r *CreateProjectRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// AcceptTopicRequest selects one candidate from the latest topic_critic artifact.
// The index is bounds-checked against that artifact, not here.
type AcceptTopicRequest struct {
	CandidateIndex int `json:"candidate_index" validate:"min=0"`
}

// Validate validates the AcceptTopicRequest using the validator.
func (r *AcceptTopicRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// TriggerStepRequest carries the optional knobs accepted by LLM step triggers.
// Feedback threads user guidance into regeneration prompts; NumCandidates only
// applies to topic_critic and is clamped server-side.
type TriggerStepRequest struct {
	Feedback      string `json:"feedback,omitempty"`
	NumCandidates int    `json:"num_candidates,omitempty"`
}
