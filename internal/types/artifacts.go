package types

import (
	"github.com/go-playground/validator/v10"
)

// IdeaContent is the user-submitted research idea (form step).
type IdeaContent struct {
	Title   string `json:"title" validate:"required,min=3"`
	Summary string `json:"summary,omitempty"`
}

// Validate validates the IdeaContent using the validator.
func (c *IdeaContent) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// Text renders the idea as a single prompt-friendly line.
func (c *IdeaContent) Text() string {
	if c.Summary != "" {
		return c.Title + " - " + c.Summary
	}
	return c.Title
}

// TopicCandidate is one proposed research topic from the TopicProposer.
type TopicCandidate struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Keywords      []string `json:"keywords"`
	ResearchAngle string   `json:"research_angle"`
}

// TopicRanking is the critic's evaluation of one candidate.
type TopicRanking struct {
	Rank           int                `json:"rank"`
	CandidateIndex int                `json:"candidate_index"`
	Title          string             `json:"title"`
	Scores         map[string]float64 `json:"scores"`
	OverallScore   float64            `json:"overall_score"`
	Strengths      []string           `json:"strengths"`
	Weaknesses     []string           `json:"weaknesses"`
	OneLineVerdict string             `json:"one_line_verdict"`
}

// CriticResult is the TopicCritic's full output.
type CriticResult struct {
	Rankings              []TopicRanking `json:"rankings"`
	RecommendedIndex      int            `json:"recommended_index"`
	Recommendation        string         `json:"recommendation"`
	SuggestedNarrowing    string         `json:"suggested_narrowing"`
	ResearchQuestions     []string       `json:"research_questions"`
	MethodologySuggestion string         `json:"methodology_suggestion"`
}

// TopicCriticContent is the topic_critic artifact payload.
type TopicCriticContent struct {
	Candidates   []TopicCandidate `json:"candidates"`
	CriticResult CriticResult     `json:"critic_result"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

// AcceptedTopicContent records the user's topic choice (form step). It keeps
// the source artifact version so the choice stays meaningful after regenerations.
type AcceptedTopicContent struct {
	SelectedIndex            int            `json:"selected_index"`
	Selected                 TopicCandidate `json:"selected"`
	SourceTopicCriticVersion int            `json:"source_topic_critic_version"`
	AcceptedAt               string         `json:"accepted_at"`
}

// OutlineSection is one section of a generated outline.
type OutlineSection struct {
	Name    string   `json:"name"`
	Bullets []string `json:"bullets"`
}

// OutlineContent is the outline artifact payload.
type OutlineContent struct {
	Title    string           `json:"title"`
	Abstract string           `json:"abstract"`
	Sections []OutlineSection `json:"sections"`
	Keywords []string         `json:"keywords"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// ConstraintsContent captures researcher constraints (form step).
type ConstraintsContent struct {
	TimeBudget       string              `json:"time_budget" validate:"required,oneof=hours days weeks months"`
	DataAvailability string              `json:"data_availability" validate:"required,oneof=none public_only can_collect"`
	Resources        ConstraintResources `json:"resources"`
	Notes            string              `json:"notes,omitempty"`
	Metadata         map[string]any      `json:"metadata,omitempty"`
}

// ConstraintResources describes what the researcher has access to.
type ConstraintResources struct {
	LabAccess          bool     `json:"lab_access"`
	ParticipantsAccess bool     `json:"participants_access"`
	SoftwareTools      []string `json:"software_tools,omitempty"`
}

// Validate validates the ConstraintsContent using the validator.
func (c *ConstraintsContent) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// ApproachOption is a recommended or alternative research approach.
type ApproachOption struct {
	Approach            string   `json:"approach"`
	WhyFit              []string `json:"why_fit,omitempty"`
	Why                 []string `json:"why,omitempty"`
	Tradeoffs           []string `json:"tradeoffs,omitempty"`
	EffortLevel         string   `json:"effort_level,omitempty"`
	WhatUserMustProvide []string `json:"what_user_must_provide,omitempty"`
}

// ApproachRecommendationContent is the phase2_approach_recommendation payload.
type ApproachRecommendationContent struct {
	RefinedProblemStatement  string           `json:"refined_problem_statement"`
	RefinedResearchQuestions []string         `json:"refined_research_questions"`
	SuggestedTitles          []string         `json:"suggested_titles"`
	Recommended              ApproachOption   `json:"recommended"`
	Alternatives             []ApproachOption `json:"alternatives"`
	Metadata                 map[string]any   `json:"metadata,omitempty"`
}

// SelectedApproachContent records the user's approach choice (form step).
type SelectedApproachContent struct {
	SelectedApproach string `json:"selected_approach" validate:"required"`
	SelectedTitle    string `json:"selected_title" validate:"required"`
	SelectedAt       string `json:"selected_at,omitempty"`
}

// Validate validates the SelectedApproachContent using the validator.
func (c *SelectedApproachContent) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// Paper is one academic paper found by the sources step.
type Paper struct {
	Title            string   `json:"title"`
	Authors          []string `json:"authors,omitempty"`
	Year             int      `json:"year,omitempty"`
	Venue            string   `json:"venue,omitempty"`
	DOI              string   `json:"doi,omitempty"`
	URL              string   `json:"url,omitempty"`
	PDFURL           string   `json:"pdf_url,omitempty"`
	Abstract         string   `json:"abstract,omitempty"`
	CitedByCount     int      `json:"cited_by_count,omitempty"`
	InfluentialCites int      `json:"influential_citation_count,omitempty"`
	Source           string   `json:"source,omitempty"`
	WhyRelevant      string   `json:"why_relevant,omitempty"`
	CredibilityNotes string   `json:"credibility_notes,omitempty"`
}

// Dataset is one dataset resource from the sources step.
type Dataset struct {
	Name        string `json:"name"`
	Domain      string `json:"domain,omitempty"`
	URL         string `json:"url"`
	WhyRelevant string `json:"why_relevant,omitempty"`
	License     string `json:"license,omitempty"`
}

// Tool is one software tool/library/platform from the sources step.
type Tool struct {
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	URL       string `json:"url"`
	WhyUseful string `json:"why_useful,omitempty"`
}

// LearningResource is one tutorial/course/reference from the sources step.
type LearningResource struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	WhyUseful string `json:"why_useful,omitempty"`
	Source    string `json:"source,omitempty"`
}

// SourcesPackContent is the phase2_sources_pack artifact payload.
type SourcesPackContent struct {
	Metadata       map[string]any     `json:"metadata"`
	Papers         []Paper            `json:"papers"`
	Datasets       []Dataset          `json:"datasets"`
	Tools          []Tool             `json:"tools"`
	KnowledgeBases []LearningResource `json:"knowledge_bases"`
}

// MethodologyStep is one ordered step of the final research plan.
type MethodologyStep struct {
	Step         int      `json:"step"`
	Name         string   `json:"name"`
	Details      []string `json:"details,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
}

// PlanRisk is one risk/constraint/ethics entry of the final research plan.
type PlanRisk struct {
	Risk       string `json:"risk"`
	Impact     string `json:"impact,omitempty"`
	Mitigation string `json:"mitigation,omitempty"`
}

// ResearchPlanPackContent is the phase2_research_plan_pack artifact payload,
// the terminal deliverable of the wizard.
type ResearchPlanPackContent struct {
	FinalTitle             string            `json:"final_title"`
	FinalProblemStatement  string            `json:"final_problem_statement"`
	FinalResearchQuestions []string          `json:"final_research_questions"`
	SelectedApproach       string            `json:"selected_approach"`
	MethodologySteps       []MethodologyStep `json:"methodology_steps"`
	Templates              map[string]any    `json:"templates"`
	RisksConstraintsEthics []PlanRisk        `json:"risks_constraints_ethics"`
	NextActions            []string          `json:"next_actions"`
	Metadata               map[string]any    `json:"metadata,omitempty"`
}

// EvidencePlanContent is the phase2_evidence_plan artifact payload.
type EvidencePlanContent struct {
	EvidenceType       string         `json:"evidence_type"`
	CollectionStrategy []string       `json:"collection_strategy"`
	InclusionExclusion map[string]any `json:"inclusion_exclusion"`
	AnalysisOverview   string         `json:"analysis_overview"`
	ExpectedOutputs    []string       `json:"expected_outputs"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}
