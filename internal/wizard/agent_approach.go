package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/researchgpt/researchgpt/internal/llm"
	"github.com/researchgpt/researchgpt/internal/types"
)

const approachTemperature float32 = 0.5

// yesNo renders a boolean for prompt text.
func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// runApproachRecommender analyzes topic, outline, and constraints to recommend
// a research approach with alternatives, producing the
// phase2_approach_recommendation artifact.
func runApproachRecommender(ctx context.Context, s *Service, in runInput) error {
	const agent = "ApproachRecommender"
	runID := in.run.ID

	var accepted types.AcceptedTopicContent
	if err := s.requireArtifact(ctx, runID, types.ArtifactAcceptedTopic, &accepted); err != nil {
		return err
	}
	var outline types.OutlineContent
	if err := s.requireArtifact(ctx, runID, types.StepOutline, &outline); err != nil {
		return err
	}
	var constraints types.ConstraintsContent
	if err := s.requireArtifact(ctx, runID, types.StepConstraints, &constraints); err != nil {
		return err
	}

	s.emit(ctx, runID, agent, types.EventStart,
		"Analyzing topic, outline, and constraints to recommend the best research approach...", nil)

	topic := accepted.Selected
	sectionsSummary := outlineSectionsSummary(outline.Sections, 6)

	tools := "None specified"
	if len(constraints.Resources.SoftwareTools) > 0 {
		tools = strings.Join(constraints.Resources.SoftwareTools, ", ")
	}
	notes := constraints.Notes
	if notes == "" {
		notes = "None"
	}
	keywords := "N/A"
	if len(topic.Keywords) > 0 {
		keywords = strings.Join(topic.Keywords, ", ")
	}

	feedbackSection := ""
	if in.feedback != "" {
		feedbackSection = fmt.Sprintf(
			"\n\nIMPORTANT: The user reviewed previous recommendations and provided this feedback:\n%q\n"+
				"You MUST incorporate this feedback in your new recommendation.\n", in.feedback)
	}

	prompt := fmt.Sprintf(`You are an expert research methodology advisor. Your task is to analyze a research topic and the researcher's constraints to recommend the BEST research approach.

## The 6 Research Approaches

PRIMARY (require new data collection):
1. Survey / Questionnaire: collect new responses via structured questionnaires; analyze patterns and correlations
2. Controlled Experiment: manipulate independent variables; measure outcomes in controlled conditions
3. Interview / Qualitative Study: conduct interviews or focus groups; perform thematic/qualitative analysis

SECONDARY (use existing data/literature):
4. Public Dataset Analysis: use existing datasets/records; perform statistical analysis or modeling
5. Systematic Literature Review: structured search, screening, and synthesis of existing research
6. Comparative Evaluation: compare tools/methods/options using defined rubric and criteria

## Constraint-Based Filtering Rules (MANDATORY)

You MUST apply these hard rules BEFORE ranking approaches:

- If data_availability == "none": EXCLUDE all Primary approaches (Survey, Experiment, Interview). Only recommend Secondary.
- If data_availability == "public_only": EXCLUDE Survey and Experiment. Allow Interview only if participants_access == true.
- If time_budget == "hours": EXCLUDE Survey, Experiment, Interview. Recommend Comparative Eval or Dataset Analysis.
- If time_budget == "days": EXCLUDE Experiment (requires weeks+). All others viable.
- If participants_access == false: EXCLUDE Survey and Interview.
- If lab_access == false: EXCLUDE Experiment.

After filtering, rank remaining approaches by fit. If fewer than 3 remain, explain why in the tradeoffs.

## Research Project

### Accepted Topic
- Title: %q
- Description: %s
- Keywords: %s

### Outline Summary
- Title: %q
- Sections: %s

### Researcher Constraints
- Time Budget: %s
- Data Availability: %s
- Lab Access: %s
- Participants Access: %s
- Software Tools: %s
- Additional Notes: %s
%s
Apply the constraint-based filtering rules strictly, then recommend the best approach with 2 alternatives.

Respond ONLY with valid JSON matching this exact structure:
{
  "refined_problem_statement": "A clear, specific problem statement (2-3 sentences)",
  "refined_research_questions": ["RQ1...", "RQ2...", "RQ3..."],
  "suggested_titles": ["Title option 1", "Title option 2", "Title option 3"],
  "recommended": {
    "approach": "Name of the approach (exactly as listed above)",
    "why_fit": ["Reason 1", "Reason 2", "Reason 3"],
    "effort_level": "low|medium|high",
    "what_user_must_provide": ["Requirement 1", "Requirement 2"]
  },
  "alternatives": [
    {"approach": "Alternative approach 1 name", "why": ["Why this could work"], "tradeoffs": ["Tradeoff/limitation"]},
    {"approach": "Alternative approach 2 name", "why": ["Why this could work"], "tradeoffs": ["Tradeoff/limitation"]}
  ]
}
No markdown, no extra text, no explanation outside the JSON.`,
		topic.Title, topic.Description, keywords,
		outline.Title, sectionsSummary,
		constraints.TimeBudget, constraints.DataAvailability,
		yesNo(constraints.Resources.LabAccess), yesNo(constraints.Resources.ParticipantsAccess),
		tools, notes, feedbackSection)

	s.emit(ctx, runID, agent, types.EventThinking,
		fmt.Sprintf("Evaluating approaches for %q with constraints: time=%s, data=%s...",
			topic.Title, constraints.TimeBudget, constraints.DataAvailability), nil)

	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierStandard, approachTemperature)
	if err != nil {
		return fmt.Errorf("approach recommendation failed: %w", err)
	}

	var result types.ApproachRecommendationContent
	if err := llm.ParseJSON(text, &result); err != nil {
		return fmt.Errorf("approach recommendation returned unparseable output: %w", err)
	}
	if result.Recommended.Approach == "" {
		return fmt.Errorf("approach recommendation returned no recommended approach")
	}

	s.emit(ctx, runID, agent, types.EventOutput,
		fmt.Sprintf("Refined problem statement: %s", result.RefinedProblemStatement), nil)

	for i, t := range result.SuggestedTitles {
		s.emit(ctx, runID, agent, types.EventOutput,
			fmt.Sprintf("Suggested title %d: %q", i+1, t), nil)
	}

	s.emit(ctx, runID, agent, types.EventRecommendation,
		fmt.Sprintf("RECOMMENDED: %s (effort: %s)\n   Why it fits: %s\n   You must provide: %s",
			result.Recommended.Approach, result.Recommended.EffortLevel,
			strings.Join(result.Recommended.WhyFit, "; "),
			strings.Join(result.Recommended.WhatUserMustProvide, "; ")), nil)

	for _, alt := range result.Alternatives {
		s.emit(ctx, runID, agent, types.EventOutput,
			fmt.Sprintf("Alternative: %s. Tradeoffs: %s",
				alt.Approach, strings.Join(alt.Tradeoffs, "; ")), nil)
	}

	result.Metadata = map[string]any{
		"model":      s.llm.GetModel(llm.TierStandard),
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := s.createValidatedArtifact(ctx, runID, types.ArtifactApproachRec, result); err != nil {
		return err
	}

	s.emit(ctx, runID, agent, types.EventComplete,
		"Approach recommendation complete. Review the recommended approach and alternatives below.", nil)
	return nil
}

// outlineSectionsSummary joins the first n section names for prompt context.
func outlineSectionsSummary(sections []types.OutlineSection, n int) string {
	if len(sections) == 0 {
		return "No sections"
	}
	if len(sections) > n {
		sections = sections[:n]
	}
	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = s.Name
	}
	return strings.Join(names, "; ")
}
