package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/researchgpt/researchgpt/internal/llm"
	"github.com/researchgpt/researchgpt/internal/types"
)

const planTemperature float32 = 0.6

// Template keys per approach. Public Dataset Analysis intentionally maps to
// an empty templates object.
var approachTemplateKeys = map[string]string{
	"Survey / Questionnaire":        "survey_questions",
	"Survey/Questionnaire":          "survey_questions",
	"Controlled Experiment":         "experiment_checklist",
	"Interview / Qualitative Study": "interview_guide",
	"Interview/Qualitative Study":   "interview_guide",
	"Systematic Literature Review":  "review_protocol",
	"Comparative Evaluation":        "evaluation_rubric",
}

// templateKeyForApproach resolves the specialized template an approach needs,
// falling back to substring matching for LLM-phrased approach names. An empty
// result means no template.
func templateKeyForApproach(approach string) string {
	if key, ok := approachTemplateKeys[approach]; ok {
		return key
	}
	lower := strings.ToLower(approach)
	switch {
	case strings.Contains(lower, "survey") || strings.Contains(lower, "questionnaire"):
		return "survey_questions"
	case strings.Contains(lower, "experiment"):
		return "experiment_checklist"
	case strings.Contains(lower, "interview") || strings.Contains(lower, "qualitative"):
		return "interview_guide"
	case strings.Contains(lower, "dataset"):
		return ""
	case strings.Contains(lower, "literature review") || strings.Contains(lower, "systematic"):
		return "review_protocol"
	case strings.Contains(lower, "comparative") || strings.Contains(lower, "evaluation"):
		return "evaluation_rubric"
	}
	return ""
}

// templateInstructions tells the LLM what to generate under each template key.
var templateInstructions = map[string]string{
	"survey_questions":     `Generate a "survey_questions" template: an array of 8-12 draft survey questions relevant to this research. Include a mix of Likert scale, multiple choice, and open-ended questions.`,
	"experiment_checklist": `Generate an "experiment_checklist" template: an array of 10-15 checklist items for setting up and running the experiment (variables, controls, materials, procedure steps, data recording).`,
	"interview_guide":      `Generate an "interview_guide" template: an array of 8-12 interview topics with probing questions for each topic.`,
	"review_protocol":      `Generate a "review_protocol" template: an object with "databases" (array of database names to search) and "screening_rules" (array of inclusion/exclusion screening steps).`,
	"evaluation_rubric":    `Generate an "evaluation_rubric" template: an array of objects, each with "criterion" (what to evaluate) and "scoring" (how to score it, e.g. "1-5 scale with descriptors").`,
}

const noTemplateInstruction = `The templates object should be an empty object {} since this approach does not require a specialized template.`

// runResearchPlan generates the Research Plan Pack, the terminal deliverable
// of the wizard, from every artifact the run has accumulated. Only the
// accepted topic is a hard requirement; everything else enriches the plan
// when present.
func runResearchPlan(ctx context.Context, s *Service, in runInput) error {
	const agent = "MethodologyWriter"
	runID := in.run.ID

	var accepted types.AcceptedTopicContent
	if err := s.requireArtifact(ctx, runID, types.ArtifactAcceptedTopic, &accepted); err != nil {
		return err
	}

	var outline types.OutlineContent
	if _, err := s.optionalArtifact(ctx, runID, types.StepOutline, &outline); err != nil {
		return err
	}
	var constraints types.ConstraintsContent
	hasConstraints, err := s.optionalArtifact(ctx, runID, types.StepConstraints, &constraints)
	if err != nil {
		return err
	}
	var selection types.SelectedApproachContent
	hasSelection, err := s.optionalArtifact(ctx, runID, types.ArtifactSelectedApproach, &selection)
	if err != nil {
		return err
	}
	var pack types.SourcesPackContent
	if _, err := s.optionalArtifact(ctx, runID, types.ArtifactSourcesPack, &pack); err != nil {
		return err
	}
	var evidence types.EvidencePlanContent
	if _, err := s.optionalArtifact(ctx, runID, types.ArtifactEvidencePlan, &evidence); err != nil {
		return err
	}

	topic := accepted.Selected
	approach := selection.SelectedApproach
	selTitle := selection.SelectedTitle
	if !hasSelection {
		approach = "Systematic Literature Review"
		selTitle = topic.Title
	}
	if !hasConstraints {
		constraints.TimeBudget = "weeks"
		constraints.DataAvailability = "public_only"
	}

	s.emit(ctx, runID, agent, types.EventStart,
		fmt.Sprintf("Generating Research Plan Pack for approach: %s", approach), nil)

	topPapers := make([]string, 0, 5)
	for _, p := range firstN(pack.Papers, 5) {
		topPapers = append(topPapers, p.Title)
	}
	nSources := len(pack.Papers) + len(pack.Datasets) + len(pack.Tools) + len(pack.KnowledgeBases)

	s.emit(ctx, runID, agent, types.EventThinking,
		fmt.Sprintf("Analyzing topic, constraints, and %d sources...", nSources), nil)

	templateKey := templateKeyForApproach(approach)
	templateInstruction := noTemplateInstruction
	if templateKey != "" {
		templateInstruction = templateInstructions[templateKey]
	}

	feedbackSection := ""
	if in.feedback != "" {
		feedbackSection = fmt.Sprintf(
			"\n\nIMPORTANT: The user reviewed a previous plan and provided this feedback:\n%q\n"+
				"You MUST incorporate this feedback in your new plan.\n", in.feedback)
	}

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
	topPapersText := "N/A"
	if len(topPapers) > 0 {
		topPapersText = strings.Join(firstN(topPapers, 3), ", ")
	}
	strategyText := "N/A"
	if len(evidence.CollectionStrategy) > 0 {
		strategyText = strings.Join(firstN(evidence.CollectionStrategy, 4), "; ")
	}
	evidenceType := evidence.EvidenceType
	if evidenceType == "" {
		evidenceType = "secondary"
	}

	prompt := fmt.Sprintf(`You are an expert research methodology advisor creating a comprehensive Research Plan Pack.

Your task: Generate a detailed, actionable research plan that a researcher can follow step by step.

The plan must be:
- Specific to the topic %q using the %q approach
- Realistic given the constraints (time: %s, data: %s)
- Grounded in the sources and evidence plan already gathered
- Actionable with concrete deliverables at each step

Create a comprehensive Research Plan Pack for this project.

## Research Context
- Selected Title: %q
- Original Topic: %q
- Description: %s
- Keywords: %s
- Selected Approach: %s

## Outline
%s

## Constraints
- Time Budget: %s
- Data Availability: %s
- Lab Access: %s
- Participants Access: %s
- Software Tools: %s
- Notes: %s

## Available Sources
- Papers: %d (top: %s)
- Datasets: %d
- Tools: %d
- Learning Resources: %d

## Evidence Plan
- Evidence Type: %s
- Strategy: %s
%s
## Required Output JSON Schema

{
  "final_title": "The finalized research title",
  "final_problem_statement": "A clear, specific 2-3 sentence problem statement",
  "final_research_questions": ["RQ1...", "RQ2...", "RQ3..."],
  "selected_approach": %q,
  "methodology_steps": [
    {
      "step": 1,
      "name": "Step name",
      "details": ["Specific action 1", "Specific action 2", "..."],
      "deliverables": ["What this step produces"]
    }
  ],
  "templates": {},
  "risks_constraints_ethics": [
    {
      "risk": "Description of the risk",
      "impact": "low|medium|high",
      "mitigation": "How to address this risk"
    }
  ],
  "next_actions": ["Immediate action 1", "Action 2", "..."]
}

Rules:
- Generate 5-8 methodology steps, each with 2-4 details and 1-3 deliverables
- Steps should follow a logical sequence appropriate for the %s approach
- Include 4-7 risks covering feasibility, data quality, ethics, and time
- Include 5-8 concrete next actions in priority order
- All content must be specific to THIS research project, not generic
- %s

Output ONLY valid JSON matching the exact schema above. No markdown, no extra text.`,
		selTitle, approach, constraints.TimeBudget, constraints.DataAvailability,
		selTitle, topic.Title, topic.Description, keywords, approach,
		outlineBulletsContext(outline.Sections, 8),
		constraints.TimeBudget, constraints.DataAvailability,
		yesNo(constraints.Resources.LabAccess), yesNo(constraints.Resources.ParticipantsAccess),
		tools, notes,
		len(pack.Papers), topPapersText, len(pack.Datasets), len(pack.Tools), len(pack.KnowledgeBases),
		evidenceType, strategyText, feedbackSection,
		approach, approach, templateInstruction)

	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierAdvanced, planTemperature)
	if err != nil {
		return fmt.Errorf("research plan generation failed: %w", err)
	}

	var result types.ResearchPlanPackContent
	if err := llm.ParseJSON(text, &result); err != nil {
		return fmt.Errorf("research plan generation returned unparseable output: %w", err)
	}
	if len(result.MethodologySteps) == 0 {
		return fmt.Errorf("research plan generation returned no methodology steps")
	}

	for _, step := range result.MethodologySteps {
		s.emit(ctx, runID, agent, types.EventSection,
			fmt.Sprintf("Methodology step %d: %s", step.Step, step.Name), nil)
	}

	if len(result.Templates) > 0 {
		for key := range result.Templates {
			s.emit(ctx, runID, agent, types.EventTemplates,
				fmt.Sprintf("Generated %s template", key), nil)
		}
	} else {
		s.emit(ctx, runID, agent, types.EventTemplates,
			"No specialized templates needed for this approach", nil)
	}

	s.emit(ctx, runID, agent, types.EventRisks,
		fmt.Sprintf("Identified %d risks/constraints", len(result.RisksConstraintsEthics)), nil)

	s.emit(ctx, runID, agent, types.EventOutput,
		fmt.Sprintf("Research Plan Pack complete: %d methodology steps, %d risks, %d next actions",
			len(result.MethodologySteps), len(result.RisksConstraintsEthics), len(result.NextActions)), nil)

	result.Metadata = map[string]any{
		"model":        s.llm.GetModel(llm.TierAdvanced),
		"created_at":   time.Now().UTC().Format(time.RFC3339),
		"template_key": templateKey,
	}

	if _, err := s.createValidatedArtifact(ctx, runID, types.ArtifactResearchPlan, result); err != nil {
		return err
	}

	s.emit(ctx, runID, agent, types.EventComplete,
		"Phase 2 complete. Research Plan Pack ready for review.", nil)
	return nil
}
