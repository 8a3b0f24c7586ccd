package wizard

import (
	"context"
	"fmt"
	"strings"

	"github.com/researchgpt/researchgpt/internal/llm"
	"github.com/researchgpt/researchgpt/internal/types"
)

const outlineTemperature float32 = 0.6

// runOutline generates the structured paper outline from the accepted topic,
// producing the outline artifact. Completing it ends phase 1.
func runOutline(ctx context.Context, s *Service, in runInput) error {
	const agent = "OutlineWriter"
	runID := in.run.ID

	var accepted types.AcceptedTopicContent
	if err := s.requireArtifact(ctx, runID, types.ArtifactAcceptedTopic, &accepted); err != nil {
		return err
	}

	// The original idea adds context when present but is not required here.
	var idea types.IdeaContent
	hasIdea, err := s.optionalArtifact(ctx, runID, types.StepIdea, &idea)
	if err != nil {
		return err
	}

	topic := accepted.Selected

	s.emit(ctx, runID, agent, types.EventStart,
		fmt.Sprintf("Generating structured outline for: %q", topic.Title), nil)

	feedbackSection := ""
	if in.feedback != "" {
		feedbackSection = fmt.Sprintf(
			"\n\nIMPORTANT: The user provided feedback on a previous outline:\n%q\n"+
				"You MUST incorporate this feedback. Adjust the outline accordingly.\n", in.feedback)
	}

	ideaSection := ""
	if hasIdea {
		ideaSection = fmt.Sprintf("\nOriginal research idea: %q\n", idea.Text())
	}

	keywords := "N/A"
	if len(topic.Keywords) > 0 {
		keywords = strings.Join(topic.Keywords, ", ")
	}

	prompt := fmt.Sprintf(`You are an expert academic research outline architect. Your task is to create a comprehensive, well-structured research paper outline.

The outline MUST include:
- title: A refined, publication-ready title (may be adjusted from the accepted topic)
- abstract: A 6-10 sentence abstract that summarizes the research question, methodology, expected contributions, and significance
- sections: An array of section objects, each with:
  - name: The section heading
  - bullets: 3-6 specific content bullet points describing what goes in this section
- keywords: 5-8 academic keywords for the paper

Standard sections to include (adapt as appropriate for the research angle):
1. Introduction (research question, motivation, contribution statement)
2. Background & Related Work (literature context, gaps identified)
3. Methodology / Theoretical Framework (approach, data sources, tools)
4. Data Collection & Analysis / Experimental Design (specifics of how research is conducted)
5. Expected Results / Discussion (anticipated findings, implications)
6. Limitations & Future Work
7. Conclusion

Each bullet point should be specific and actionable, not a vague placeholder.

Create a detailed research paper outline for the following accepted topic:

Title: %q
Description: %s
Research angle: %s
Keywords: %s
%s%s
Respond ONLY with valid JSON: {"title": "...", "abstract": "...", "sections": [{"name": "...", "bullets": ["..."]}], "keywords": ["..."]}
No markdown, no extra text, no explanation outside the JSON.`,
		topic.Title, topic.Description, topic.ResearchAngle, keywords, ideaSection, feedbackSection)

	s.emit(ctx, runID, agent, types.EventThinking,
		"Generating structured outline with sections and bullet points...", nil)

	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierAdvanced, outlineTemperature)
	if err != nil {
		return fmt.Errorf("outline generation failed: %w", err)
	}

	var outline types.OutlineContent
	if err := llm.ParseJSON(text, &outline); err != nil {
		return fmt.Errorf("outline generation returned unparseable output: %w", err)
	}
	if len(outline.Sections) == 0 {
		return fmt.Errorf("outline generation returned no sections")
	}

	for i, section := range outline.Sections {
		s.emit(ctx, runID, agent, types.EventSection,
			fmt.Sprintf("Section %d/%d: %q (%d bullet points)",
				i+1, len(outline.Sections), section.Name, len(section.Bullets)),
			map[string]any{
				"index":        i,
				"section_name": section.Name,
			})
	}

	finalTitle := outline.Title
	if finalTitle == "" {
		finalTitle = topic.Title
	}
	s.emit(ctx, runID, agent, types.EventOutput,
		fmt.Sprintf("Outline ready: %q with %d sections generated.", finalTitle, len(outline.Sections)), nil)

	outline.Metadata = map[string]any{
		"model":        s.llm.GetModel(llm.TierAdvanced),
		"feedback":     in.feedback,
		"source_topic": topic.Title,
	}

	if _, err := s.createValidatedArtifact(ctx, runID, types.StepOutline, outline); err != nil {
		return err
	}

	s.emit(ctx, runID, agent, types.EventComplete,
		"Outline generation complete. See artifacts for full details.", nil)
	return nil
}
