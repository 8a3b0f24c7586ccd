package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/llm"
	"github.com/researchgpt/researchgpt/internal/types"
)

// Candidate count bounds for the topic proposer.
const (
	defaultNumCandidates = 5
	minNumCandidates     = 2
	maxNumCandidates     = 10
)

// Sampling temperatures per agent. Proposal runs hot for diversity, critique
// runs cold for consistent scoring.
const (
	topicProposerTemperature float32 = 0.8
	topicCriticTemperature   float32 = 0.3
)

// runTopicCritic generates topic candidates from the submitted idea and then
// critiques them, producing the topic_critic artifact.
func runTopicCritic(ctx context.Context, s *Service, in runInput) error {
	runID := in.run.ID

	var idea types.IdeaContent
	if err := s.requireArtifact(ctx, runID, types.StepIdea, &idea); err != nil {
		return err
	}

	numCandidates := in.numCandidates
	if numCandidates == 0 {
		numCandidates = defaultNumCandidates
	}
	if numCandidates < minNumCandidates {
		numCandidates = minNumCandidates
	}
	if numCandidates > maxNumCandidates {
		numCandidates = maxNumCandidates
	}

	candidates, err := proposeTopics(ctx, s, runID, idea.Text(), in.feedback, numCandidates)
	if err != nil {
		return err
	}

	criticResult, err := critiqueTopics(ctx, s, runID, candidates)
	if err != nil {
		return err
	}

	content := types.TopicCriticContent{
		Candidates:   candidates,
		CriticResult: *criticResult,
		Metadata: map[string]any{
			"num_candidates": numCandidates,
			"model":          s.llm.GetModel(llm.TierStandard),
			"feedback":       in.feedback,
		},
	}
	_, err = s.createValidatedArtifact(ctx, runID, types.StepTopicCritic, content)
	return err
}

func proposeTopics(ctx context.Context, s *Service, runID uuid.UUID, idea, feedback string, numCandidates int) ([]types.TopicCandidate, error) {
	const agent = "TopicProposer"

	s.emit(ctx, runID, agent, types.EventStart,
		fmt.Sprintf("Generating %d diverse research topic candidates from idea: %q", numCandidates, idea), nil)

	feedbackSection := ""
	if feedback != "" {
		feedbackSection = fmt.Sprintf(
			"\n\nIMPORTANT: The user reviewed previous candidates and provided this feedback:\n%q\n"+
				"You MUST incorporate this feedback. Adjust the topics accordingly.\n", feedback)
	}

	prompt := fmt.Sprintf(`You are an expert academic research topic proposal agent. Your goal is to transform a broad research idea into specific, novel, and academically rigorous research topics.

Guidelines for generating high-quality topics:
- Each topic must be SPECIFIC enough to be a thesis or research paper title. Avoid vague or generic titles.
- Topics should explore DIFFERENT angles, methods, or sub-domains of the idea.
- Include a clear research angle (e.g., comparative study, causal analysis, systematic review, case study, experimental design).
- Titles should hint at methodology or scope (e.g., 'A Comparative Analysis of...', 'Evaluating the Impact of... on...').
- Descriptions must specify: what is being studied, what method/approach is used, and what gap it addresses.
- Keywords should be terms that would appear in an academic paper index.

Each candidate MUST have:
- title: A specific, publication-ready research title (10-20 words)
- description: 2-3 sentences explaining the scope, methodology angle, and what makes this topic valuable
- keywords: 4-6 relevant academic keywords
- research_angle: one of ['comparative_study', 'causal_analysis', 'systematic_review', 'experimental', 'case_study', 'mixed_methods', 'theoretical_framework']

Research idea: %q

Generate exactly %d distinct research topic candidates. Each must take a meaningfully different angle or sub-domain. Avoid generic or overlapping topics.%s

Respond ONLY with valid JSON: {"candidates": [{"title": "...", "description": "...", "keywords": ["..."], "research_angle": "..."}]}
No markdown, no extra text, no explanation outside the JSON.`, idea, numCandidates, feedbackSection)

	s.emit(ctx, runID, agent, types.EventThinking,
		fmt.Sprintf("Brainstorming %d specific research angles...", numCandidates), nil)

	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierStandard, topicProposerTemperature)
	if err != nil {
		return nil, fmt.Errorf("topic proposal failed: %w", err)
	}

	var parsed struct {
		Candidates []types.TopicCandidate `json:"candidates"`
	}
	if err := llm.ParseJSON(text, &parsed); err != nil {
		return nil, fmt.Errorf("topic proposal returned unparseable output: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("topic proposal returned no candidates")
	}

	for i, c := range parsed.Candidates {
		desc := c.Description
		if len(desc) > 120 {
			desc = desc[:120] + "..."
		}
		s.emit(ctx, runID, agent, types.EventCandidate,
			fmt.Sprintf("Topic %d/%d: %q [%s] %s", i+1, len(parsed.Candidates), c.Title, c.ResearchAngle, desc),
			map[string]any{
				"index":    i,
				"title":    c.Title,
				"keywords": strings.Join(c.Keywords, ", "),
			})
	}

	s.emit(ctx, runID, agent, types.EventComplete,
		fmt.Sprintf("Generated %d topic candidates. Passing to Critic for evaluation.", len(parsed.Candidates)), nil)

	return parsed.Candidates, nil
}

func critiqueTopics(ctx context.Context, s *Service, runID uuid.UUID, candidates []types.TopicCandidate) (*types.CriticResult, error) {
	const agent = "TopicCritic"

	s.emit(ctx, runID, agent, types.EventStart,
		fmt.Sprintf("Starting critical evaluation of %d topic candidates...", len(candidates)), nil)

	candidatesJSON, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize candidates: %w", err)
	}

	prompt := fmt.Sprintf(`You are a senior academic research advisor acting as a critical evaluator. Your job is to rigorously evaluate research topic candidates and recommend the BEST one.

Evaluate each candidate on these criteria (score each 1-10):
1. Novelty: Does this address a genuine gap in existing literature? Is it original?
2. Feasibility: Can this be researched within a reasonable scope (6-12 months)? Are data/methods accessible?
3. Specificity: Is the research question clear and well-scoped? (Penalize vague/broad topics heavily)
4. Impact: Would this contribute meaningfully to the field? Is it relevant to current discourse?
5. Methodology fit: Does the described approach match the research question?

For each candidate provide:
- rank: integer (1 = best)
- candidate_index: 0-based index in the input array
- title: the candidate's title
- scores: {novelty: float, feasibility: float, specificity: float, impact: float, methodology_fit: float}
- overall_score: weighted average (specificity has 2x weight)
- strengths: array of 2-3 specific strengths
- weaknesses: array of 1-2 specific weaknesses
- one_line_verdict: a single sentence assessment

Also provide:
- recommended_index: 0-based index of the best candidate
- recommendation: 2-3 sentences explaining WHY this topic is the best choice
- suggested_narrowing: how to further narrow/focus the recommended topic for maximum impact
- research_questions: 3-5 concrete, testable research questions for the recommended topic
- methodology_suggestion: 1-2 sentences on the best research methodology for the recommended topic

Critically evaluate these %d research topic candidates. Be rigorous: penalize vague, overly broad, or generic topics. Reward specificity, clear methodology, and genuine novelty.

Candidates:
%s

Respond ONLY with valid JSON: {"rankings": [...], "recommended_index": N, "recommendation": "...", "suggested_narrowing": "...", "research_questions": [...], "methodology_suggestion": "..."}
No markdown, no extra text, no explanation outside the JSON.`, len(candidates), candidatesJSON)

	s.emit(ctx, runID, agent, types.EventThinking,
		"Analyzing each candidate for novelty, feasibility, specificity, impact, and methodology fit...", nil)

	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierStandard, topicCriticTemperature)
	if err != nil {
		return nil, fmt.Errorf("topic critique failed: %w", err)
	}

	var result types.CriticResult
	if err := llm.ParseJSON(text, &result); err != nil {
		return nil, fmt.Errorf("topic critique returned unparseable output: %w", err)
	}
	if result.RecommendedIndex < 0 || result.RecommendedIndex >= len(candidates) {
		return nil, fmt.Errorf("critic recommended index %d out of range", result.RecommendedIndex)
	}

	rankings := make([]types.TopicRanking, len(result.Rankings))
	copy(rankings, result.Rankings)
	sort.SliceStable(rankings, func(i, j int) bool { return rankings[i].Rank < rankings[j].Rank })

	for _, r := range rankings {
		scoreDetails := make([]string, 0, len(r.Scores))
		for k, v := range r.Scores {
			scoreDetails = append(scoreDetails, fmt.Sprintf("%s=%.1f", k, v))
		}
		sort.Strings(scoreDetails)

		s.emit(ctx, runID, agent, types.EventEvaluation,
			fmt.Sprintf("#%d (score: %.1f/10) %q\n   Scores: %s\n   Strengths: %s\n   Weaknesses: %s\n   Verdict: %s",
				r.Rank, r.OverallScore, r.Title,
				strings.Join(scoreDetails, ", "),
				strings.Join(r.Strengths, "; "),
				strings.Join(r.Weaknesses, "; "),
				r.OneLineVerdict),
			map[string]any{
				"rank":          r.Rank,
				"title":         r.Title,
				"overall_score": r.OverallScore,
			})
	}

	recTitle := candidates[result.RecommendedIndex].Title
	s.emit(ctx, runID, agent, types.EventRecommendation,
		fmt.Sprintf("RECOMMENDED: %q\n   Why: %s\n   Suggested narrowing: %s\n   Research questions: %s",
			recTitle, result.Recommendation, result.SuggestedNarrowing,
			strings.Join(result.ResearchQuestions, "; ")),
		map[string]any{
			"recommended_index": result.RecommendedIndex,
			"recommended_title": recTitle,
		})

	s.emit(ctx, runID, agent, types.EventComplete,
		"Topic critique complete. See artifacts for full details.", nil)

	return &result, nil
}
