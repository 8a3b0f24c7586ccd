package wizard

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchgpt/researchgpt/internal/broadcast"
	"github.com/researchgpt/researchgpt/internal/research"
	"github.com/researchgpt/researchgpt/internal/types"
)

const proposerResponse = `{
  "candidates": [
    {
      "title": "Evaluating the Impact of Sleep Spindle Density on Declarative Memory Consolidation in Adolescents",
      "description": "Examines the correlation between spindle density and recall performance using public polysomnography datasets.",
      "keywords": ["sleep spindles", "memory consolidation", "adolescents"],
      "research_angle": "causal_analysis"
    },
    {
      "title": "A Comparative Analysis of Nap Versus Overnight Sleep Effects on Procedural Memory",
      "description": "Compares procedural memory gains after daytime naps and full overnight sleep across published experiments.",
      "keywords": ["napping", "procedural memory", "sleep architecture"],
      "research_angle": "comparative_study"
    }
  ]
}`

const criticResponse = `{
  "rankings": [
    {
      "rank": 1,
      "candidate_index": 1,
      "title": "A Comparative Analysis of Nap Versus Overnight Sleep Effects on Procedural Memory",
      "scores": {"novelty": 7, "feasibility": 9, "specificity": 8, "impact": 7, "methodology_fit": 8},
      "overall_score": 7.8,
      "strengths": ["Clear comparison design", "Feasible with published data"],
      "weaknesses": ["Moderate novelty"],
      "one_line_verdict": "Well-scoped and highly feasible."
    },
    {
      "rank": 2,
      "candidate_index": 0,
      "title": "Evaluating the Impact of Sleep Spindle Density on Declarative Memory Consolidation in Adolescents",
      "scores": {"novelty": 8, "feasibility": 6, "specificity": 7, "impact": 8, "methodology_fit": 7},
      "overall_score": 7.1,
      "strengths": ["Novel population focus"],
      "weaknesses": ["Dataset access uncertain", "Broad outcome measures"],
      "one_line_verdict": "Promising but riskier."
    }
  ],
  "recommended_index": 1,
  "recommendation": "The comparative design is feasible within months and has clear methodology.",
  "suggested_narrowing": "Restrict to motor sequence learning tasks.",
  "research_questions": ["Do naps yield comparable procedural gains to overnight sleep?"],
  "methodology_suggestion": "Meta-analytic comparison of published effect sizes."
}`

const outlineResponse = `{
  "title": "Nap Versus Overnight Sleep and Procedural Memory: A Comparative Analysis",
  "abstract": "This study compares procedural memory consolidation after naps and overnight sleep.",
  "sections": [
    {"name": "Introduction", "bullets": ["Motivation", "Research questions"]},
    {"name": "Methodology", "bullets": ["Inclusion criteria", "Effect size extraction"]},
    {"name": "Results", "bullets": ["Comparative effect sizes"]}
  ],
  "keywords": ["napping", "procedural memory"]
}`

const approachResponse = `{
  "refined_problem_statement": "It is unclear whether daytime naps confer procedural memory benefits comparable to overnight sleep.",
  "refined_research_questions": ["RQ1: Do naps match overnight sleep for motor sequence consolidation?"],
  "suggested_titles": ["Napping and Procedural Memory: A Systematic Comparison"],
  "recommended": {
    "approach": "Systematic Literature Review",
    "why_fit": ["Public-only data constraint rules out new experiments"],
    "tradeoffs": ["Limited to published effect sizes"],
    "effort_level": "medium",
    "what_user_must_provide": ["Database access"]
  },
  "alternatives": [
    {"approach": "Public Dataset Analysis", "why": ["Polysomnography archives exist"], "tradeoffs": ["Few include memory tasks"]}
  ]
}`

const keywordsResponse = `{"keywords": ["sleep spindles memory", "nap procedural memory", "sleep consolidation meta-analysis"]}`

const rankingResponse = `{
  "papers": [
    {
      "title": "Sleep Spindles and Memory Consolidation",
      "authors": ["A. Researcher"],
      "year": 2021,
      "venue": "Journal of Sleep Research",
      "doi": "10.1000/sleep.2021.001",
      "url": "https://doi.org/10.1000/sleep.2021.001",
      "pdf_url": "https://example.org/spindles.pdf",
      "why_relevant": "Directly measures spindle density against recall.",
      "credibility_notes": "peer-reviewed"
    },
    {
      "title": "Napping Effects on Motor Learning",
      "authors": ["B. Scholar"],
      "year": 2020,
      "doi": "10.1000/nap.2020.002",
      "why_relevant": "Compares nap and overnight consolidation.",
      "credibility_notes": "peer-reviewed"
    }
  ]
}`

const datasetsFilterResponse = `{
  "datasets": [
    {"name": "Sleep-EDF Database", "domain": "polysomnography", "url": "https://physionet.org/content/sleep-edf/", "why_relevant": "Public sleep recordings with annotations.", "license": "ODC-BY"}
  ]
}`

const learningFilterResponse = `{
  "resources": [
    {"name": "Sleep and Memory Lecture", "url": "https://youtube.com/watch?v=sleepmem", "why_useful": "Accessible overview of consolidation mechanisms.", "source": "youtube.com"}
  ]
}`

const toolsFilterResponse = `{
  "tools": [
    {"name": "YASA", "type": "library", "url": "https://github.com/raphaelvallat/yasa", "why_useful": "Detects sleep spindles in EEG recordings."}
  ]
}`

const evidenceResponse = `{
  "evidence_type": "secondary",
  "collection_strategy": ["Step 1: Search PubMed and PsycINFO", "Step 2: Screen abstracts", "Step 3: Extract effect sizes"],
  "inclusion_exclusion": {"include": ["Peer-reviewed studies"], "exclude": ["Animal studies"]},
  "analysis_overview": "Random-effects meta-analysis of standardized mean differences.",
  "expected_outputs": ["Forest plot", "Summary effect estimate"]
}`

const planResponse = `{
  "final_title": "Nap Versus Overnight Sleep and Procedural Memory: A Systematic Comparison",
  "final_problem_statement": "Whether naps match overnight sleep for procedural consolidation remains unresolved.",
  "final_research_questions": ["RQ1: Do naps match overnight sleep?", "RQ2: Does task type moderate the effect?"],
  "selected_approach": "Systematic Literature Review",
  "methodology_steps": [
    {"step": 1, "name": "Define search protocol", "details": ["Select databases", "Draft query strings"], "deliverables": ["Search protocol document"]},
    {"step": 2, "name": "Screen and extract", "details": ["Apply inclusion criteria", "Extract effect sizes"], "deliverables": ["Screened study list"]},
    {"step": 3, "name": "Synthesize findings", "details": ["Run meta-analysis"], "deliverables": ["Forest plot"]}
  ],
  "templates": {
    "review_protocol": {
      "databases": ["PubMed", "PsycINFO"],
      "screening_rules": ["Include peer-reviewed human studies", "Exclude case reports"]
    }
  },
  "risks_constraints_ethics": [
    {"risk": "Publication bias inflates effects", "impact": "medium", "mitigation": "Funnel plot asymmetry tests"}
  ],
  "next_actions": ["Register the review protocol", "Run pilot searches"]
}`

func seedPhase1Artifacts(t *testing.T, e *testEnv, run *types.Run) {
	t.Helper()
	e.seedArtifact(t, run.ID, types.StepIdea, types.IdeaContent{Title: "Sleep and memory"})
	e.seedArtifact(t, run.ID, types.ArtifactAcceptedTopic, types.AcceptedTopicContent{
		SelectedIndex: 1,
		Selected: types.TopicCandidate{
			Title:       "A Comparative Analysis of Nap Versus Overnight Sleep Effects on Procedural Memory",
			Description: "Compares procedural memory gains after naps and overnight sleep.",
			Keywords:    []string{"napping", "procedural memory"},
		},
		SourceTopicCriticVersion: 1,
	})
	e.seedArtifact(t, run.ID, types.StepOutline, types.OutlineContent{
		Title:    "Nap Versus Overnight Sleep and Procedural Memory",
		Sections: []types.OutlineSection{{Name: "Introduction"}, {Name: "Methodology"}},
	})
}

func seedPhase2Artifacts(t *testing.T, e *testEnv, run *types.Run) {
	t.Helper()
	seedPhase1Artifacts(t, e, run)
	e.seedArtifact(t, run.ID, types.StepConstraints, types.ConstraintsContent{
		TimeBudget:       "weeks",
		DataAvailability: "public_only",
	})
	e.seedArtifact(t, run.ID, types.ArtifactSelectedApproach, types.SelectedApproachContent{
		SelectedApproach: "Systematic Literature Review",
		SelectedTitle:    "Napping and Procedural Memory: A Systematic Comparison",
	})
}

func TestTopicCriticStep(t *testing.T) {
	e := newTestEnv(t)
	run := e.newRun(t)
	e.seedArtifact(t, run.ID, types.StepIdea, types.IdeaContent{Title: "Sleep and memory"})

	e.llm.enqueue(proposerResponse, criticResponse)
	_, err := e.svc.TriggerStep(context.Background(), e.owner, run.ID, types.StepTopicCritic,
		types.TriggerStepRequest{})
	require.NoError(t, err)

	snapshot := e.waitForStatus(t, run.ID, types.StatusAwaitingFeedback)
	assert.Equal(t, types.StepTopicCritic, snapshot.Step)
	assert.Equal(t, types.PhaseOne, snapshot.Phase)

	artifact, err := e.store.GetLatestArtifact(context.Background(), run.ID, types.StepTopicCritic)
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, 1, artifact.Version)

	var content types.TopicCriticContent
	require.NoError(t, decodeContent(artifact, &content))
	assert.Len(t, content.Candidates, 2)
	assert.Equal(t, 1, content.CriticResult.RecommendedIndex)
	assert.Equal(t, float64(5), artifact.Content["metadata"].(map[string]any)["num_candidates"])

	assert.Len(t, e.store.eventsOf(run.ID, "TopicProposer", types.EventCandidate), 2)
	assert.Len(t, e.store.eventsOf(run.ID, "TopicCritic", types.EventEvaluation), 2)
	assert.Len(t, e.store.eventsOf(run.ID, "TopicCritic", types.EventRecommendation), 1)
}

func TestTopicCriticStep_FeedbackRegeneration(t *testing.T) {
	e := newTestEnv(t)
	run := e.newRun(t)
	e.seedArtifact(t, run.ID, types.StepIdea, types.IdeaContent{Title: "Sleep and memory"})

	e.llm.enqueue(proposerResponse, criticResponse)
	_, err := e.svc.TriggerStep(context.Background(), e.owner, run.ID, types.StepTopicCritic,
		types.TriggerStepRequest{})
	require.NoError(t, err)
	e.waitForStatus(t, run.ID, types.StatusAwaitingFeedback)

	e.llm.enqueue(proposerResponse, criticResponse)
	_, err = e.svc.TriggerStep(context.Background(), e.owner, run.ID, types.StepTopicCritic,
		types.TriggerStepRequest{Feedback: "focus on adolescents only", NumCandidates: 50})
	require.NoError(t, err)
	e.waitForStatus(t, run.ID, types.StatusAwaitingFeedback)

	artifact, err := e.store.GetLatestArtifact(context.Background(), run.ID, types.StepTopicCritic)
	require.NoError(t, err)
	assert.Equal(t, 2, artifact.Version)
	// Requested count is clamped to the upper bound.
	assert.Equal(t, float64(10), artifact.Content["metadata"].(map[string]any)["num_candidates"])

	e.llm.mu.Lock()
	proposerPrompt := e.llm.prompts[2]
	e.llm.mu.Unlock()
	assert.Contains(t, proposerPrompt, "focus on adolescents only")
}

func TestOutlineStep_TerminalCompletion(t *testing.T) {
	e := newTestEnv(t)
	run := e.newRun(t)
	e.seedArtifact(t, run.ID, types.ArtifactAcceptedTopic, types.AcceptedTopicContent{
		Selected: types.TopicCandidate{Title: "Nap versus overnight sleep"},
	})

	e.llm.enqueue(outlineResponse)
	_, err := e.svc.TriggerStep(context.Background(), e.owner, run.ID, types.StepOutline,
		types.TriggerStepRequest{})
	require.NoError(t, err)

	snapshot := e.waitForStatus(t, run.ID, types.StatusCompleted)
	assert.Equal(t, types.StepOutline, snapshot.Step)
	assert.Equal(t, types.PhaseOne, snapshot.Phase)

	artifact, err := e.store.GetLatestArtifact(context.Background(), run.ID, types.StepOutline)
	require.NoError(t, err)
	require.NotNil(t, artifact)

	var outline types.OutlineContent
	require.NoError(t, decodeContent(artifact, &outline))
	assert.Len(t, outline.Sections, 3)

	assert.Len(t, e.store.eventsOf(run.ID, "OutlineWriter", types.EventSection), 3)
}

func TestApproachStep(t *testing.T) {
	e := newTestEnv(t)
	run := e.newRun(t)
	seedPhase1Artifacts(t, e, run)
	e.seedArtifact(t, run.ID, types.StepConstraints, types.ConstraintsContent{
		TimeBudget:       "weeks",
		DataAvailability: "public_only",
	})
	require.NoError(t, e.store.UpdateRunState(context.Background(), run.ID,
		types.PhaseTwo, types.StepApproach, types.StatusAwaitingFeedback))

	e.llm.enqueue(approachResponse)
	_, err := e.svc.TriggerStep(context.Background(), e.owner, run.ID, types.StepApproach,
		types.TriggerStepRequest{})
	require.NoError(t, err)

	snapshot := e.waitForStatus(t, run.ID, types.StatusAwaitingFeedback)
	assert.Equal(t, types.StepApproach, snapshot.Step)

	artifact, err := e.store.GetLatestArtifact(context.Background(), run.ID, types.ArtifactApproachRec)
	require.NoError(t, err)
	require.NotNil(t, artifact)

	var rec types.ApproachRecommendationContent
	require.NoError(t, decodeContent(artifact, &rec))
	assert.Equal(t, "Systematic Literature Review", rec.Recommended.Approach)
	assert.Len(t, rec.Alternatives, 1)

	assert.Len(t, e.store.eventsOf(run.ID, "ApproachRecommender", types.EventRecommendation), 1)
}

// queryWebSearcher synthesizes a unique result per query so every query group
// survives URL deduplication.
type queryWebSearcher struct{}

func (queryWebSearcher) Search(_ context.Context, query string, _ int) ([]research.WebResult, error) {
	slug := strings.ReplaceAll(strings.ToLower(query), " ", "-")
	return []research.WebResult{{
		Title:   query,
		URL:     fmt.Sprintf("https://example.org/%s", slug),
		Snippet: "A result for " + query,
		Domain:  "example.org",
	}}, nil
}

func newSourcesEnv(t *testing.T) *testEnv {
	t.Helper()
	e := newTestEnv(t)
	oaPaper := research.PaperResult{
		Title:        "Sleep Spindles and Memory Consolidation",
		Authors:      []string{"A. Researcher"},
		Year:         2021,
		DOI:          "10.1000/sleep.2021.001",
		URL:          "https://doi.org/10.1000/sleep.2021.001",
		CitedByCount: 42,
		Source:       "openalex",
	}
	ssPaper := research.PaperResult{
		Title:  "Napping Effects on Motor Learning",
		DOI:    "10.1000/nap.2020.002",
		Year:   2020,
		Source: "semantic_scholar",
	}
	e.svc = NewService(e.store, e.llm, Research{
		OpenAlex: &fakeKeywordSource{papers: []research.PaperResult{oaPaper}},
		Scholar:  &fakeQuerySource{papers: []research.PaperResult{ssPaper}},
		Crossref: &fakeDOIVerifier{byDOI: map[string]*research.PaperResult{
			research.NormalizeDOI("10.1000/nap.2020.002"): {
				Venue: "Neurobiology of Learning and Memory",
				URL:   "https://doi.org/10.1000/nap.2020.002",
			},
		}},
		Unpaywall: &fakeOAResolver{byDOI: map[string]string{
			research.NormalizeDOI("10.1000/sleep.2021.001"): "https://example.org/spindles.pdf",
		}},
		Web: queryWebSearcher{},
	}, broadcast.NewRegistry())
	return e
}

func TestSourcesStep_ProducesBothArtifacts(t *testing.T) {
	e := newSourcesEnv(t)
	run := e.newRun(t)
	seedPhase2Artifacts(t, e, run)
	require.NoError(t, e.store.UpdateRunState(context.Background(), run.ID,
		types.PhaseTwo, types.StepSources, types.StatusAwaitingFeedback))

	// Keyword generation, paper ranking, three web filters, evidence plan.
	e.llm.enqueue(keywordsResponse, rankingResponse,
		datasetsFilterResponse, learningFilterResponse, toolsFilterResponse,
		evidenceResponse)

	_, err := e.svc.TriggerStep(context.Background(), e.owner, run.ID, types.StepSources,
		types.TriggerStepRequest{})
	require.NoError(t, err)

	snapshot := e.waitForStatus(t, run.ID, types.StatusAwaitingFeedback)
	assert.Equal(t, types.StepSources, snapshot.Step)

	packArtifact, err := e.store.GetLatestArtifact(context.Background(), run.ID, types.ArtifactSourcesPack)
	require.NoError(t, err)
	require.NotNil(t, packArtifact)

	var pack types.SourcesPackContent
	require.NoError(t, decodeContent(packArtifact, &pack))
	require.Len(t, pack.Papers, 2)
	assert.Equal(t, "OpenAlex", pack.Papers[0].Source)
	assert.Equal(t, "Semantic Scholar", pack.Papers[1].Source)
	assert.Len(t, pack.Datasets, 1)
	assert.Len(t, pack.KnowledgeBases, 1)
	assert.Len(t, pack.Tools, 1)

	planArtifact, err := e.store.GetLatestArtifact(context.Background(), run.ID, types.ArtifactEvidencePlan)
	require.NoError(t, err)
	require.NotNil(t, planArtifact)

	var plan types.EvidencePlanContent
	require.NoError(t, decodeContent(planArtifact, &plan))
	assert.Equal(t, "secondary", plan.EvidenceType)
	assert.Len(t, plan.CollectionStrategy, 3)
}

func TestSourcesStep_DegradesWithoutCollaborators(t *testing.T) {
	e := newTestEnv(t)
	run := e.newRun(t)
	seedPhase2Artifacts(t, e, run)
	require.NoError(t, e.store.UpdateRunState(context.Background(), run.ID,
		types.PhaseTwo, types.StepSources, types.StatusAwaitingFeedback))

	// No academic sources means ranking falls back to an empty list; no web
	// searcher means the filter calls are skipped entirely.
	e.llm.enqueue(keywordsResponse, `{"papers": []}`, evidenceResponse)

	_, err := e.svc.TriggerStep(context.Background(), e.owner, run.ID, types.StepSources,
		types.TriggerStepRequest{})
	require.NoError(t, err)

	e.waitForStatus(t, run.ID, types.StatusAwaitingFeedback)

	packArtifact, err := e.store.GetLatestArtifact(context.Background(), run.ID, types.ArtifactSourcesPack)
	require.NoError(t, err)
	require.NotNil(t, packArtifact)

	var pack types.SourcesPackContent
	require.NoError(t, decodeContent(packArtifact, &pack))
	assert.Empty(t, pack.Papers)
	assert.Empty(t, pack.Datasets)

	warnings := e.store.eventsOf(run.ID, "SourceScout", types.EventWarning)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[len(warnings)-1].Payload["message"].(string), "Web search is not configured")
}

func TestPlanStep_TerminalCompletion(t *testing.T) {
	e := newTestEnv(t)
	run := e.newRun(t)
	seedPhase2Artifacts(t, e, run)
	require.NoError(t, e.store.UpdateRunState(context.Background(), run.ID,
		types.PhaseTwo, types.StepPlan, types.StatusAwaitingFeedback))

	e.llm.enqueue(planResponse)
	_, err := e.svc.TriggerStep(context.Background(), e.owner, run.ID, types.StepPlan,
		types.TriggerStepRequest{})
	require.NoError(t, err)

	snapshot := e.waitForStatus(t, run.ID, types.StatusCompleted)
	assert.Equal(t, types.StepPlan, snapshot.Step)
	assert.Equal(t, types.PhaseTwo, snapshot.Phase)

	artifact, err := e.store.GetLatestArtifact(context.Background(), run.ID, types.ArtifactResearchPlan)
	require.NoError(t, err)
	require.NotNil(t, artifact)

	var plan types.ResearchPlanPackContent
	require.NoError(t, decodeContent(artifact, &plan))
	assert.Len(t, plan.MethodologySteps, 3)
	assert.Contains(t, plan.Templates, "review_protocol")
	assert.Equal(t, "review_protocol", artifact.Content["metadata"].(map[string]any)["template_key"])

	assert.Len(t, e.store.eventsOf(run.ID, "MethodologyWriter", types.EventSection), 3)
	assert.Len(t, e.store.eventsOf(run.ID, "MethodologyWriter", types.EventTemplates), 1)
	assert.Len(t, e.store.eventsOf(run.ID, "MethodologyWriter", types.EventRisks), 1)
}

func TestPlanStep_DefaultsWithoutPhase2Artifacts(t *testing.T) {
	e := newTestEnv(t)
	run := e.newRun(t)
	e.seedArtifact(t, run.ID, types.ArtifactAcceptedTopic, types.AcceptedTopicContent{
		Selected: types.TopicCandidate{Title: "Nap versus overnight sleep"},
	})
	require.NoError(t, e.store.UpdateRunState(context.Background(), run.ID,
		types.PhaseTwo, types.StepPlan, types.StatusAwaitingFeedback))

	e.llm.enqueue(planResponse)
	_, err := e.svc.TriggerStep(context.Background(), e.owner, run.ID, types.StepPlan,
		types.TriggerStepRequest{})
	require.NoError(t, err)

	e.waitForStatus(t, run.ID, types.StatusCompleted)

	e.llm.mu.Lock()
	prompt := e.llm.prompts[0]
	e.llm.mu.Unlock()
	assert.Contains(t, prompt, "Systematic Literature Review")
	assert.Contains(t, prompt, "weeks")
}

func TestTemplateKeyForApproach(t *testing.T) {
	tests := []struct {
		approach string
		want     string
	}{
		{"Survey / Questionnaire", "survey_questions"},
		{"Controlled Experiment", "experiment_checklist"},
		{"Interview / Qualitative Study", "interview_guide"},
		{"Systematic Literature Review", "review_protocol"},
		{"Comparative Evaluation", "evaluation_rubric"},
		{"Public Dataset Analysis", ""},
		{"A qualitative interview study", "interview_guide"},
		{"large-scale survey of practitioners", "survey_questions"},
		{"analysis of a public dataset", ""},
		{"something else entirely", ""},
	}
	for _, tt := range tests {
		t.Run(tt.approach, func(t *testing.T) {
			assert.Equal(t, tt.want, templateKeyForApproach(tt.approach))
		})
	}
}
