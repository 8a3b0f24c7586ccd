package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/llm"
	"github.com/researchgpt/researchgpt/internal/research"
	"github.com/researchgpt/researchgpt/internal/types"
)

// Source discovery settings.
const (
	sourceScoutTemperature     float32 = 0.3
	evidencePlannerTemperature float32 = 0.4

	paperSearchLimit   = 10
	doiLookupCap       = 15 // Crossref and Unpaywall calls per run
	papersForRanking   = 15
	webResultsPerQuery = 5
)

// sourceLabels maps merged provider keys to display names.
var sourceLabels = map[string]string{
	"openalex":         "OpenAlex",
	"semantic_scholar": "Semantic Scholar",
	"both":             "OpenAlex + Semantic Scholar",
}

// runSourcesAndEvidence discovers papers, datasets, tools, and learning
// resources, then derives an evidence collection plan. It produces two
// artifacts: phase2_sources_pack and phase2_evidence_plan.
func runSourcesAndEvidence(ctx context.Context, s *Service, in runInput) error {
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
	var selection types.SelectedApproachContent
	if err := s.requireArtifact(ctx, runID, types.ArtifactSelectedApproach, &selection); err != nil {
		return err
	}

	sourcesPack, err := s.scoutSources(ctx, runID, accepted, outline, selection, in.feedback)
	if err != nil {
		return err
	}

	evidencePlan, err := s.planEvidence(ctx, runID, selection, constraints, sourcesPack)
	if err != nil {
		return err
	}

	if _, err := s.createValidatedArtifact(ctx, runID, types.ArtifactSourcesPack, sourcesPack); err != nil {
		return err
	}
	if _, err := s.createValidatedArtifact(ctx, runID, types.ArtifactEvidencePlan, evidencePlan); err != nil {
		return err
	}
	return nil
}

// scoutSources runs the SourceScout: keyword generation, academic search,
// DOI enrichment, relevance ranking, and web discovery of datasets, learning
// resources, and tools. Collaborator failures degrade to partial results.
func (s *Service) scoutSources(ctx context.Context, runID uuid.UUID, accepted types.AcceptedTopicContent, outline types.OutlineContent, selection types.SelectedApproachContent, feedback string) (*types.SourcesPackContent, error) {
	const agent = "SourceScout"

	topic := accepted.Selected
	approach := selection.SelectedApproach
	selTitle := selection.SelectedTitle

	s.emit(ctx, runID, agent, types.EventStart,
		"Starting source discovery across academic and web databases...", nil)

	keywords, err := s.generateSearchKeywords(ctx, runID, topic, outline, approach, feedback)
	if err != nil {
		return nil, err
	}

	// Academic paper search: OpenAlex and Semantic Scholar in parallel, each
	// failure downgraded to a warning.
	var oaPapers, ssPapers []research.PaperResult
	var g errgroup.Group
	g.Go(func() error {
		if s.research.OpenAlex == nil {
			return nil
		}
		papers, err := s.research.OpenAlex.SearchPapers(ctx, firstN(keywords, 5), paperSearchLimit)
		if err != nil {
			s.emit(ctx, runID, agent, types.EventWarning,
				fmt.Sprintf("OpenAlex search failed: %s", truncate(err.Error(), 100)), nil)
			return nil
		}
		oaPapers = papers
		return nil
	})
	g.Go(func() error {
		if s.research.Scholar == nil {
			return nil
		}
		query := strings.Join(firstN(keywords, 3), " ")
		papers, err := s.research.Scholar.SearchPapers(ctx, query, paperSearchLimit)
		if err != nil {
			s.emit(ctx, runID, agent, types.EventWarning,
				fmt.Sprintf("Semantic Scholar search failed: %s", truncate(err.Error(), 100)), nil)
			return nil
		}
		ssPapers = papers
		return nil
	})
	_ = g.Wait()

	merged := research.MergePapers(oaPapers, ssPapers)

	s.emit(ctx, runID, agent, types.EventSearching,
		fmt.Sprintf("Found %d papers from OpenAlex, %d from Semantic Scholar, %d unique after dedup",
			len(oaPapers), len(ssPapers), len(merged)), nil)

	s.enrichWithCrossref(ctx, runID, merged)
	s.enrichWithUnpaywall(ctx, runID, merged)

	rankedPapers, err := s.rankPapers(ctx, runID, merged, topic, approach, selTitle)
	if err != nil {
		return nil, err
	}

	datasets, learning, tools, err := s.discoverWebResources(ctx, runID, topic, outline, approach, selTitle)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, runID, agent, types.EventRanking,
		fmt.Sprintf("Final resources: %d papers, %d datasets, %d tools, %d learning resources",
			len(rankedPapers), len(datasets), len(tools), len(learning)), nil)

	// Empty categories serialize as [] rather than null; the artifact schema
	// requires arrays.
	if rankedPapers == nil {
		rankedPapers = []types.Paper{}
	}
	if datasets == nil {
		datasets = []types.Dataset{}
	}
	if tools == nil {
		tools = []types.Tool{}
	}
	if learning == nil {
		learning = []types.LearningResource{}
	}

	pack := &types.SourcesPackContent{
		Metadata: map[string]any{
			"created_at":       time.Now().UTC().Format(time.RFC3339),
			"search_keywords":  keywords,
			"source_providers": []string{"openalex", "semanticscholar", "crossref", "unpaywall", "websearch"},
		},
		Papers:         rankedPapers,
		Datasets:       datasets,
		Tools:          tools,
		KnowledgeBases: learning,
	}

	total := len(rankedPapers) + len(datasets) + len(tools) + len(learning)
	s.emit(ctx, runID, agent, types.EventComplete,
		fmt.Sprintf("Source discovery complete. %d total resources with links.", total), nil)

	return pack, nil
}

// generateSearchKeywords asks the LLM for targeted academic search terms.
func (s *Service) generateSearchKeywords(ctx context.Context, runID uuid.UUID, topic types.TopicCandidate, outline types.OutlineContent, approach, feedback string) ([]string, error) {
	const agent = "SourceScout"

	s.emit(ctx, runID, agent, types.EventThinking, "Generating targeted search keywords...", nil)

	feedbackSection := ""
	if feedback != "" {
		feedbackSection = fmt.Sprintf(
			"\nUser feedback on previous results:\n%q\nAdjust your keyword selection accordingly.\n", feedback)
	}
	keywords := "N/A"
	if len(topic.Keywords) > 0 {
		keywords = strings.Join(topic.Keywords, ", ")
	}

	prompt := fmt.Sprintf(`You are a research librarian expert at crafting search queries. Generate specific, targeted keywords for academic database searches.

Generate 5-10 targeted search keywords/phrases for finding academic papers related to this research.

Topic: %q
Description: %s
Keywords: %s
Research approach: %s
Outline sections: %s
%s
Respond ONLY with valid JSON:
{
  "keywords": ["keyword1", "keyword2", ...]
}
No markdown, no extra text.`,
		topic.Title, topic.Description, keywords, approach,
		outlineSectionsSummary(outline.Sections, 6), feedbackSection)

	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierLite, sourceScoutTemperature)
	if err != nil {
		return nil, fmt.Errorf("keyword generation failed: %w", err)
	}

	var parsed struct {
		Keywords []string `json:"keywords"`
	}
	if err := llm.ParseJSON(text, &parsed); err != nil {
		return nil, fmt.Errorf("keyword generation returned unparseable output: %w", err)
	}
	if len(parsed.Keywords) == 0 {
		parsed.Keywords = []string{topic.Title}
	}

	s.emit(ctx, runID, agent, types.EventThinking,
		fmt.Sprintf("Generated %d search keywords: %s", len(parsed.Keywords),
			truncate(strings.Join(parsed.Keywords, ", "), 200)), nil)

	return parsed.Keywords, nil
}

// enrichWithCrossref fills missing venue, year, and URL from Crossref for up
// to doiLookupCap papers.
func (s *Service) enrichWithCrossref(ctx context.Context, runID uuid.UUID, papers []research.PaperResult) {
	const agent = "SourceScout"
	if s.research.Crossref == nil {
		return
	}

	dois := collectDOIs(papers, doiLookupCap)
	verified := make(map[string]*research.PaperResult, len(dois))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(4)
	for _, doi := range dois {
		g.Go(func() error {
			meta, err := s.research.Crossref.VerifyDOI(ctx, doi)
			if err != nil || meta == nil {
				return nil
			}
			mu.Lock()
			verified[research.NormalizeDOI(doi)] = meta
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i := range papers {
		meta, ok := verified[research.NormalizeDOI(papers[i].DOI)]
		if !ok {
			continue
		}
		if papers[i].Venue == "" && meta.Venue != "" {
			papers[i].Venue = meta.Venue
		}
		if papers[i].Year == 0 && meta.Year != 0 {
			papers[i].Year = meta.Year
		}
		if papers[i].URL == "" && meta.URL != "" {
			papers[i].URL = meta.URL
		}
	}

	s.emit(ctx, runID, agent, types.EventSearching,
		fmt.Sprintf("Verified %d DOIs via Crossref", len(verified)), nil)
}

// enrichWithUnpaywall resolves open-access PDF links for up to doiLookupCap
// papers.
func (s *Service) enrichWithUnpaywall(ctx context.Context, runID uuid.UUID, papers []research.PaperResult) {
	const agent = "SourceScout"
	if s.research.Unpaywall == nil {
		return
	}

	dois := collectDOIs(papers, doiLookupCap)
	pdfURLs := make(map[string]string, len(dois))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(4)
	for _, doi := range dois {
		g.Go(func() error {
			u, err := s.research.Unpaywall.OpenAccessURL(ctx, doi)
			if err != nil || u == "" {
				return nil
			}
			mu.Lock()
			pdfURLs[research.NormalizeDOI(doi)] = u
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i := range papers {
		if u, ok := pdfURLs[research.NormalizeDOI(papers[i].DOI)]; ok && papers[i].PDFURL == "" {
			papers[i].PDFURL = u
		}
	}

	s.emit(ctx, runID, agent, types.EventSearching,
		fmt.Sprintf("Found %d open-access PDFs via Unpaywall", len(pdfURLs)), nil)
}

// rankPapers asks the LLM to annotate and order papers by relevance. A
// malformed ranking falls back to the unranked list with stock annotations
// instead of failing the step.
func (s *Service) rankPapers(ctx context.Context, runID uuid.UUID, merged []research.PaperResult, topic types.TopicCandidate, approach, selTitle string) ([]types.Paper, error) {
	const agent = "SourceScout"

	s.emit(ctx, runID, agent, types.EventRanking,
		"Ranking and annotating papers by relevance...", nil)

	// The LLM must not be trusted to preserve provenance; remember each
	// paper's source by normalized title and re-attach afterwards.
	sourceByTitle := make(map[string]string, len(merged))
	for _, p := range merged {
		if key := research.NormalizeTitleKey(p.Title); key != "" {
			sourceByTitle[key] = p.Source
		}
	}

	candidates := firstNPapers(merged, papersForRanking)
	forLLM := make([]map[string]any, 0, len(candidates))
	for _, p := range candidates {
		forLLM = append(forLLM, map[string]any{
			"title":          p.Title,
			"authors":        firstN(p.Authors, 3),
			"year":           p.Year,
			"venue":          p.Venue,
			"doi":            p.DOI,
			"url":            p.URL,
			"pdf_url":        p.PDFURL,
			"cited_by_count": p.CitedByCount,
		})
	}
	papersJSON, err := json.MarshalIndent(forLLM, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize papers: %w", err)
	}

	prompt := fmt.Sprintf(`You are a research resource evaluator. Rank and annotate papers. You MUST preserve all original URLs and DOIs exactly.

You are ranking academic papers for relevance to this research project.

Topic: %q
Approach: %s
Description: %s

## Papers found (%d total):
%s

For each paper:
1. Add "why_relevant": one sentence explaining relevance
2. Add "credibility_notes": one of "peer-reviewed", "preprint", "report", "unknown"
3. IMPORTANT: Preserve ALL original fields exactly (title, authors, year, venue, doi, url, pdf_url)

Remove clearly irrelevant papers. Keep the rest sorted by relevance.

Respond ONLY with valid JSON:
{
  "papers": [{"title": "...", "authors": [...], "year": N, "venue": "...", "doi": "...", "url": "...", "pdf_url": "...", "why_relevant": "...", "credibility_notes": "..."}]
}
No markdown, no extra text.`, selTitle, approach, topic.Description, len(forLLM), papersJSON)

	ranked := []types.Paper{}
	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierStandard, sourceScoutTemperature)
	if err == nil {
		var parsed struct {
			Papers []types.Paper `json:"papers"`
		}
		if perr := llm.ParseJSON(text, &parsed); perr == nil {
			ranked = parsed.Papers
		}
	}
	if len(ranked) == 0 {
		for _, p := range firstNPapers(merged, 10) {
			tp := paperFromResult(p)
			tp.WhyRelevant = "Found via academic database search"
			tp.CredibilityNotes = "unknown"
			ranked = append(ranked, tp)
		}
	}

	for i := range ranked {
		key := research.NormalizeTitleKey(ranked[i].Title)
		if label, ok := sourceLabels[sourceByTitle[key]]; ok {
			ranked[i].Source = label
		} else {
			ranked[i].Source = "Academic Database"
		}
	}
	return ranked, nil
}

// webQueryPlan is the fixed set of query groups the scout runs for non-paper
// resources.
type webQueryPlan struct {
	datasets []string
	learning []string
	tools    []string
}

func buildWebQueries(topic types.TopicCandidate, approach, selTitle string) webQueryPlan {
	plan := webQueryPlan{
		datasets: []string{
			topic.Title + " dataset",
			topic.Title + " open data benchmark",
		},
		learning: []string{
			selTitle + " tutorial guide",
			selTitle + " online course",
			selTitle + " YouTube",
			selTitle + " introduction overview",
		},
		tools: []string{
			selTitle + " software tools library",
			selTitle + " research tools platform",
			topic.Title + " " + approach + " tools github",
		},
	}
	if len(topic.Keywords) > 0 {
		plan.datasets = append(plan.datasets, topic.Keywords[0]+" dataset repository")
	}
	if len(topic.Keywords) >= 2 {
		plan.tools = append(plan.tools, topic.Keywords[0]+" "+topic.Keywords[1]+" library framework")
	}
	return plan
}

// discoverWebResources finds datasets, learning resources, and tools via web
// search, then LLM-filters each group for genuine relevance.
func (s *Service) discoverWebResources(ctx context.Context, runID uuid.UUID, topic types.TopicCandidate, outline types.OutlineContent, approach, selTitle string) ([]types.Dataset, []types.LearningResource, []types.Tool, error) {
	const agent = "SourceScout"

	if s.research.Web == nil {
		s.emit(ctx, runID, agent, types.EventWarning,
			"Web search is not configured; skipping dataset, learning resource, and tool discovery", nil)
		return nil, nil, nil, nil
	}

	s.emit(ctx, runID, agent, types.EventSearching,
		"Searching for datasets, learning resources, and tools...", nil)

	plan := buildWebQueries(topic, approach, selTitle)
	allQueries := make([]string, 0, len(plan.datasets)+len(plan.learning)+len(plan.tools))
	allQueries = append(allQueries, plan.datasets...)
	allQueries = append(allQueries, plan.learning...)
	allQueries = append(allQueries, plan.tools...)

	results := make([][]research.WebResult, len(allQueries))
	var g errgroup.Group
	g.SetLimit(4)
	for i, q := range allQueries {
		g.Go(func() error {
			items, err := s.research.Web.Search(ctx, q, webResultsPerQuery)
			if err != nil {
				// One failed query costs its results only.
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	// Flatten each group, deduplicating by URL across all groups so a page
	// surfaces once, in its first category.
	seen := map[string]struct{}{}
	nDS := len(plan.datasets)
	nLR := len(plan.learning)
	rawDatasets := flattenWebResults(results[:nDS], seen)
	rawLearning := flattenWebResults(results[nDS:nDS+nLR], seen)
	rawTools := flattenWebResults(results[nDS+nLR:], seen)

	s.emit(ctx, runID, agent, types.EventSearching,
		fmt.Sprintf("Found %d dataset, %d learning resource, and %d tool results via web search",
			len(rawDatasets), len(rawLearning), len(rawTools)), nil)

	datasets, err := s.filterDatasets(ctx, runID, rawDatasets, approach, selTitle)
	if err != nil {
		return nil, nil, nil, err
	}
	learning, err := s.filterLearningResources(ctx, runID, rawLearning, topic, approach, selTitle)
	if err != nil {
		return nil, nil, nil, err
	}
	tools, err := s.filterTools(ctx, runID, rawTools, topic, outline, approach, selTitle)
	if err != nil {
		return nil, nil, nil, err
	}
	return datasets, learning, tools, nil
}

func (s *Service) filterDatasets(ctx context.Context, runID uuid.UUID, raw []research.WebResult, approach, selTitle string) ([]types.Dataset, error) {
	const agent = "SourceScout"
	if len(raw) == 0 {
		return nil, nil
	}

	summary, err := webResultsJSON(raw, 150)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`You are a dataset curator. Only select actual datasets from search results. Be strict: articles and papers are NOT datasets.

From the following web search results, identify which ones are ACTUAL DATASETS or direct links to dataset repositories.

Topic: %q
Research approach: %s

Search results:
%s

Rules:
- ONLY include results that are actual datasets, data repositories, or direct links to downloadable data
- Exclude articles ABOUT data, blog posts, tutorials, or papers; those are NOT datasets
- Look for URLs from: kaggle.com, huggingface.co, zenodo.org, data.gov, github.com (with /datasets or data files), archive.ics.uci.edu, figshare.com, dataverse, etc.
- For each real dataset, provide: name, domain (topic area), url (from the search result), why_relevant (one sentence), and license if apparent
- If NONE of the results are actual datasets, return an empty array

Respond ONLY with valid JSON:
{
  "datasets": [{"name": "...", "domain": "...", "url": "https://...", "why_relevant": "one sentence", "license": "if known or null"}]
}
No markdown, no extra text.`, selTitle, approach, summary)

	var parsed struct {
		Datasets []types.Dataset `json:"datasets"`
	}
	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierLite, sourceScoutTemperature)
	if err == nil {
		_ = llm.ParseJSON(text, &parsed)
	}

	s.emit(ctx, runID, agent, types.EventSearching,
		fmt.Sprintf("Identified %d real datasets after filtering", len(parsed.Datasets)), nil)
	return parsed.Datasets, nil
}

func (s *Service) filterLearningResources(ctx context.Context, runID uuid.UUID, raw []research.WebResult, topic types.TopicCandidate, approach, selTitle string) ([]types.LearningResource, error) {
	const agent = "SourceScout"
	if len(raw) == 0 {
		return nil, nil
	}

	summary, err := webResultsJSON(raw, 150)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`You are a learning resources curator. Select only resources that are directly relevant to the full research topic. Be strict about relevance: each resource must be about the whole topic, not a tangentially related concept.

From the following web search results, select the ones that are genuinely useful learning resources for this research topic.

Full research topic: %q
Description: %s
Research approach: %s

Search results:
%s

Rules:
- Select 8-12 resources that are DIRECTLY relevant to the FULL research topic %q
- A resource must be about the topic as a whole, not just matching a single word from the title
- KEEP: tutorials, online courses, YouTube videos/lectures, blog posts, Wikipedia articles, guides, educational content
- REMOVE: product pages, job listings, news unrelated to the topic, duplicate content, low-quality pages
- For each resource use the EXACT url from the search result (do not modify URLs)
- Extract the source domain from the URL (e.g. "youtube.com", "medium.com", "coursera.org", "wikipedia.org")
- Write a concise why_useful (max 1 sentence, under 150 characters)

Respond ONLY with valid JSON:
{
  "resources": [{"name": "...", "url": "https://...", "why_useful": "one short sentence", "source": "domain.com"}]
}
No markdown, no extra text.`, selTitle, topic.Description, approach, summary, selTitle)

	var parsed struct {
		Resources []types.LearningResource `json:"resources"`
	}
	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierLite, sourceScoutTemperature)
	if err == nil {
		_ = llm.ParseJSON(text, &parsed)
	}
	for i := range parsed.Resources {
		parsed.Resources[i].WhyUseful = research.CleanSnippet(parsed.Resources[i].WhyUseful, 150)
	}

	s.emit(ctx, runID, agent, types.EventSearching,
		fmt.Sprintf("Selected %d relevant learning resources after filtering", len(parsed.Resources)), nil)
	return parsed.Resources, nil
}

func (s *Service) filterTools(ctx context.Context, runID uuid.UUID, raw []research.WebResult, topic types.TopicCandidate, outline types.OutlineContent, approach, selTitle string) ([]types.Tool, error) {
	const agent = "SourceScout"

	s.emit(ctx, runID, agent, types.EventThinking,
		fmt.Sprintf("Filtering %d tool results for relevance...", len(raw)), nil)
	if len(raw) == 0 {
		return nil, nil
	}

	summary, err := webResultsJSON(raw, 200)
	if err != nil {
		return nil, err
	}

	outlineContext := outlineBulletsContext(outline.Sections, 6)

	prompt := fmt.Sprintf(`You are a research tools curator. Select only actual software tools, libraries, and platforms from search results that are specifically useful for the given research project. Be strict: articles about tools are NOT tools. Only include results where the URL leads to the actual tool/library.

RESEARCH PROJECT:
- Title: %q
- Approach: %s
- Description: %s
- Outline sections:
%s

Search results:
%s

Think about what tasks the researcher will ACTUALLY perform in this project (data collection, analysis, visualization, statistical testing, etc.), then select only tools that directly help with those tasks.

Rules:
- Select 5-10 tools that are REAL software, libraries, platforms, or APIs
- Each tool must be specifically useful for THIS research project, not just generically related
- KEEP: GitHub repos, official tool/library websites, platform landing pages, API documentation
- REMOVE: blog posts ABOUT tools, news articles, comparison articles, job listings, generic pages
- Use the EXACT url from the search result (do not modify URLs)
- NO generic tools (Python, R, Excel, Google Scholar, Word); only specific, actionable tools
- Classify each tool type as: library, platform, api, instrument, framework, or dataset_tool
- Write why_useful explaining the SPECIFIC research task this tool helps with in THIS project

Respond ONLY with valid JSON:
{
  "tools": [{"name": "...", "type": "library|platform|api|instrument|framework|dataset_tool", "url": "https://...", "why_useful": "Helps with [specific task] in this project"}]
}
No markdown, no extra text.`, selTitle, approach, topic.Description, outlineContext, summary)

	var parsed struct {
		Tools []types.Tool `json:"tools"`
	}
	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierLite, sourceScoutTemperature)
	if err == nil {
		_ = llm.ParseJSON(text, &parsed)
	}
	for i := range parsed.Tools {
		parsed.Tools[i].WhyUseful = research.CleanSnippet(parsed.Tools[i].WhyUseful, 150)
	}
	return parsed.Tools, nil
}

// planEvidence runs the EvidencePlanner against the discovered sources,
// producing the phase2_evidence_plan content.
func (s *Service) planEvidence(ctx context.Context, runID uuid.UUID, selection types.SelectedApproachContent, constraints types.ConstraintsContent, pack *types.SourcesPackContent) (*types.EvidencePlanContent, error) {
	const agent = "EvidencePlanner"

	s.emit(ctx, runID, agent, types.EventStart,
		"Generating evidence collection plan based on selected approach...", nil)

	prompt := fmt.Sprintf(`You are an expert research methodology advisor. Generate a detailed evidence collection plan tailored to the selected research approach.

The plan must be specific to the approach type:
- Survey / Questionnaire: survey design, sampling, distribution, response analysis
- Controlled Experiment: variables, control/treatment groups, measurement, protocols
- Interview / Qualitative Study: participant selection, interview guide, coding, thematic analysis
- Public Dataset Analysis: dataset selection criteria, preprocessing, statistical methods
- Systematic Literature Review: database search strategy, screening criteria, synthesis method
- Comparative Evaluation: criteria definition, scoring rubric, comparison framework

Generate an evidence collection plan for this research project.

Title: %q
Approach: %s
Time Budget: %s
Data Availability: %s

Available Resources:
- %d academic papers found
- %d datasets identified
- %d tools/software identified

Create a realistic, actionable plan that fits the constraints and leverages the available resources.

Respond ONLY with valid JSON:
{
  "evidence_type": "primary|secondary",
  "collection_strategy": ["Step 1: ...", "Step 2: ...", "Step 3: ..."],
  "inclusion_exclusion": {
    "include": ["criteria 1", "criteria 2"],
    "exclude": ["criteria 1", "criteria 2"]
  },
  "analysis_overview": "Description of how data/evidence will be analyzed",
  "expected_outputs": ["output 1", "output 2"]
}
No markdown, no extra text.`,
		selection.SelectedTitle, selection.SelectedApproach,
		constraints.TimeBudget, constraints.DataAvailability,
		len(pack.Papers), len(pack.Datasets), len(pack.Tools))

	s.emit(ctx, runID, agent, types.EventThinking,
		fmt.Sprintf("Designing evidence plan for %s approach with %s time budget...",
			selection.SelectedApproach, constraints.TimeBudget), nil)

	text, err := s.llm.GenerateJSON(ctx, prompt, llm.TierStandard, evidencePlannerTemperature)
	if err != nil {
		return nil, fmt.Errorf("evidence planning failed: %w", err)
	}

	var plan types.EvidencePlanContent
	if err := llm.ParseJSON(text, &plan); err != nil {
		return nil, fmt.Errorf("evidence planning returned unparseable output: %w", err)
	}
	plan.Metadata = map[string]any{
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}

	s.emit(ctx, runID, agent, types.EventOutput,
		fmt.Sprintf("Evidence type: %s. Collection plan: %d steps. Analysis: %s",
			plan.EvidenceType, len(plan.CollectionStrategy), truncate(plan.AnalysisOverview, 100)), nil)

	s.emit(ctx, runID, agent, types.EventComplete, "Evidence collection plan complete.", nil)
	return &plan, nil
}

// Helpers shared by the scout.

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func firstNPapers(papers []research.PaperResult, n int) []research.PaperResult {
	return firstN(papers, n)
}

func collectDOIs(papers []research.PaperResult, limit int) []string {
	var dois []string
	for _, p := range papers {
		if p.DOI == "" {
			continue
		}
		dois = append(dois, p.DOI)
		if len(dois) == limit {
			break
		}
	}
	return dois
}

func flattenWebResults(groups [][]research.WebResult, seen map[string]struct{}) []research.WebResult {
	var out []research.WebResult
	for _, group := range groups {
		for _, item := range group {
			if item.URL == "" {
				continue
			}
			if _, dup := seen[item.URL]; dup {
				continue
			}
			seen[item.URL] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

func webResultsJSON(results []research.WebResult, snippetLen int) (string, error) {
	summary := make([]map[string]string, 0, len(results))
	for _, r := range results {
		summary = append(summary, map[string]string{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": research.CleanSnippet(r.Snippet, snippetLen),
			"domain":  r.Domain,
		})
	}
	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize search results: %w", err)
	}
	return string(raw), nil
}

func paperFromResult(p research.PaperResult) types.Paper {
	return types.Paper{
		Title:            p.Title,
		Authors:          p.Authors,
		Year:             p.Year,
		Venue:            p.Venue,
		DOI:              p.DOI,
		URL:              p.URL,
		PDFURL:           p.PDFURL,
		Abstract:         p.Abstract,
		CitedByCount:     p.CitedByCount,
		InfluentialCites: p.InfluentialCites,
	}
}

func outlineBulletsContext(sections []types.OutlineSection, n int) string {
	if len(sections) == 0 {
		return "N/A"
	}
	var lines []string
	for _, sec := range firstN(sections, n) {
		if len(sec.Bullets) > 0 {
			lines = append(lines, fmt.Sprintf("- %s: %s", sec.Name, strings.Join(firstN(sec.Bullets, 3), "; ")))
		} else {
			lines = append(lines, "- "+sec.Name)
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
