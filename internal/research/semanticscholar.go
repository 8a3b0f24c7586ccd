package research

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const (
	semanticScholarBaseURL = "https://api.semanticscholar.org/graph/v1"
	semanticScholarFields  = "title,authors,year,venue,citationCount,influentialCitationCount,abstract,externalIds,url,openAccessPdf"
)

// SemanticScholarClient searches the Semantic Scholar graph API.
type SemanticScholarClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewSemanticScholarClient creates a Semantic Scholar client. The API key is
// optional; without one the shared public quota applies.
func NewSemanticScholarClient(apiKey string) *SemanticScholarClient {
	return &SemanticScholarClient{
		httpClient: newHTTPClient(),
		baseURL:    semanticScholarBaseURL,
		apiKey:     apiKey,
	}
}

type semanticScholarPaper struct {
	Title   string `json:"title"`
	Year    int    `json:"year"`
	Venue   string `json:"venue"`
	URL     string `json:"url"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs struct {
		DOI string `json:"DOI"`
	} `json:"externalIds"`
	OpenAccessPdf struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	CitationCount            int    `json:"citationCount"`
	InfluentialCitationCount int    `json:"influentialCitationCount"`
	Abstract                 string `json:"abstract"`
}

// SearchPapers searches Semantic Scholar for papers matching the query.
func (c *SemanticScholarClient) SearchPapers(ctx context.Context, query string, limit int) ([]PaperResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", semanticScholarFields)

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"x-api-key": c.apiKey}
	}

	var data struct {
		Data []semanticScholarPaper `json:"data"`
	}
	reqURL := fmt.Sprintf("%s/paper/search?%s", c.baseURL, params.Encode())
	if err := getJSON(ctx, c.httpClient, reqURL, headers, &data); err != nil {
		return nil, fmt.Errorf("semantic scholar search: %w", err)
	}

	results := make([]PaperResult, 0, len(data.Data))
	for _, p := range data.Data {
		results = append(results, normalizeSemanticScholarPaper(p))
	}
	return results, nil
}

func normalizeSemanticScholarPaper(p semanticScholarPaper) PaperResult {
	var authors []string
	for _, a := range p.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}
	return PaperResult{
		Title:            p.Title,
		Authors:          authors,
		Year:             p.Year,
		Venue:            p.Venue,
		DOI:              p.ExternalIDs.DOI,
		URL:              p.URL,
		PDFURL:           p.OpenAccessPdf.URL,
		Abstract:         p.Abstract,
		CitedByCount:     p.CitationCount,
		InfluentialCites: p.InfluentialCitationCount,
		Source:           "semantic_scholar",
	}
}
