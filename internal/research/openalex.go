package research

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const openAlexBaseURL = "https://api.openalex.org"

// OpenAlexClient searches the OpenAlex works catalog.
type OpenAlexClient struct {
	httpClient *http.Client
	baseURL    string
	mailto     string
}

// NewOpenAlexClient creates an OpenAlex client. mailto is optional but gets
// requests into the polite pool.
func NewOpenAlexClient(mailto string) *OpenAlexClient {
	return &OpenAlexClient{
		httpClient: newHTTPClient(),
		baseURL:    openAlexBaseURL,
		mailto:     mailto,
	}
}

type openAlexResponse struct {
	Results []struct {
		DisplayName     string `json:"display_name"`
		ID              string `json:"id"`
		DOI             string `json:"doi"`
		PublicationYear int    `json:"publication_year"`
		CitedByCount    int    `json:"cited_by_count"`
		Authorships     []struct {
			Author struct {
				DisplayName string `json:"display_name"`
			} `json:"author"`
		} `json:"authorships"`
		OpenAccess struct {
			OAURL string `json:"oa_url"`
		} `json:"open_access"`
		PrimaryLocation struct {
			Source struct {
				DisplayName string `json:"display_name"`
			} `json:"source"`
		} `json:"primary_location"`
	} `json:"results"`
}

// SearchPapers searches OpenAlex for works matching the keywords, most cited
// first.
func (c *OpenAlexClient) SearchPapers(ctx context.Context, keywords []string, limit int) ([]PaperResult, error) {
	params := url.Values{}
	params.Set("search", strings.Join(keywords, " "))
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("sort", "cited_by_count:desc")
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	var data openAlexResponse
	reqURL := fmt.Sprintf("%s/works?%s", c.baseURL, params.Encode())
	if err := getJSON(ctx, c.httpClient, reqURL, nil, &data); err != nil {
		return nil, fmt.Errorf("openalex search: %w", err)
	}

	results := make([]PaperResult, 0, len(data.Results))
	for _, work := range data.Results {
		var authors []string
		for _, a := range work.Authorships {
			if a.Author.DisplayName != "" {
				authors = append(authors, a.Author.DisplayName)
			}
		}

		doi := strings.TrimSpace(strings.TrimPrefix(work.DOI, "https://doi.org/"))
		pageURL := work.DOI
		if pageURL == "" {
			pageURL = work.ID
		}

		results = append(results, PaperResult{
			Title:         work.DisplayName,
			Authors:       authors,
			Year:          work.PublicationYear,
			Venue:         work.PrimaryLocation.Source.DisplayName,
			DOI:           doi,
			URL:           pageURL,
			OpenAccessURL: work.OpenAccess.OAURL,
			CitedByCount:  work.CitedByCount,
			Source:        "openalex",
		})
	}
	return results, nil
}
