package research

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const crossrefBaseURL = "https://api.crossref.org"

// CrossrefClient verifies DOIs against the Crossref registry.
type CrossrefClient struct {
	httpClient *http.Client
	baseURL    string
	mailto     string
}

// NewCrossrefClient creates a Crossref client. mailto is appended to the
// User-Agent per Crossref's polite-pool etiquette.
func NewCrossrefClient(mailto string) *CrossrefClient {
	return &CrossrefClient{
		httpClient: newHTTPClient(),
		baseURL:    crossrefBaseURL,
		mailto:     mailto,
	}
}

type crossrefWork struct {
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	DOI            string   `json:"DOI"`
	URL            string   `json:"URL"`
	Type           string   `json:"type"`
	Author         []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	PublishedPrint  crossrefDate `json:"published-print"`
	PublishedOnline crossrefDate `json:"published-online"`
	Created         crossrefDate `json:"created"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}

func (d crossrefDate) year() int {
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 {
		return d.DateParts[0][0]
	}
	return 0
}

// VerifyDOI looks a DOI up in Crossref and returns its registered metadata.
// Returns nil without error when the DOI is unknown.
func (c *CrossrefClient) VerifyDOI(ctx context.Context, doi string) (*PaperResult, error) {
	var data struct {
		Message crossrefWork `json:"message"`
	}
	reqURL := fmt.Sprintf("%s/works/%s", c.baseURL, url.PathEscape(doi))
	headers := map[string]string{"User-Agent": c.crossrefUserAgent()}
	if err := getJSON(ctx, c.httpClient, reqURL, headers, &data); err != nil {
		// An unknown DOI is a 404, not a failure of the step.
		return nil, nil //nolint:nilerr
	}

	result := normalizeCrossrefWork(data.Message)
	return &result, nil
}

func (c *CrossrefClient) crossrefUserAgent() string {
	ua := userAgent
	if c.mailto != "" {
		ua += fmt.Sprintf(" mailto:%s", c.mailto)
	}
	return ua
}

func normalizeCrossrefWork(work crossrefWork) PaperResult {
	var title, venue string
	if len(work.Title) > 0 {
		title = work.Title[0]
	}
	if len(work.ContainerTitle) > 0 {
		venue = work.ContainerTitle[0]
	}

	var authors []string
	for _, a := range work.Author {
		name := a.Given
		if a.Family != "" {
			if name != "" {
				name += " "
			}
			name += a.Family
		}
		if name != "" {
			authors = append(authors, name)
		}
	}

	year := work.PublishedPrint.year()
	if year == 0 {
		year = work.PublishedOnline.year()
	}
	if year == 0 {
		year = work.Created.year()
	}

	return PaperResult{
		Title:   title,
		Authors: authors,
		Year:    year,
		Venue:   venue,
		DOI:     work.DOI,
		URL:     work.URL,
		Source:  "crossref",
	}
}
