package research

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const unpaywallBaseURL = "https://api.unpaywall.org/v2"

// UnpaywallClient finds open-access PDF links for DOIs. Unpaywall requires a
// contact email; without one every lookup returns empty.
type UnpaywallClient struct {
	httpClient *http.Client
	baseURL    string
	email      string
}

// NewUnpaywallClient creates an Unpaywall client.
func NewUnpaywallClient(email string) *UnpaywallClient {
	return &UnpaywallClient{
		httpClient: newHTTPClient(),
		baseURL:    unpaywallBaseURL,
		email:      email,
	}
}

type unpaywallLocation struct {
	URLForPDF string `json:"url_for_pdf"`
	URL       string `json:"url"`
}

func (l unpaywallLocation) best() string {
	if l.URLForPDF != "" {
		return l.URLForPDF
	}
	return l.URL
}

// OpenAccessURL returns the best open-access PDF URL for a DOI, or "" when
// none is known.
func (c *UnpaywallClient) OpenAccessURL(ctx context.Context, doi string) (string, error) {
	if c.email == "" {
		return "", nil
	}

	var data struct {
		BestOALocation *unpaywallLocation  `json:"best_oa_location"`
		OALocations    []unpaywallLocation `json:"oa_locations"`
	}
	reqURL := fmt.Sprintf("%s/%s?email=%s", c.baseURL, url.PathEscape(doi), url.QueryEscape(c.email))
	if err := getJSON(ctx, c.httpClient, reqURL, nil, &data); err != nil {
		return "", fmt.Errorf("unpaywall lookup: %w", err)
	}

	if data.BestOALocation != nil {
		if u := data.BestOALocation.best(); u != "" {
			return u, nil
		}
	}
	for _, loc := range data.OALocations {
		if u := loc.best(); u != "" {
			return u, nil
		}
	}
	return "", nil
}
