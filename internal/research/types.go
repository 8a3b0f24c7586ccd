package research

// PaperResult is the normalized shape every paper source maps into.
type PaperResult struct {
	Title            string   `json:"title"`
	Authors          []string `json:"authors,omitempty"`
	Year             int      `json:"year,omitempty"`
	Venue            string   `json:"venue,omitempty"`
	DOI              string   `json:"doi,omitempty"`
	URL              string   `json:"url,omitempty"`
	PDFURL           string   `json:"pdf_url,omitempty"`
	OpenAccessURL    string   `json:"open_access_url,omitempty"`
	Abstract         string   `json:"abstract,omitempty"`
	CitedByCount     int      `json:"cited_by_count,omitempty"`
	InfluentialCites int      `json:"influential_citation_count,omitempty"`
	Source           string   `json:"source,omitempty"`
}

// WebResult is one web search hit with its snippet already cleaned.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Domain  string `json:"domain"`
}
