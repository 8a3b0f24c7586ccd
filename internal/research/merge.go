package research

import (
	"regexp"
	"sort"
	"strings"
)

var titleKeyRe = regexp.MustCompile(`[^a-z0-9 ]`)

// NormalizeDOI lowercases a DOI and strips URL and "doi:" prefixes.
func NormalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return doi
}

// NormalizeTitleKey reduces a title to a dedup key: lowercase, alphanumerics
// and spaces only.
func NormalizeTitleKey(title string) string {
	return strings.TrimSpace(titleKeyRe.ReplaceAllString(strings.ToLower(title), ""))
}

func paperKey(p PaperResult) string {
	if doi := NormalizeDOI(p.DOI); doi != "" {
		return doi
	}
	return NormalizeTitleKey(p.Title)
}

// MergePapers deduplicates OpenAlex and Semantic Scholar results. The dedup
// key is the normalized DOI, falling back to a normalized title. When both
// sources know a paper, Semantic Scholar wins for citation counts and
// abstract, OpenAlex wins for the landing URL. The result is sorted by
// citation count descending.
func MergePapers(oaPapers, ssPapers []PaperResult) []PaperResult {
	merged := make(map[string]*PaperResult)
	var order []string

	for i := range oaPapers {
		p := oaPapers[i]
		key := paperKey(p)
		if key == "" {
			continue
		}
		p.Source = "openalex"
		merged[key] = &p
		order = append(order, key)
	}

	for i := range ssPapers {
		p := ssPapers[i]
		key := paperKey(p)
		if key == "" {
			continue
		}

		if existing, ok := merged[key]; ok {
			if p.CitedByCount > 0 {
				existing.CitedByCount = p.CitedByCount
			}
			if p.InfluentialCites > 0 {
				existing.InfluentialCites = p.InfluentialCites
			}
			if p.Abstract != "" {
				existing.Abstract = p.Abstract
			}
			if existing.URL == "" {
				existing.URL = p.URL
			}
			if existing.PDFURL == "" {
				existing.PDFURL = p.PDFURL
			}
			existing.Source = "both"
			continue
		}

		p.Source = "semantic_scholar"
		merged[key] = &p
		order = append(order, key)
	}

	papers := make([]PaperResult, 0, len(order))
	for _, key := range order {
		papers = append(papers, *merged[key])
	}
	sort.SliceStable(papers, func(i, j int) bool {
		return papers[i].CitedByCount > papers[j].CitedByCount
	})
	return papers
}
