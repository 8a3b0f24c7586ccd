package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.1234/ABC.5678", "10.1234/abc.5678"},
		{"https://doi.org/10.1234/abc", "10.1234/abc"},
		{"http://doi.org/10.1234/abc", "10.1234/abc"},
		{"doi:10.1234/abc", "10.1234/abc"},
		{"  10.1234/abc  ", "10.1234/abc"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDOI(tt.in))
	}
}

func TestNormalizeTitleKey(t *testing.T) {
	assert.Equal(t, "sleep memory consolidation", NormalizeTitleKey("Sleep & Memory: Consolidation!"))
	assert.Equal(t, "", NormalizeTitleKey("!!!"))
}

func TestMergePapers_DedupByDOI(t *testing.T) {
	oa := []PaperResult{{
		Title:        "Sleep and Memory",
		DOI:          "10.1/sleep",
		URL:          "https://doi.org/10.1/sleep",
		CitedByCount: 100,
	}}
	ss := []PaperResult{{
		Title:            "Sleep and memory.",
		DOI:              "https://doi.org/10.1/SLEEP",
		URL:              "https://semanticscholar.org/p/1",
		Abstract:         "An abstract.",
		CitedByCount:     150,
		InfluentialCites: 12,
	}}

	merged := MergePapers(oa, ss)
	require.Len(t, merged, 1)

	p := merged[0]
	assert.Equal(t, "both", p.Source)
	// Semantic Scholar wins for citations and abstract.
	assert.Equal(t, 150, p.CitedByCount)
	assert.Equal(t, 12, p.InfluentialCites)
	assert.Equal(t, "An abstract.", p.Abstract)
	// OpenAlex wins for the landing URL.
	assert.Equal(t, "https://doi.org/10.1/sleep", p.URL)
}

func TestMergePapers_TitleFallback(t *testing.T) {
	oa := []PaperResult{{Title: "A Survey of Things", CitedByCount: 5}}
	ss := []PaperResult{{Title: "A survey of things!", CitedByCount: 9}}

	merged := MergePapers(oa, ss)
	require.Len(t, merged, 1)
	assert.Equal(t, "both", merged[0].Source)
	assert.Equal(t, 9, merged[0].CitedByCount)
}

func TestMergePapers_DistinctPapersSortedByCitations(t *testing.T) {
	oa := []PaperResult{{Title: "Low Cited", DOI: "10.1/low", CitedByCount: 3}}
	ss := []PaperResult{{Title: "High Cited", DOI: "10.1/high", CitedByCount: 300}}

	merged := MergePapers(oa, ss)
	require.Len(t, merged, 2)
	assert.Equal(t, "High Cited", merged[0].Title)
	assert.Equal(t, "semantic_scholar", merged[0].Source)
	assert.Equal(t, "Low Cited", merged[1].Title)
	assert.Equal(t, "openalex", merged[1].Source)
}

func TestMergePapers_SkipsEmptyKeys(t *testing.T) {
	merged := MergePapers([]PaperResult{{Title: ""}}, nil)
	assert.Empty(t, merged)
}
