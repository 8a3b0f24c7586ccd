package research

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// snippetMaxLen bounds cleaned snippets before they are fed to LLM filters.
const snippetMaxLen = 200

// WebSearcher runs general web searches through Google Custom Search. The
// sources step uses it to find datasets, learning resources, and tools.
type WebSearcher struct {
	svc *customsearch.Service
	cx  string
}

// NewWebSearcher creates a WebSearcher bound to a Custom Search engine ID.
func NewWebSearcher(ctx context.Context, apiKey, cx string) (*WebSearcher, error) {
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &WebSearcher{svc: svc, cx: cx}, nil
}

// Search runs one query and returns up to maxResults hits with cleaned
// snippets.
func (w *WebSearcher) Search(ctx context.Context, query string, maxResults int) ([]WebResult, error) {
	if maxResults < 1 {
		maxResults = 1
	}
	resp, err := w.svc.Cse.List().Context(ctx).Cx(w.cx).Q(query).Num(int64(maxResults)).Do()
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}

	results := make([]WebResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		snippet := item.HtmlSnippet
		if snippet == "" {
			snippet = item.Snippet
		}
		results = append(results, WebResult{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: CleanSnippet(snippet, snippetMaxLen),
			Domain:  domainOf(item.Link),
		})
	}
	return results, nil
}

var (
	markdownImageRe = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	markdownLinkRe  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// CleanSnippet strips HTML and markdown noise from a search snippet and
// truncates it at a word boundary.
func CleanSnippet(text string, maxLen int) string {
	if text == "" {
		return ""
	}

	text = markdownImageRe.ReplaceAllString(text, "")
	text = markdownLinkRe.ReplaceAllString(text, "$1")

	if strings.ContainsAny(text, "<>") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			text = doc.Text()
		}
	}

	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if maxLen > 0 && len(text) > maxLen {
		cut := text[:maxLen]
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		text = cut + "..."
	}
	return text
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
