package crawler

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/antchfx/xmlquery"
)

// sitemapPattern is the detection heuristic for sitemap seeds
var sitemapPattern = regexp.MustCompile(`sitemap.*\.xml$`)

// IsSitemapURL reports whether a seed URL should be expanded as a sitemap
// rather than crawled directly
func IsSitemapURL(url string) bool {
	return sitemapPattern.MatchString(url)
}

// FetchSitemapURLs fetches and parses a sitemap, returning the contained
// page URLs. Nested <sitemap> entries are returned like page URLs and are
// not fetched or expanded here.
func FetchSitemapURLs(ctx context.Context, sitemapURL string, client *http.Client) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sitemap request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap %s: %w", sitemapURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap %s returned status %d", sitemapURL, resp.StatusCode)
	}

	doc, err := xmlquery.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sitemap %s: %w", sitemapURL, err)
	}

	var urls []string
	seen := make(map[string]bool)
	for _, node := range xmlquery.Find(doc, "//loc") {
		loc := node.InnerText()
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		urls = append(urls, loc)
	}

	return urls, nil
}
