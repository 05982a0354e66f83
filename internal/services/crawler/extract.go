package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// ExtractContent returns the text content under selector. Selectors prefixed
// with "/" are evaluated as XPath; everything else as CSS. Both selection
// paths operate on the same rendered HTML snapshot, so extraction is
// independent of browser state.
func ExtractContent(html, selector string) (string, error) {
	if strings.HasPrefix(selector, "/") {
		doc, err := htmlquery.Parse(strings.NewReader(html))
		if err != nil {
			return "", fmt.Errorf("failed to parse page HTML: %w", err)
		}
		nodes, err := htmlquery.QueryAll(doc, selector)
		if err != nil {
			return "", fmt.Errorf("invalid xpath selector %q: %w", selector, err)
		}
		var parts []string
		for _, node := range nodes {
			if text := strings.TrimSpace(htmlquery.InnerText(node)); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n"), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse page HTML: %w", err)
	}

	var parts []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n"), nil
}

// ExtractLinks returns all anchor targets on the page, resolved against
// baseURL, with javascript:/mailto:/tel: and fragment-only hrefs dropped and
// duplicates removed
func ExtractLinks(html, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML for links: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved := resolveHref(href, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})

	return links, nil
}

// ExtractDiscoveryLinks returns anchor targets inside elements matching the
// discovery selector. The selector may address the anchors directly
// ("nav a[href]") or their containers ("nav"); both shapes work.
func ExtractDiscoveryLinks(html, discoverySelector, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML for discovery: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var links []string
	seen := make(map[string]bool)
	collect := func(sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved := resolveHref(href, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	}

	doc.Find(discoverySelector).Each(func(_ int, sel *goquery.Selection) {
		if sel.Is("a") {
			collect(sel)
			return
		}
		sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			collect(a)
		})
	})

	return links, nil
}

// resolveHref normalizes one href against the page URL, returning "" for
// hrefs that cannot be crawled
func resolveHref(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}

	// Fragments never change the fetched document
	ref.Fragment = ""
	return ref.String()
}
