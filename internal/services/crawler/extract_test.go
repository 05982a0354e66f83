package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageHTML = `<!DOCTYPE html>
<html>
<head><title>Guide</title></head>
<body>
  <nav>
    <a href="/docs/intro">Intro</a>
    <a href="/docs/advanced">Advanced</a>
    <a href="javascript:void(0)">Menu</a>
    <a href="#section">Anchor</a>
    <a href="mailto:docs@example.test">Mail</a>
  </nav>
  <aside><a href="/docs/faq">FAQ</a></aside>
  <main>
    <h1>Getting started</h1>
    <p>Install the thing.</p>
  </main>
  <footer><a href="/legal">Legal</a></footer>
</body>
</html>`

func TestExtractContentCSS(t *testing.T) {
	content, err := ExtractContent(pageHTML, "main")
	require.NoError(t, err)
	assert.Contains(t, content, "Getting started")
	assert.Contains(t, content, "Install the thing.")
	assert.NotContains(t, content, "Intro")
}

func TestExtractContentXPath(t *testing.T) {
	content, err := ExtractContent(pageHTML, "//main/h1")
	require.NoError(t, err)
	assert.Equal(t, "Getting started", content)
}

func TestExtractContentNoMatch(t *testing.T) {
	content, err := ExtractContent(pageHTML, "#missing")
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestExtractContentInvalidXPath(t *testing.T) {
	_, err := ExtractContent(pageHTML, "//main[")
	assert.Error(t, err)
}

func TestExtractLinks(t *testing.T) {
	links, err := ExtractLinks(pageHTML, "https://example.test/docs/")
	require.NoError(t, err)

	assert.Contains(t, links, "https://example.test/docs/intro")
	assert.Contains(t, links, "https://example.test/legal")
	for _, link := range links {
		assert.NotContains(t, link, "javascript:")
		assert.NotContains(t, link, "mailto:")
		assert.NotContains(t, link, "#")
	}
}

func TestExtractDiscoveryLinksAnchorSelector(t *testing.T) {
	links, err := ExtractDiscoveryLinks(pageHTML, "nav a[href], aside a[href]", "https://example.test/")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"https://example.test/docs/intro",
		"https://example.test/docs/advanced",
		"https://example.test/docs/faq",
	}, links)
}

func TestExtractDiscoveryLinksContainerSelector(t *testing.T) {
	links, err := ExtractDiscoveryLinks(pageHTML, "nav", "https://example.test/")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"https://example.test/docs/intro",
		"https://example.test/docs/advanced",
	}, links)
}

func TestResolveHrefDropsFragmentsAndSchemes(t *testing.T) {
	assert.Equal(t, "", resolveHref("#top", nil))
	assert.Equal(t, "", resolveHref("javascript:alert(1)", nil))
	assert.Equal(t, "", resolveHref("ftp://example.test/file", nil))
	assert.Equal(t, "https://example.test/page", resolveHref("https://example.test/page#frag", nil))
}
