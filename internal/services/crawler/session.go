// Package crawler executes one task's browser-driven crawl into an isolated
// dataset: navigation-driven seed discovery, glob-scoped link enqueue and
// selector-based content extraction.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/models"
	"github.com/temrb/context-crawler/internal/services/matcher"
)

// pageRetries is the automatic retry budget per page on navigation or
// selector failure
const pageRetries = 2

// SessionConfig assembles everything one crawl session needs
type SessionConfig struct {
	Task    models.TaskConfig
	Global  models.GlobalConfig
	Crawler common.CrawlerConfig
	Dataset *Dataset
}

// Session drives one TaskConfig against a browser and populates the task's
// dataset. Sessions are single-use.
type Session struct {
	task     models.TaskConfig
	global   models.GlobalConfig
	config   common.CrawlerConfig
	dataset  *Dataset
	hook     VisitHook
	logger   arbor.ILogger
	limiter  *rate.Limiter
	pages    atomic.Int64
	visited  map[string]bool
	visitMu  sync.Mutex
	sitemaps *http.Client
}

// NewSession creates a session, resolving the task's visit hook
func NewSession(cfg SessionConfig, logger arbor.ILogger) (*Session, error) {
	hook, err := LookupHook(cfg.Task.OnVisitPage)
	if err != nil {
		return nil, err
	}

	delay := cfg.Crawler.RequestDelay
	if delay <= 0 {
		delay = 10 * time.Millisecond
	}

	return &Session{
		task:     cfg.Task,
		global:   cfg.Global,
		config:   cfg.Crawler,
		dataset:  cfg.Dataset,
		hook:     hook,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(delay), 1),
		visited:  make(map[string]bool),
		sitemaps: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Run executes the crawl: discovery, seed assembly, then a bounded-parallel
// breadth-first crawl. A crawl that produces zero records is a task failure.
func (s *Session) Run(ctx context.Context) error {
	browser, err := NewBrowser(ctx, s.config, s.logger)
	if err != nil {
		return err
	}
	defer browser.Close()

	seeds := s.assembleSeeds(ctx, browser)
	if len(seeds) == 0 {
		return fmt.Errorf("task %s has no crawlable seeds", s.task.Name)
	}

	s.logger.Info().
		Str("task", s.task.Name).
		Str("dataset", s.dataset.Name).
		Int("seeds", len(seeds)).
		Msg("Crawl starting")

	s.crawl(ctx, browser, seeds)

	if s.dataset.Count() == 0 {
		return fmt.Errorf("crawl of %s produced no records", s.task.Name)
	}

	s.logger.Info().
		Str("task", s.task.Name).
		Int("records", s.dataset.Count()).
		Int64("pages", s.pages.Load()).
		Msg("Crawl finished")

	return nil
}

// assembleSeeds unions the entry URL with discovered navigation links,
// dedupes, applies the exclude filter post-merge and expands sitemap URLs
// into their contained page URLs
func (s *Session) assembleSeeds(ctx context.Context, browser *Browser) []string {
	seeds := []string{s.task.Entry}

	if s.task.ShouldDiscoverNav() {
		discovered, err := s.discoverSeeds(ctx, browser)
		if err != nil {
			// Discovery failure is non-fatal: continue with the explicit entry
			s.logger.Warn().
				Err(err).
				Str("task", s.task.Name).
				Msg("Navigation discovery failed, continuing with entry URL only")
		} else {
			seeds = append(seeds, discovered...)
		}
	}

	excludes := matcher.ExpandExcludes(s.task.Exclude)
	seen := make(map[string]bool)
	var merged []string
	for _, seed := range seeds {
		if seen[seed] || matcher.MatchesAny(seed, excludes) {
			continue
		}
		seen[seed] = true
		merged = append(merged, seed)
	}

	// Sitemap seeds contribute their contents, not themselves
	var final []string
	finalSeen := make(map[string]bool)
	for _, seed := range merged {
		if !IsSitemapURL(seed) {
			if !finalSeen[seed] {
				finalSeen[seed] = true
				final = append(final, seed)
			}
			continue
		}

		urls, err := FetchSitemapURLs(ctx, seed, s.sitemaps)
		if err != nil {
			s.logger.Warn().Err(err).Str("sitemap", seed).Msg("Failed to expand sitemap")
			continue
		}
		s.logger.Debug().Str("sitemap", seed).Int("urls", len(urls)).Msg("Sitemap expanded")
		for _, u := range urls {
			if finalSeen[u] || !matcher.ShouldEnqueue(u, s.task.Match, s.task.Exclude) {
				continue
			}
			finalSeen[u] = true
			final = append(final, u)
		}
	}

	return final
}

// discoverSeeds opens the entry URL and collects anchors under the discovery
// selector, filtered through the task's match/exclude globs
func (s *Session) discoverSeeds(ctx context.Context, browser *Browser) ([]string, error) {
	tab, cancel := browser.NewTab()
	defer cancel()

	navCtx, navCancel := context.WithTimeout(tab, s.config.NavigationTimeout)
	defer navCancel()

	var html string
	err := chromedp.Run(navCtx,
		network.Enable(),
		applyCookies(s.task.Cookie, s.task.Entry),
		chromedp.Navigate(s.task.Entry),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("discovery navigation failed: %w", err)
	}

	links, err := ExtractDiscoveryLinks(html, s.task.EffectiveDiscoverySelector(), s.task.Entry)
	if err != nil {
		return nil, err
	}

	var filtered []string
	for _, link := range links {
		if matcher.ShouldEnqueue(link, s.task.Match, s.task.Exclude) {
			filtered = append(filtered, link)
		}
	}

	s.logger.Debug().
		Str("task", s.task.Name).
		Int("found", len(links)).
		Int("kept", len(filtered)).
		Msg("Navigation discovery complete")

	return filtered, nil
}

// crawl runs the breadth-first crawl over seeds with bounded page workers
func (s *Session) crawl(ctx context.Context, browser *Browser, seeds []string) {
	fr := newFrontier()
	for _, seed := range seeds {
		if s.markVisited(seed) {
			fr.Push(seed)
		}
	}

	// Abort the frontier if the parent context dies so workers drain
	crawlDone := make(chan struct{})
	defer close(crawlDone)
	go func() {
		select {
		case <-ctx.Done():
			fr.Close()
		case <-crawlDone:
		}
	}()

	workers := s.config.MaxConcurrency
	if workers <= 0 {
		workers = 2
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.pageWorker(ctx, browser, fr)
		}()
	}
	wg.Wait()
}

// pageWorker pulls URLs off the frontier until it drains
func (s *Session) pageWorker(ctx context.Context, browser *Browser, fr *frontier) {
	for {
		url, ok := fr.Next()
		if !ok {
			return
		}

		s.processPage(ctx, browser, fr, url)
		fr.Done()
	}
}

func (s *Session) processPage(ctx context.Context, browser *Browser, fr *frontier, url string) {
	if s.global.MaxPagesToCrawl.Exceeded(int(s.pages.Load())) {
		return
	}
	s.pages.Add(1)

	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	record, pageHTML, links, err := s.visitWithRetries(ctx, browser, url)
	if err != nil {
		// Page-level failure after retries: skip the page, keep crawling
		s.logger.Warn().
			Err(err).
			Str("task", s.task.Name).
			Str("url", url).
			Msg("Page skipped after retries")
		return
	}

	if err := s.dataset.Push(*record); err != nil {
		s.logger.Error().Err(err).Str("url", url).Msg("Failed to store crawled record")
		return
	}

	if s.hook != nil {
		page := &PageView{URL: record.URL, Title: record.Title, HTML: pageHTML}
		if err := s.hook(page, s.dataset.Push); err != nil {
			s.logger.Warn().Err(err).Str("url", url).Msg("Visit hook failed")
		}
	}

	for _, link := range links {
		if !matcher.ShouldEnqueue(link, s.task.Match, s.task.Exclude) {
			continue
		}
		if s.global.MaxPagesToCrawl.Exceeded(int(s.pages.Load())) {
			return
		}
		if s.markVisited(link) {
			fr.Push(link)
		}
	}
}

// visitWithRetries drives one page load with the automatic retry budget
func (s *Session) visitWithRetries(ctx context.Context, browser *Browser, url string) (*models.CrawledRecord, string, []string, error) {
	var lastErr error
	for attempt := 0; attempt <= pageRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, "", nil, ctx.Err()
		}
		if attempt > 0 {
			s.logger.Debug().
				Str("url", url).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Retrying page")
		}

		record, pageHTML, links, err := s.visitPage(ctx, browser, url)
		if err == nil {
			return record, pageHTML, links, nil
		}
		lastErr = err
	}
	return nil, "", nil, fmt.Errorf("page failed after %d attempts: %w", pageRetries+1, lastErr)
}

// visitPage loads one page in a fresh tab: cookies and the resource router
// install before navigation, then the content selector gates extraction
func (s *Session) visitPage(ctx context.Context, browser *Browser, url string) (*models.CrawledRecord, string, []string, error) {
	tab, cancel := browser.NewTab()
	defer cancel()

	// One budget covers navigation plus the selector wait; a timeout tears
	// down the tab, which is fine because every attempt gets a fresh one
	budget := s.config.NavigationTimeout + time.Duration(s.task.EffectiveWaitTimeoutMs())*time.Millisecond
	pageCtx, pageCancel := context.WithTimeout(tab, budget)
	defer pageCancel()

	actions := []chromedp.Action{
		network.Enable(),
	}
	if len(s.task.ResourceExclusions) > 0 {
		installResourceBlocker(tab, s.task.ResourceExclusions, s.logger)
		actions = append(actions, fetch.Enable())
	}
	actions = append(actions,
		applyCookies(s.task.Cookie, url),
		chromedp.Navigate(url),
	)

	if s.task.SelectorIsXPath() {
		actions = append(actions, chromedp.WaitReady(s.task.Selector, chromedp.BySearch))
	} else {
		actions = append(actions, chromedp.WaitReady(s.task.Selector, chromedp.ByQuery))
	}

	var title, pageHTML, finalURL string
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
	)

	if err := chromedp.Run(pageCtx, actions...); err != nil {
		return nil, "", nil, fmt.Errorf("navigation failed for %s: %w", url, err)
	}

	content, err := ExtractContent(pageHTML, s.task.Selector)
	if err != nil {
		return nil, "", nil, err
	}

	links, err := ExtractLinks(pageHTML, finalURL)
	if err != nil {
		return nil, "", nil, err
	}

	record := &models.CrawledRecord{
		Title: title,
		URL:   finalURL,
		HTML:  content,
	}
	return record, pageHTML, links, nil
}

// markVisited returns true the first time a URL is seen
func (s *Session) markVisited(url string) bool {
	s.visitMu.Lock()
	defer s.visitMu.Unlock()
	if s.visited[url] {
		return false
	}
	s.visited[url] = true
	return true
}
