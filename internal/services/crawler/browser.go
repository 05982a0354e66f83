package crawler

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/models"
)

// Browser wraps one headless Chrome process. Each crawl session owns its own
// Browser so concurrent sessions cannot share cookies or cache state.
type Browser struct {
	ctx           context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	logger        arbor.ILogger
}

// NewBrowser launches a headless browser instance
func NewBrowser(ctx context.Context, config common.CrawlerConfig, logger arbor.ILogger) (*Browser, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(config.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start so launch failures surface here
	// as a transient task error instead of inside the first page visit
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	logger.Debug().
		Str("user_agent", config.UserAgent).
		Bool("headless", config.Headless).
		Msg("Browser launched")

	return &Browser{
		ctx:           browserCtx,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// NewTab opens a fresh tab in this browser
func (b *Browser) NewTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(b.ctx)
}

// Close terminates the browser process
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// applyCookies returns an action that installs the task's cookies for
// requests to pageURL. Runs after network.Enable and before navigation.
func applyCookies(cookies []models.Cookie, pageURL string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		for _, c := range cookies {
			if err := network.SetCookie(c.Name, c.Value).WithURL(pageURL).Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}
}

// installResourceBlocker aborts any request whose URL ends in one of the
// excluded extensions (compared as *.{ext1,ext2,...}). Must be registered on
// the tab context before fetch.Enable runs.
func installResourceBlocker(tabCtx context.Context, extensions []string, logger arbor.ILogger) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			execCtx := cdp.WithExecutor(tabCtx, c.Target)

			if hasExcludedExtension(paused.Request.URL, extensions) {
				if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
					logger.Trace().Err(err).Str("url", paused.Request.URL).Msg("Failed to abort excluded resource")
				}
				return
			}
			if err := fetch.ContinueRequest(paused.RequestID).Do(execCtx); err != nil {
				logger.Trace().Err(err).Str("url", paused.Request.URL).Msg("Failed to continue paused request")
			}
		}()
	})
}

// hasExcludedExtension matches a URL path against the task's resource
// exclusion extensions
func hasExcludedExtension(rawURL string, extensions []string) bool {
	// Strip query and fragment before comparing the path suffix
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(path)

	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		if ext == "" {
			continue
		}
		if strings.HasSuffix(path, "."+ext) {
			return true
		}
	}
	return false
}
