package crawler

import (
	"fmt"
	"sync"

	"github.com/temrb/context-crawler/internal/models"
)

// PageView is the hook's window onto a visited page
type PageView struct {
	URL   string
	Title string
	HTML  string // Full page HTML, not the extracted content
}

// VisitHook is an optional per-task page mutation hook. Hooks are compiled in
// and referenced by name from task configs; a hook may push additional
// records beyond the one the crawl produces.
type VisitHook func(page *PageView, push func(models.CrawledRecord) error) error

var (
	hooksMu sync.RWMutex
	hooks   = make(map[string]VisitHook)
)

// RegisterHook adds a named hook to the registry. Panics on duplicates, which
// indicates a programming error at init time.
func RegisterHook(name string, hook VisitHook) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if _, exists := hooks[name]; exists {
		panic(fmt.Sprintf("visit hook %q registered twice", name))
	}
	hooks[name] = hook
}

// LookupHook resolves a hook name from a task config. An empty name resolves
// to no hook.
func LookupHook(name string) (VisitHook, error) {
	if name == "" {
		return nil, nil
	}
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	hook, ok := hooks[name]
	if !ok {
		return nil, fmt.Errorf("unknown visit hook %q", name)
	}
	return hook, nil
}
