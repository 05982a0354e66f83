package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Cookie is a name/value pair applied to every request to the task's origin
type Cookie struct {
	Name  string `json:"name" toml:"name" validate:"required"`
	Value string `json:"value" toml:"value"`
}

// TaskConfig is the declarative crawl spec for a single task.
// Immutable once registered.
type TaskConfig struct {
	Name                   string     `json:"name" toml:"name" validate:"required"`
	Entry                  string     `json:"entry" toml:"entry" validate:"required,url,startswith=https://"`
	Match                  StringList `json:"match" toml:"match" validate:"required,min=1"`
	Exclude                StringList `json:"exclude,omitempty" toml:"exclude"`
	Selector               string     `json:"selector" toml:"selector" validate:"required"`
	AutoDiscoverNav        *bool      `json:"autoDiscoverNav,omitempty" toml:"auto_discover_nav"`
	DiscoverySelector      string     `json:"discoverySelector,omitempty" toml:"discovery_selector"`
	Cookie                 CookieList `json:"cookie,omitempty" toml:"cookie"`
	WaitForSelectorTimeout int        `json:"waitForSelectorTimeout,omitempty" toml:"wait_for_selector_timeout"` // ms
	ResourceExclusions     []string   `json:"resourceExclusions,omitempty" toml:"resource_exclusions"`
	MaxFileSize            int        `json:"maxFileSize,omitempty" toml:"max_file_size"` // MB per output segment
	OnVisitPage            string     `json:"onVisitPage,omitempty" toml:"on_visit_page"` // Named hook from the hook registry
	OutputFileName         string     `json:"outputFileName,omitempty" toml:"output_file_name"`
}

// DefaultDiscoverySelector selects navigation and aside elements for seed discovery
const DefaultDiscoverySelector = `nav a[href], aside a[href], [role="navigation"] a[href]`

// DefaultWaitForSelectorTimeoutMs is the per-page selector wait budget
const DefaultWaitForSelectorTimeoutMs = 5000

// Validate checks the task config shape, returning a validation error suitable
// for synchronous reporting at submission time
func (t *TaskConfig) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid task config: %w", err)
	}
	return nil
}

// ShouldDiscoverNav reports whether navigation-driven seed discovery is enabled (default true)
func (t *TaskConfig) ShouldDiscoverNav() bool {
	return t.AutoDiscoverNav == nil || *t.AutoDiscoverNav
}

// EffectiveDiscoverySelector returns the discovery selector, defaulted
func (t *TaskConfig) EffectiveDiscoverySelector() string {
	if t.DiscoverySelector != "" {
		return t.DiscoverySelector
	}
	return DefaultDiscoverySelector
}

// EffectiveWaitTimeoutMs returns the selector wait timeout in ms, defaulted
func (t *TaskConfig) EffectiveWaitTimeoutMs() int {
	if t.WaitForSelectorTimeout > 0 {
		return t.WaitForSelectorTimeout
	}
	return DefaultWaitForSelectorTimeoutMs
}

// SelectorIsXPath reports whether the content selector is an XPath expression.
// Selectors prefixed with "/" are XPath; everything else is CSS.
func (t *TaskConfig) SelectorIsXPath() bool {
	return strings.HasPrefix(t.Selector, "/")
}

// StringList accepts either a single JSON string or an array of strings
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*s = StringList(many)
	return nil
}

// CookieList accepts either a single JSON cookie object or an array
type CookieList []Cookie

func (c *CookieList) UnmarshalJSON(data []byte) error {
	var single Cookie
	if err := json.Unmarshal(data, &single); err == nil && single.Name != "" {
		*c = CookieList{single}
		return nil
	}
	var many []Cookie
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected cookie or array of cookies: %w", err)
	}
	*c = CookieList(many)
	return nil
}
