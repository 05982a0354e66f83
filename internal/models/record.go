package models

import "encoding/json"

// CrawledRecord is one extracted page. Extra fields pushed by an onVisitPage
// hook ride alongside the core triple.
type CrawledRecord struct {
	Title string         `json:"title"`
	URL   string         `json:"url"`
	HTML  string         `json:"html"`
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens Extra into the top-level object without letting it
// shadow the core fields
func (r CrawledRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3+len(r.Extra))
	for k, v := range r.Extra {
		out[k] = v
	}
	out["title"] = r.Title
	out["url"] = r.URL
	out["html"] = r.HTML
	return json.Marshal(out)
}

// UnmarshalJSON splits core fields from hook-supplied extras
func (r *CrawledRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["title"]; ok {
		if err := json.Unmarshal(v, &r.Title); err != nil {
			return err
		}
		delete(raw, "title")
	}
	if v, ok := raw["url"]; ok {
		if err := json.Unmarshal(v, &r.URL); err != nil {
			return err
		}
		delete(raw, "url")
	}
	if v, ok := raw["html"]; ok {
		if err := json.Unmarshal(v, &r.HTML); err != nil {
			return err
		}
		delete(raw, "html")
	}
	if len(raw) > 0 {
		r.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			r.Extra[k] = val
		}
	}
	return nil
}
