package tools

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/ivanintech/concierge/internal/faults"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractURLs pulls http(s) URLs out of free text. Extraction is
// idempotent: running it over its own output yields the same set.
type ExtractURLs struct{}

func (t *ExtractURLs) Name() string { return "extract_urls" }

func (t *ExtractURLs) Description() string {
	return "Extract HTTP(S) URLs from text, optionally normalising and de-duplicating."
}

func (t *ExtractURLs) Schema() map[string]any {
	return objectSchema(map[string]any{
		"text":              map[string]any{"type": "string"},
		"normalize":         map[string]any{"type": "boolean"},
		"remove_duplicates": map[string]any{"type": "boolean"},
	}, "text")
}

func (t *ExtractURLs) Execute(_ context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		Text             string `json:"text"`
		Normalize        *bool  `json:"normalize"`
		RemoveDuplicates *bool  `json:"remove_duplicates"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Output{}, faults.Wrap(faults.Application, err, "invalid arguments")
	}
	normalize := args.Normalize == nil || *args.Normalize
	dedupe := args.RemoveDuplicates == nil || *args.RemoveDuplicates

	urls := Extract(args.Text, normalize, dedupe)
	return Output{Result: map[string]any{"urls": urls, "count": len(urls)}}, nil
}

// Extract is the tool's core, exported for direct use by the conversation
// processor.
func Extract(text string, normalize, dedupe bool) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if normalize {
			m = normalizeURL(m)
		}
		if m == "" {
			continue
		}
		if dedupe {
			if seen[m] {
				continue
			}
			seen[m] = true
		}
		out = append(out, m)
	}
	return out
}

// normalizeURL lowercases scheme and host and drops fragments; query
// strings are preserved because they can be significant.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}
