package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"

	"github.com/ivanintech/concierge/internal/faults"
	"github.com/ivanintech/concierge/internal/store"
)

const (
	fetchTimeout  = 20 * time.Second
	fetchMaxBytes = 8 << 20
	fetchUA       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"
)

// Fetcher retrieves a page and extracts its readable core.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Fetcher{client: client}
}

// Page is the extracted content of one URL.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Text        string `json:"text,omitempty"`
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string, wantText bool) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, faults.Wrap(faults.Application, err, "invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Page{}, faults.Newf(faults.Application, "unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", fetchUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, faults.Wrap(faults.Transport, err, "fetch")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Page{}, faults.Newf(faults.Application, "fetch %s: %s", rawURL, resp.Status)
	}

	limited := io.LimitReader(resp.Body, fetchMaxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return Page{}, faults.Wrap(faults.Transport, err, "read body")
	}
	if int64(len(body)) > fetchMaxBytes {
		return Page{}, faults.Newf(faults.Application, "response exceeds %d bytes", fetchMaxBytes)
	}

	final := resp.Request.URL
	art, rerr := readability.FromReader(strings.NewReader(string(body)), final)
	page := Page{URL: final.String()}
	if rerr == nil {
		page.Title = strings.TrimSpace(art.Title)
		page.Description = strings.TrimSpace(art.Excerpt)
		page.Image = art.Image
		if wantText && strings.TrimSpace(art.Content) != "" {
			md, mdErr := htmltomarkdown.ConvertString(art.Content,
				converter.WithDomain(final.Scheme+"://"+final.Host))
			if mdErr == nil {
				page.Text = strings.TrimSpace(md)
			}
		}
	}
	if page.Title == "" {
		page.Title = final.Host
	}
	if wantText && page.Text == "" {
		// Readability found nothing article-like; fall back to the raw
		// document converted wholesale.
		if md, mdErr := htmltomarkdown.ConvertString(string(body)); mdErr == nil {
			page.Text = strings.TrimSpace(md)
		}
	}
	return page, nil
}

// ScrapeWebContent tool.
type ScrapeWebContent struct {
	Fetcher *Fetcher
}

func (t *ScrapeWebContent) Name() string { return "scrape_web_content" }

func (t *ScrapeWebContent) Description() string {
	return "Fetch a web page and return its title, description, image, and optionally the readable text."
}

func (t *ScrapeWebContent) Schema() map[string]any {
	return objectSchema(map[string]any{
		"url":           map[string]any{"type": "string"},
		"extract_image": map[string]any{"type": "boolean"},
		"extract_text":  map[string]any{"type": "boolean"},
	}, "url")
}

func (t *ScrapeWebContent) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		URL          string `json:"url"`
		ExtractImage *bool  `json:"extract_image"`
		ExtractText  *bool  `json:"extract_text"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || args.URL == "" {
		return Output{}, faults.New(faults.Application, "url is required")
	}
	wantText := args.ExtractText != nil && *args.ExtractText
	page, err := t.Fetcher.Fetch(ctx, args.URL, wantText)
	if err != nil {
		return Output{}, err
	}
	if args.ExtractImage != nil && !*args.ExtractImage {
		page.Image = ""
	}
	return Output{Result: page}, nil
}

// CandidateEvent is a possible agenda entry found on a news page.
type CandidateEvent struct {
	Title     string  `json:"title"`
	SourceURL string  `json:"source_url"`
	Keyword   string  `json:"keyword"`
	Relevance float64 `json:"relevance"`
	Status    string  `json:"status"`
}

// ScrapeNewsForEvents scans news sites for lines matching the given
// keywords and returns candidate events with status "suggested".
type ScrapeNewsForEvents struct {
	Fetcher *Fetcher
}

func (t *ScrapeNewsForEvents) Name() string { return "scrape_news_for_events" }

func (t *ScrapeNewsForEvents) Description() string {
	return "Scan news sites for lines matching keywords and propose candidate events."
}

func (t *ScrapeNewsForEvents) Schema() map[string]any {
	return objectSchema(map[string]any{
		"sites":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"keywords": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	}, "sites", "keywords")
}

func (t *ScrapeNewsForEvents) Execute(ctx context.Context, raw json.RawMessage) (Output, error) {
	var args struct {
		Sites    []string `json:"sites"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || len(args.Sites) == 0 {
		return Output{}, faults.New(faults.Application, "sites and keywords are required")
	}

	var candidates []CandidateEvent
	for _, site := range args.Sites {
		page, err := t.Fetcher.Fetch(ctx, site, true)
		if err != nil {
			// A dead site must not sink the sweep.
			continue
		}
		for _, line := range strings.Split(page.Text, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(line, "#-* "))
			if len(line) < 10 {
				continue
			}
			lower := strings.ToLower(line)
			for _, kw := range args.Keywords {
				if kw == "" || !strings.Contains(lower, strings.ToLower(kw)) {
					continue
				}
				candidates = append(candidates, CandidateEvent{
					Title:     truncate(line, 140),
					SourceURL: page.URL,
					Keyword:   kw,
					Relevance: keywordRelevance(lower, args.Keywords),
					Status:    store.StatusSuggested,
				})
				break
			}
		}
	}
	return Output{
		Result:        map[string]any{"candidates": candidates, "count": len(candidates)},
		FormattedText: fmt.Sprintf("Encontrados %d posibles eventos.", len(candidates)),
	}, nil
}

func keywordRelevance(line string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(line, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
