package research

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/content-pipeline/internal/types"
)

const (
	fetchTimeout       = 30 * time.Second
	maxItemsPerSource  = 10
	maxContentChars    = 4000
	maxResponseBytes   = 4 << 20
	fetcherUserAgent   = "content-pipeline/1.0"
	acceptFeedOrMarkup = "application/rss+xml, application/atom+xml, application/xml, text/html"
)

// Item is one unit of raw material fetched from a source.
type Item struct {
	Title   string
	Summary string
	Content string
	Link    string
	// Structured is true for feed entries, whose fields came from markup
	// rather than scraped prose.
	Structured bool
}

// ItemFetcher retrieves raw items from a source.
type ItemFetcher interface {
	FetchItems(ctx context.Context, source types.Source) ([]Item, error)
}

// Fetcher fetches feeds and pages over HTTP.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher with a bounded request timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// FetchItems retrieves and parses items from a source according to its kind.
// Feed sources are parsed as RSS or Atom; everything else is scraped as a
// page.
func (f *Fetcher) FetchItems(ctx context.Context, source types.Source) ([]Item, error) {
	body, err := f.get(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	if source.Kind == types.SourceFeed {
		return parseFeed(body)
	}
	return parsePage(body, source.URL)
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", fetcherUserAgent)
	req.Header.Set("Accept", acceptFeedOrMarkup)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
}

type atomDocument struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Content string `xml:"content"`
	Link    struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

// parseFeed parses RSS 2.0 or Atom, whichever the document root declares.
func parseFeed(body []byte) ([]Item, error) {
	var rss rssDocument
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		items := make([]Item, 0, len(rss.Channel.Items))
		for _, entry := range rss.Channel.Items {
			items = append(items, Item{
				Title:      strings.TrimSpace(entry.Title),
				Summary:    strings.TrimSpace(entry.Description),
				Content:    truncate(strings.TrimSpace(entry.Description), maxContentChars),
				Link:       strings.TrimSpace(entry.Link),
				Structured: true,
			})
			if len(items) == maxItemsPerSource {
				break
			}
		}
		return items, nil
	}

	var atom atomDocument
	if err := xml.Unmarshal(body, &atom); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	if len(atom.Entries) == 0 {
		return nil, fmt.Errorf("feed contains no entries")
	}

	items := make([]Item, 0, len(atom.Entries))
	for _, entry := range atom.Entries {
		content := entry.Content
		if content == "" {
			content = entry.Summary
		}
		items = append(items, Item{
			Title:      strings.TrimSpace(entry.Title),
			Summary:    strings.TrimSpace(entry.Summary),
			Content:    truncate(strings.TrimSpace(content), maxContentChars),
			Link:       strings.TrimSpace(entry.Link.Href),
			Structured: true,
		})
		if len(items) == maxItemsPerSource {
			break
		}
	}
	return items, nil
}

// parsePage scrapes a non-feed page. Each <article> element becomes one item;
// pages without article markup collapse into a single item built from the
// page title and body text.
func parsePage(body []byte, url string) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	var items []Item
	doc.Find("article").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Find("h1, h2, h3").First().Text())
		text := collapseWhitespace(sel.Text())
		if title == "" || text == "" {
			return true
		}
		items = append(items, Item{
			Title:   title,
			Content: truncate(text, maxContentChars),
			Link:    url,
		})
		return len(items) < maxItemsPerSource
	})
	if len(items) > 0 {
		return items, nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := collapseWhitespace(doc.Find("main, body").First().Text())
	if title == "" && text == "" {
		return nil, fmt.Errorf("page contains no extractable content")
	}
	return []Item{{
		Title:   title,
		Content: truncate(text, maxContentChars),
		Link:    url,
	}}, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
