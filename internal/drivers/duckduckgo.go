package drivers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/agentoven/psymarket/pkg/models"
)

// DuckDuckGo scrapes the keyless HTML endpoint.
type DuckDuckGo struct {
	client *http.Client
}

// NewDuckDuckGo returns the driver for kind "duckduckgo".
func NewDuckDuckGo(client *http.Client) *DuckDuckGo { return &DuckDuckGo{client: client} }

func (d *DuckDuckGo) Kind() string { return "duckduckgo" }

func (d *DuckDuckGo) Call(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest, _ map[string]string) (*models.InvocationResult, error) {
	form := url.Values{}
	form.Set("q", req.Prompt)
	form.Set("kl", "br-pt")

	endpoint := endpointOr(desc, "https://html.duckduckgo.com/html/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	limit := numResults(req.Options)
	var hits []models.SearchHit
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		href, _ := link.Attr("href")
		hits = append(hits, models.SearchHit{
			Title:   link.Text(),
			URL:     resolveDDGLink(href),
			Snippet: s.Find(".result__snippet").First().Text(),
			Source:  desc.Name,
		})
		return len(hits) < limit
	})

	return hitsResult(req.Prompt, desc.Model, hits), nil
}

// resolveDDGLink unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveDDGLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
