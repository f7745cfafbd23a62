package drivers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/agentoven/psymarket/pkg/models"
)

// SerpAPI queries Google results through serpapi.com.
type SerpAPI struct {
	client *http.Client
}

// NewSerpAPI returns the driver for kind "serpapi".
func NewSerpAPI(client *http.Client) *SerpAPI { return &SerpAPI{client: client} }

func (d *SerpAPI) Kind() string { return "serpapi" }

func (d *SerpAPI) Call(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest, creds map[string]string) (*models.InvocationResult, error) {
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", req.Prompt)
	q.Set("api_key", creds["SERPAPI_KEY"])
	q.Set("num", strconv.Itoa(numResults(req.Options)))
	q.Set("hl", "pt-br")
	q.Set("gl", "br")

	var resp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	u := endpointOr(desc, "https://serpapi.com/search") + "?" + q.Encode()
	if err := getJSON(ctx, d.client, u, &resp); err != nil {
		return nil, err
	}

	hits := make([]models.SearchHit, 0, len(resp.OrganicResults))
	for _, r := range resp.OrganicResults {
		hits = append(hits, models.SearchHit{Title: r.Title, URL: r.Link, Snippet: r.Snippet, Source: desc.Name})
	}
	return hitsResult(req.Prompt, desc.Model, hits), nil
}
