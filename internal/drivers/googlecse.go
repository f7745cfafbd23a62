package drivers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/agentoven/psymarket/pkg/models"
)

// GoogleCSE queries the Custom Search JSON API.
type GoogleCSE struct {
	client *http.Client
}

// NewGoogleCSE returns the driver for kind "google_cse".
func NewGoogleCSE(client *http.Client) *GoogleCSE { return &GoogleCSE{client: client} }

func (d *GoogleCSE) Kind() string { return "google_cse" }

func (d *GoogleCSE) Call(ctx context.Context, desc models.ProviderDescriptor, req models.InvocationRequest, creds map[string]string) (*models.InvocationResult, error) {
	q := url.Values{}
	q.Set("key", creds["GOOGLE_API_KEY"])
	q.Set("cx", creds["GOOGLE_CSE_ID"])
	q.Set("q", req.Prompt)
	q.Set("num", strconv.Itoa(min(numResults(req.Options), 10)))
	q.Set("lr", "lang_pt")
	q.Set("gl", "br")

	var resp struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	u := endpointOr(desc, "https://www.googleapis.com/customsearch/v1") + "?" + q.Encode()
	if err := getJSON(ctx, d.client, u, &resp); err != nil {
		return nil, err
	}

	hits := make([]models.SearchHit, 0, len(resp.Items))
	for _, it := range resp.Items {
		hits = append(hits, models.SearchHit{Title: it.Title, URL: it.Link, Snippet: it.Snippet, Source: desc.Name})
	}
	return hitsResult(req.Prompt, desc.Model, hits), nil
}
