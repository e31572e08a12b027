package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ManuelReschke/FactFox/internal/pkg/env"
)

// SearchProvider retrieves source citations for a query. A nil provider
// means web-search grounding is disabled.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]Citation, error)
}

const defaultSearchResultCount = 5

// httpSearchProvider queries a JSON web-search API for grounding citations
type httpSearchProvider struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	count      int
}

// NewSearchProviderFromEnv returns the configured search provider, or nil
// when SEARCH_API_URL is not set.
func NewSearchProviderFromEnv() SearchProvider {
	endpoint := env.GetEnv("SEARCH_API_URL", "")
	if endpoint == "" {
		return nil
	}
	return &httpSearchProvider{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		apiKey:     env.GetEnv("SEARCH_API_KEY", ""),
		count:      defaultSearchResultCount,
	}
}

// NewHTTPSearchProvider creates a search provider for a specific endpoint
func NewHTTPSearchProvider(endpoint, apiKey string) SearchProvider {
	return &httpSearchProvider{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		apiKey:     apiKey,
		count:      defaultSearchResultCount,
	}
}

// searchResponse is the wire shape of the search API
type searchResponse struct {
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"results"`
}

func (p *httpSearchProvider) Search(ctx context.Context, query string) ([]Citation, error) {
	reqURL := fmt.Sprintf("%s?q=%s&count=%d", p.endpoint, url.QueryEscape(query), p.count)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned %s", resp.Status)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	citations := make([]Citation, 0, len(body.Results))
	for _, r := range body.Results {
		if r.URL == "" {
			continue
		}
		citations = append(citations, Citation{Title: r.Title, URL: r.URL})
	}
	return citations, nil
}
