package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/ManuelReschke/FactFox/internal/pkg/env"
)

// DefaultReaderBaseURL is the public markdown rendering service used when no
// READER_BASE_URL is configured.
const DefaultReaderBaseURL = "https://r.jina.ai"

// Content is the normalized result of fetching a target page: its markdown
// rendering plus the image URLs referenced in it, in order of appearance.
type Content struct {
	Markdown  string
	ImageURLs []string
}

// FetchError reports a non-success response from the content extraction
// service. The upstream status is retained for the failure message stored on
// the request.
type FetchError struct {
	StatusCode int
	Status     string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch content: %s", e.Status)
}

// Client retrieves a readable markdown rendering of a target URL through an
// external reader service. No client-side timeout is set; the pipeline
// deliberately waits as long as the transport allows.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a fetcher client against the configured reader service
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(env.GetEnv("READER_BASE_URL", DefaultReaderBaseURL), "/"),
	}
}

// NewClientWithBaseURL creates a fetcher client for a specific reader endpoint
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Fetch retrieves the markdown rendering of the target URL and extracts the
// image references from it. Any non-2xx upstream response is a *FetchError.
func (c *Client) Fetch(ctx context.Context, target string) (*Content, error) {
	readerURL := c.baseURL + "/" + target

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reader request: %w", err)
	}
	req.Header.Set("Accept", "text/markdown")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach content service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content body: %w", err)
	}

	markdown := string(body)
	return &Content{
		Markdown:  markdown,
		ImageURLs: ExtractImageURLs(markdown),
	}, nil
}

// imagePattern matches markdown image syntax ![alt](http...)
var imagePattern = regexp.MustCompile(`!\[.*?\]\((https?://[^\s)]+)\)`)

// ExtractImageURLs returns the image URLs referenced in markdown image
// syntax, in order of first appearance. Duplicates are preserved. Vector
// image formats are dropped since the vision model cannot consume them.
func ExtractImageURLs(markdown string) []string {
	matches := imagePattern.FindAllStringSubmatch(markdown, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if isVectorImage(m[1]) {
			continue
		}
		urls = append(urls, m[1])
	}
	return urls
}

func isVectorImage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".svg")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".svg")
}
