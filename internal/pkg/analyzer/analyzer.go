package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/ManuelReschke/FactFox/internal/pkg/env"
)

const (
	// ScoreToolName is the structured tool the model must invoke to report
	// its final authenticity verdict.
	ScoreToolName = "setAuthenticityScore"

	// SearchToolName is the optional web-search tool offered to the model
	// when a search provider is configured.
	SearchToolName = "searchWeb"

	// DefaultScore is used when the model finishes its turn without ever
	// invoking the scoring tool. Policy: neutral midpoint, never a crash.
	DefaultScore = 50

	// DefaultMaxImages bounds how many image references are attached to the
	// model request; overflow is dropped.
	DefaultMaxImages = 16

	defaultModel           = "gpt-4o-mini"
	defaultTemperature     = 0.3
	defaultMaxOutputTokens = 2048
)

const factCheckInstruction = `You are a critical, concise fact-checker. Fact-check the following social media post content and verify its authenticity. Structure your answer as:

1. A short verdict heading
2. A one-line guidance note for the reader
3. A brief summary of the post
4. Bullet points verifying the key claims, cross-referenced with reliable sources, and flagging any misleading or false information

When you are done, call the ` + ScoreToolName + ` tool exactly once with your final authenticity score (0 = completely false, 100 = completely true).

Here is the content to fact-check:

`

// Config carries the fixed generation parameters for the analysis engine.
// All values are immutable once the client is constructed.
type Config struct {
	APIKey          string
	BaseURL         string // optional, for OpenAI-compatible backends and tests
	Model           string
	Temperature     float32
	MaxOutputTokens int
	MaxImages       int
}

// ConfigFromEnv builds the engine configuration from the environment
func ConfigFromEnv() Config {
	return Config{
		APIKey:          env.GetEnv("AI_API_KEY", ""),
		BaseURL:         env.GetEnv("AI_BASE_URL", ""),
		Model:           env.GetEnv("AI_MODEL", defaultModel),
		Temperature:     defaultTemperature,
		MaxOutputTokens: defaultMaxOutputTokens,
		MaxImages:       DefaultMaxImages,
	}
}

// Citation is one retrieved source reference (title + URL)
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Analysis is the outcome of one model run over fetched content
type Analysis struct {
	Narrative string
	Score     int
	ScoreSet  bool // false when the default score was applied
	Citations []Citation
}

// Client drives the AI model over fetched content. It is an explicitly
// constructed, immutable value; there is no ambient global configuration.
type Client struct {
	api    *openai.Client
	cfg    Config
	search SearchProvider
}

// NewClient creates an analysis engine client. The search provider may be
// nil, in which case the web-search tool is not offered to the model.
func NewClient(cfg Config, search SearchProvider) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = DefaultMaxImages
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		search: search,
	}
}

// Analyze streams a fact-check over the given content and extracts the
// authenticity score from the model's tool invocation. Text deltas are
// concatenated in arrival order; no reordering, no truncation beyond the
// configured output token cap. If the model never invokes the scoring tool
// the score defaults to DefaultScore.
func (c *Client) Analyze(ctx context.Context, text string, imageURLs []string) (*Analysis, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxOutputTokens,
		N:           1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: c.buildContentParts(text, imageURLs),
			},
		},
		Tools: c.buildTools(),
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model invocation failed: %w", err)
	}
	defer stream.Close()

	var narrative strings.Builder
	calls := newToolCallAccumulator()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("model stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			narrative.WriteString(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			calls.add(tc)
		}
	}

	analysis := &Analysis{
		Narrative: narrative.String(),
		Score:     DefaultScore,
	}

	if score, ok := calls.extractScore(); ok {
		analysis.Score = score
		analysis.ScoreSet = true
	} else {
		log.Infof("[Analyzer] Model never invoked %s, defaulting score to %d", ScoreToolName, DefaultScore)
	}

	c.applySearchCalls(ctx, calls, analysis)

	return analysis, nil
}

// buildContentParts assembles the mixed text + image message content. Image
// references beyond the configured cap are dropped.
func (c *Client) buildContentParts(text string, imageURLs []string) []openai.ChatMessagePart {
	if len(imageURLs) > c.cfg.MaxImages {
		log.Warnf("[Analyzer] Dropping %d of %d image references (cap %d)", len(imageURLs)-c.cfg.MaxImages, len(imageURLs), c.cfg.MaxImages)
		imageURLs = imageURLs[:c.cfg.MaxImages]
	}

	parts := make([]openai.ChatMessagePart, 0, len(imageURLs)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: factCheckInstruction + text,
	})
	for _, u := range imageURLs {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    u,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return parts
}

func (c *Client) buildTools() []openai.Tool {
	tools := []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ScoreToolName,
				Description: "Set the final authenticity score from 0-100 (0 = completely false, 100 = completely true)",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"score": {
							Type:        jsonschema.Integer,
							Description: "Authenticity score from 0-100",
						},
						"reasoning": {
							Type:        jsonschema.String,
							Description: "Brief explanation for the score",
						},
					},
					Required: []string{"score", "reasoning"},
				},
			},
		},
	}

	if c.search != nil {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        SearchToolName,
				Description: "Search the web for sources relevant to the claims under review",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"query": {
							Type:        jsonschema.String,
							Description: "Search query",
						},
					},
					Required: []string{"query"},
				},
			},
		})
	}

	return tools
}

// applySearchCalls runs the configured provider for every searchWeb tool
// invocation and appends the harvested citations as a numbered Sources
// section. Search failures degrade to an uncited narrative.
func (c *Client) applySearchCalls(ctx context.Context, calls *toolCallAccumulator, analysis *Analysis) {
	if c.search == nil {
		return
	}

	for _, query := range calls.searchQueries() {
		citations, err := c.search.Search(ctx, query)
		if err != nil {
			log.Errorf("[Analyzer] Web search for %q failed: %v", query, err)
			continue
		}
		analysis.Citations = append(analysis.Citations, citations...)
	}

	if len(analysis.Citations) == 0 {
		return
	}

	var sources strings.Builder
	sources.WriteString("\n\n## Sources\n\n")
	for i, cit := range analysis.Citations {
		title := cit.Title
		if title == "" {
			title = cit.URL
		}
		fmt.Fprintf(&sources, "%d. [%s](%s)\n", i+1, title, cit.URL)
	}
	analysis.Narrative += sources.String()
}

// toolCallAccumulator reassembles streamed tool-call fragments. The API
// delivers a tool call's name on its first fragment and its JSON arguments
// spread over subsequent fragments, keyed by call index.
type toolCallAccumulator struct {
	order []int
	byIdx map[int]*toolCallBuffer
	next  int
}

type toolCallBuffer struct {
	name string
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIdx: make(map[int]*toolCallBuffer)}
}

func (a *toolCallAccumulator) add(tc openai.ToolCall) {
	idx := a.next
	if tc.Index != nil {
		idx = *tc.Index
	}
	buf, ok := a.byIdx[idx]
	if !ok {
		buf = &toolCallBuffer{}
		a.byIdx[idx] = buf
		a.order = append(a.order, idx)
		a.next = idx + 1
	}
	if tc.Function.Name != "" {
		buf.name = tc.Function.Name
	}
	buf.args.WriteString(tc.Function.Arguments)
}

// complete returns the assembled calls in stream order
func (a *toolCallAccumulator) complete() []*toolCallBuffer {
	sort.Ints(a.order)
	out := make([]*toolCallBuffer, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, a.byIdx[idx])
	}
	return out
}

// extractScore decodes the scoring tool invocation. The last well-formed
// invocation wins; the value is clamped to [0,100]. Malformed arguments are
// treated as "tool never invoked".
func (a *toolCallAccumulator) extractScore() (int, bool) {
	score := 0
	found := false
	for _, call := range a.complete() {
		if call.name != ScoreToolName {
			continue
		}
		var args struct {
			Score     float64 `json:"score"`
			Reasoning string  `json:"reasoning"`
		}
		if err := json.Unmarshal([]byte(call.args.String()), &args); err != nil {
			log.Errorf("[Analyzer] Malformed %s arguments: %v", ScoreToolName, err)
			continue
		}
		score = clampScore(int(args.Score))
		found = true
	}
	return score, found
}

// searchQueries returns the queries of all searchWeb invocations, in order
func (a *toolCallAccumulator) searchQueries() []string {
	var queries []string
	for _, call := range a.complete() {
		if call.name != SearchToolName {
			continue
		}
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.args.String()), &args); err != nil || args.Query == "" {
			continue
		}
		queries = append(queries, args.Query)
	}
	return queries
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
