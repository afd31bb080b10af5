package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebSearchToolName is the name models use to request a web search.
const WebSearchToolName = "web_search"

// TavilyBaseURL is the public Tavily search endpoint.
const TavilyBaseURL = "https://api.tavily.com"

// ErrSearchNotConfigured is returned when no search API key is available.
var ErrSearchNotConfigured = errors.New("web search is not configured: missing TAVILY_API_KEY")

// WebSearchOptions configures the Tavily backed web_search tool.
type WebSearchOptions struct {
	APIKey        string
	BaseURL       string
	MaxResults    int
	SearchDepth   string // basic or advanced
	IncludeAnswer bool
	HTTPClient    *http.Client
}

type searchArgs struct {
	Query string `json:"query" description:"The search query to execute"`
}

type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
	IncludeAnswer bool   `json:"include_answer,omitempty"`
}

type tavilyResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type tavilyResponse struct {
	Answer  string         `json:"answer"`
	Results []tavilyResult `json:"results"`
}

// NewWebSearchTool returns the web_search tool. Without an API key the tool
// is still registered but every call fails with ErrSearchNotConfigured.
func NewWebSearchTool(optFns ...func(o *WebSearchOptions)) *FunctionTool {
	opts := WebSearchOptions{
		BaseURL:     TavilyBaseURL,
		MaxResults:  3,
		SearchDepth: "basic",
		HTTPClient:  &http.Client{Timeout: 20 * time.Second},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return NewFunctionToolFromStruct(
		WebSearchToolName,
		"Search the web for current information, news, or facts.",
		searchArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				return nil, NewToolError(WebSearchToolName, "query must not be empty", CodeValidation)
			}
			return tavilySearch(ctx, opts, query)
		},
	)
}

func tavilySearch(ctx context.Context, opts WebSearchOptions, query string) (string, error) {
	if opts.APIKey == "" {
		return "", ErrSearchNotConfigured
	}

	body, err := json.Marshal(tavilyRequest{
		Query:         query,
		SearchDepth:   opts.SearchDepth,
		MaxResults:    opts.MaxResults,
		IncludeAnswer: opts.IncludeAnswer,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(opts.BaseURL, "/")+"/search", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+opts.APIKey)

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("search failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	return renderSearch(out), nil
}

func renderSearch(r tavilyResponse) string {
	blocks := make([]string, 0, len(r.Results)+1)
	if r.Answer != "" {
		blocks = append(blocks, "Answer: "+r.Answer)
	}
	for _, res := range r.Results {
		blocks = append(blocks, fmt.Sprintf("Title: %s\nContent: %s", res.Title, res.Content))
	}
	if len(blocks) == 0 {
		return "No results found."
	}
	return strings.Join(blocks, "\n\n")
}
