package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const maxWebResults = 10

// WebSearchTool 通过 SerpAPI 查找当前网页信息。
// 未配置 SERPAPI_API_KEY 时返回带错误说明的空结果
type WebSearchTool struct {
	BaseURL string
	Client  *http.Client
	// APIKey 为空时每次调用读 SERPAPI_API_KEY 环境变量
	APIKey string
}

func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{
		BaseURL: "https://serpapi.com",
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for current information and news related to the query. " +
		"Useful for finding recent news, current events, and up-to-date information."
}

func (t *WebSearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search term or question"},
			"num_results": {"type": "integer", "description": "Maximum number of results (default 5, max 10)"},
			"time_range": {"type": "string", "enum": ["day", "week", "month", "year"], "description": "Time period to search within"}
		},
		"required": ["query"]
	}`)
}

type webSearchArgs struct {
	Query      string `json:"query"`
	NumResults int    `json:"num_results"`
	TimeRange  string `json:"time_range"`
}

type webSearchPayload struct {
	Query        string           `json:"query"`
	ResultsCount int              `json:"results_count"`
	Results      []map[string]any `json:"results"`
	Error        string           `json:"error,omitempty"`
}

var timeRangeParam = map[string]string{
	"day":   "d",
	"week":  "w",
	"month": "m",
	"year":  "y",
}

func (t *WebSearchTool) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var a webSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return marshalPayload(webSearchPayload{Error: fmt.Sprintf("invalid arguments: %v", err), Results: []map[string]any{}})
	}

	apiKey := t.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("SERPAPI_API_KEY")
	}
	if apiKey == "" {
		return marshalPayload(webSearchPayload{
			Query:   a.Query,
			Error:   "Web search API key not configured. Please set SERPAPI_API_KEY environment variable.",
			Results: []map[string]any{},
		})
	}

	if a.NumResults <= 0 {
		a.NumResults = 5
	}
	if a.NumResults > maxWebResults {
		a.NumResults = maxWebResults
	}

	results, err := t.search(ctx, a, apiKey)
	if err != nil {
		log.Printf("[WebSearchTool] search failed: %v", err)
		return marshalPayload(webSearchPayload{
			Query:   a.Query,
			Error:   fmt.Sprintf("Web search failed: %v", err),
			Results: []map[string]any{},
		})
	}

	return marshalPayload(webSearchPayload{
		Query:        a.Query,
		ResultsCount: len(results),
		Results:      results,
	})
}

func (t *WebSearchTool) search(ctx context.Context, a webSearchArgs, apiKey string) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("q", a.Query)
	q.Set("num", strconv.Itoa(a.NumResults))
	q.Set("api_key", apiKey)
	if p, ok := timeRangeParam[a.TimeRange]; ok {
		q.Set("tbs", "qdr:"+p)
	} else {
		q.Set("tbs", "qdr:m")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		OrganicResults []map[string]any `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("invalid search response: %w", err)
	}

	results := make([]map[string]any, 0, len(parsed.OrganicResults))
	for i, raw := range parsed.OrganicResults {
		if i >= a.NumResults {
			break
		}
		results = append(results, map[string]any{
			"title":  str(raw["title"]),
			"text":   str(raw["snippet"]),
			"url":    str(raw["link"]),
			"source": str(raw["source"]),
			"date":   str(raw["date"]),
		})
	}
	return results, nil
}
