package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const redditUserAgent = "ReddiChat:v1.0"

// 单次搜索结果上限，防止响应过长
const maxRedditResults = 10

// RedditTool 通过 Reddit 公开搜索接口查找相关帖子
type RedditTool struct {
	BaseURL string
	Client  *http.Client
}

func NewRedditTool() *RedditTool {
	return &RedditTool{
		BaseURL: "https://www.reddit.com",
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *RedditTool) Name() string { return "search_reddit" }

func (t *RedditTool) Description() string {
	return "Search Reddit for posts and discussions related to the query, with optional subreddit filtering. " +
		"Useful for finding recent discussions, opinions, and information from Reddit communities."
}

func (t *RedditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search term or question"},
			"subreddits": {"type": "array", "items": {"type": "string"}, "description": "Optional subreddit names to search in"},
			"limit": {"type": "integer", "description": "Maximum number of results (default 5, max 10)"},
			"time_filter": {"type": "string", "enum": ["day", "week", "month", "year", "all"], "description": "Time period to search within"}
		},
		"required": ["query"]
	}`)
}

type redditArgs struct {
	Query      string   `json:"query"`
	Subreddits []string `json:"subreddits"`
	Limit      int      `json:"limit"`
	TimeFilter string   `json:"time_filter"`
}

// redditPayload 工具返回给模型的负载。posts 的字段与 model.Source 对齐
type redditPayload struct {
	Query        string           `json:"query"`
	ResultsCount int              `json:"results_count"`
	Posts        []map[string]any `json:"posts"`
	Error        string           `json:"error,omitempty"`
}

func (t *RedditTool) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var a redditArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return marshalPayload(redditPayload{Error: fmt.Sprintf("invalid arguments: %v", err), Posts: []map[string]any{}})
	}

	if a.Limit <= 0 {
		a.Limit = 5
	}
	if a.Limit > maxRedditResults {
		a.Limit = maxRedditResults
	}
	if a.TimeFilter == "" {
		a.TimeFilter = "month"
	}

	posts, err := t.search(ctx, a)
	if err != nil {
		log.Printf("[RedditTool] search failed: %v", err)
		return marshalPayload(redditPayload{
			Query: a.Query,
			Error: fmt.Sprintf("Reddit search failed: %v", err),
			Posts: []map[string]any{},
		})
	}

	return marshalPayload(redditPayload{
		Query:        a.Query,
		ResultsCount: len(posts),
		Posts:        posts,
	})
}

func (t *RedditTool) search(ctx context.Context, a redditArgs) ([]map[string]any, error) {
	path := "/search.json"
	if len(a.Subreddits) > 0 {
		path = "/r/" + strings.Join(a.Subreddits, "+") + "/search.json"
	}

	q := url.Values{}
	q.Set("q", a.Query)
	q.Set("sort", "relevance")
	q.Set("t", a.TimeFilter)
	q.Set("limit", strconv.Itoa(a.Limit))
	if len(a.Subreddits) > 0 {
		q.Set("restrict_sr", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", redditUserAgent)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded, please try again in a few minutes")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Data struct {
			Children []struct {
				Data map[string]any `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("invalid listing response: %w", err)
	}

	posts := make([]map[string]any, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, redditPost(child.Data))
	}
	return posts, nil
}

// redditPost 将原始帖子数据映射为固定字段，缺失字段取零值
func redditPost(data map[string]any) map[string]any {
	text := str(data["selftext"])
	if len(text) > 300 {
		text = text[:300] + "..."
	}
	if text == "" {
		text = "[No text content; this is a link post]"
	}

	created := ""
	if ts, ok := data["created_utc"].(float64); ok {
		created = time.Unix(int64(ts), 0).UTC().Format("2006-01-02 15:04:05")
	}

	author := str(data["author"])
	if author == "" {
		author = "[Deleted]"
	}

	return map[string]any{
		"title":        str(data["title"]),
		"text":         text,
		"url":          str(data["url"]),
		"subreddit":    str(data["subreddit"]),
		"author":       author,
		"score":        num(data["score"]),
		"num_comments": num(data["num_comments"]),
		"created_utc":  created,
		"permalink":    permalinkURL(str(data["permalink"])),
	}
}

func permalinkURL(permalink string) string {
	if permalink == "" {
		return ""
	}
	return "https://www.reddit.com" + permalink
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int {
	f, _ := v.(float64)
	return int(f)
}

func marshalPayload(p any) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool payload: %w", err)
	}
	return data, nil
}
