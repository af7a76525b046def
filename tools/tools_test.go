package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRedditToolSearch(t *testing.T) {
	// 模拟 Reddit listing 响应
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/r/golang+programming/search.json") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "generics" {
			t.Errorf("unexpected query: %s", r.URL.Query().Get("q"))
		}
		if r.URL.Query().Get("restrict_sr") != "1" {
			t.Error("expected restrict_sr=1 for subreddit search")
		}
		w.Write([]byte(`{"data":{"children":[
			{"data":{"title":"Go generics","selftext":"long discussion","url":"https://example.com","subreddit":"golang","author":"gopher","score":120,"num_comments":45,"created_utc":1700000000,"permalink":"/r/golang/comments/abc/go_generics/"}},
			{"data":{"title":"link post","selftext":"","url":"https://example.org","subreddit":"programming","score":3}}
		]}}`))
	}))
	defer server.Close()

	tool := NewRedditTool()
	tool.BaseURL = server.URL

	args, _ := json.Marshal(map[string]any{
		"query":      "generics",
		"subreddits": []string{"golang", "programming"},
		"limit":      5,
	})
	payload, err := tool.Invoke(context.Background(), args)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	var result redditPayload
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatal(err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.ResultsCount != 2 {
		t.Fatalf("expected 2 posts, got %d", result.ResultsCount)
	}

	first := result.Posts[0]
	if first["title"] != "Go generics" {
		t.Errorf("unexpected title: %v", first["title"])
	}
	if first["permalink"] != "https://www.reddit.com/r/golang/comments/abc/go_generics/" {
		t.Errorf("unexpected permalink: %v", first["permalink"])
	}
	if first["created_utc"] == "" {
		t.Error("expected created_utc to be formatted")
	}

	// 缺失字段取默认值
	second := result.Posts[1]
	if second["author"] != "[Deleted]" {
		t.Errorf("expected [Deleted] author, got %v", second["author"])
	}
	if second["text"] != "[No text content; this is a link post]" {
		t.Errorf("unexpected text placeholder: %v", second["text"])
	}
	if second["num_comments"] != float64(0) {
		t.Errorf("expected 0 comments, got %v", second["num_comments"])
	}
}

func TestRedditToolUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tool := NewRedditTool()
	tool.BaseURL = server.URL

	// 上游失败不返回 Go 错误，错误进负载
	payload, err := tool.Invoke(context.Background(), json.RawMessage(`{"query":"ev"}`))
	if err != nil {
		t.Fatalf("upstream failure should not be a Go error: %v", err)
	}

	var result redditPayload
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatal(err)
	}
	if result.Error == "" {
		t.Error("expected error in payload")
	}
	if len(result.Posts) != 0 {
		t.Errorf("expected no posts, got %d", len(result.Posts))
	}
}

func TestRedditToolInvalidArgs(t *testing.T) {
	tool := NewRedditTool()
	payload, err := tool.Invoke(context.Background(), json.RawMessage(`{bad json`))
	if err != nil {
		t.Fatalf("invalid args should degrade, not error: %v", err)
	}
	var result redditPayload
	json.Unmarshal(payload, &result)
	if result.Error == "" {
		t.Error("expected error in payload for invalid args")
	}
}

func TestWebSearchTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("missing api key")
		}
		w.Write([]byte(`{"organic_results":[
			{"title":"EV news","snippet":"electric vehicles are...","link":"https://news.example.com","source":"Example News","date":"2 days ago"}
		]}`))
	}))
	defer server.Close()

	tool := NewWebSearchTool()
	tool.BaseURL = server.URL
	tool.APIKey = "test-key"

	payload, err := tool.Invoke(context.Background(), json.RawMessage(`{"query":"ev news"}`))
	if err != nil {
		t.Fatal(err)
	}

	var result webSearchPayload
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatal(err)
	}
	if result.ResultsCount != 1 {
		t.Fatalf("expected 1 result, got %d", result.ResultsCount)
	}
	if result.Results[0]["title"] != "EV news" {
		t.Errorf("unexpected title: %v", result.Results[0]["title"])
	}
}

func TestWebSearchToolNoKey(t *testing.T) {
	t.Setenv("SERPAPI_API_KEY", "")
	tool := NewWebSearchTool()

	payload, err := tool.Invoke(context.Background(), json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	var result webSearchPayload
	json.Unmarshal(payload, &result)
	if !strings.Contains(result.Error, "SERPAPI_API_KEY") {
		t.Errorf("expected missing-key error, got %q", result.Error)
	}
}
