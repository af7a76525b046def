package agent

import (
	"context"
	"encoding/json"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Msparihar/ReddiChat/model"
	"github.com/Msparihar/ReddiChat/tools"
)

// 模型或上游不可用时的降级回复
const unavailableResponse = `## 🔧 Service Temporarily Unavailable

I'm currently experiencing technical difficulties and unable to process your request. Please try again in a few moments.

If the issue persists, the service may be undergoing maintenance or configuration updates.`

// LLM 模型调用接口，*openai.Client 经 NewOpenAILLM 适配
type LLM interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error)
}

// CompletionStream 模型流式响应
type CompletionStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

type openaiLLM struct {
	client *openai.Client
}

// NewOpenAILLM 基于 go-openai 客户端构造 LLM。
// baseURL 指向 Gemini 的 OpenAI 兼容端点时即为 Gemini 调用
func NewOpenAILLM(apiKey, baseURL string) LLM {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openaiLLM{client: openai.NewClientWithConfig(cfg)}
}

func (o *openaiLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return o.client.CreateChatCompletion(ctx, req)
}

func (o *openaiLLM) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error) {
	return o.client.CreateChatCompletionStream(ctx, req)
}

// Agent 模型调用层：带工具循环的显式状态机。
// 每轮对话内，模型最多经过 maxRounds 次调用，防止无界工具循环
type Agent struct {
	llm          LLM
	model        string
	systemPrompt string
	maxRounds    int
	tools        map[string]tools.Tool
	toolDefs     []openai.Tool
}

func New(llm LLM, modelName string, maxRounds int, toolList ...tools.Tool) *Agent {
	if maxRounds <= 0 {
		maxRounds = 4
	}

	a := &Agent{
		llm:          llm,
		model:        modelName,
		systemPrompt: SystemPrompt,
		maxRounds:    maxRounds,
		tools:        make(map[string]tools.Tool, len(toolList)),
	}
	for _, t := range toolList {
		a.tools[t.Name()] = t
		a.toolDefs = append(a.toolDefs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return a
}

// Run 同步执行一轮对话。上游失败被吸收为降级结果，不向外抛错
func (a *Agent) Run(ctx context.Context, turns []Turn) *Result {
	msgs := toMessages(a.systemPrompt, turns)

	var toolUsed string
	var sources []model.Source

	// AWAITING_MODEL → (有工具调用?) → AWAITING_TOOL → AWAITING_MODEL → FINAL
	for round := 0; round < a.maxRounds; round++ {
		resp, err := a.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    a.model,
			Messages: msgs,
			Tools:    a.toolDefs,
		})
		if err != nil {
			log.Printf("[Agent] model call failed: %v", err)
			return &Result{Content: unavailableResponse, Sources: []model.Source{}}
		}
		if len(resp.Choices) == 0 {
			log.Println("[Agent] model returned no choices")
			return &Result{Content: unavailableResponse, Sources: []model.Source{}}
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			// FINAL
			return &Result{Content: msg.Content, Sources: nonNil(sources), ToolUsed: toolUsed}
		}

		// AWAITING_TOOL：一轮内只执行第一个工具调用，多余的忽略
		call := msg.ToolCalls[0]
		if len(msg.ToolCalls) > 1 {
			log.Printf("[Agent] ignoring %d extra tool calls", len(msg.ToolCalls)-1)
		}

		msgs = append(msgs, msg)
		output := a.invokeTool(ctx, call)
		toolUsed = call.Function.Name
		sources = append(sources, parseSources(call.Function.Name, output)...)

		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    string(output),
		})
	}

	// 轮数耗尽，降级收尾
	log.Printf("[Agent] tool loop exceeded %d rounds", a.maxRounds)
	return &Result{Content: unavailableResponse, Sources: nonNil(sources), ToolUsed: toolUsed}
}

// invokeTool 执行工具调用。未知工具或执行失败都降级为带错误说明的负载
func (a *Agent) invokeTool(ctx context.Context, call openai.ToolCall) json.RawMessage {
	t, ok := a.tools[call.Function.Name]
	if !ok {
		log.Printf("[Agent] unknown tool requested: %s", call.Function.Name)
		return errPayload("unknown tool: " + call.Function.Name)
	}

	output, err := t.Invoke(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		log.Printf("[Agent] tool %s failed: %v", call.Function.Name, err)
		return errPayload(err.Error())
	}
	return output
}

func errPayload(msg string) json.RawMessage {
	data, _ := json.Marshal(map[string]any{"error": msg})
	return data
}

// parseSources 从工具输出中提取结构化引用。
// 负载不可解析或字段缺失时返回空结果并记日志，绝不中断整轮对话
func parseSources(toolName string, output json.RawMessage) []model.Source {
	var payload struct {
		Posts   []map[string]any `json:"posts"`
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		log.Printf("[Agent] failed to parse %s output: %v", toolName, err)
		return nil
	}

	records := payload.Posts
	if len(records) == 0 {
		records = payload.Results
	}

	sources := make([]model.Source, 0, len(records))
	for _, rec := range records {
		sources = append(sources, model.Source{
			Title:       str(rec["title"]),
			Text:        str(rec["text"]),
			URL:         str(rec["url"]),
			Subreddit:   str(rec["subreddit"]),
			Author:      str(rec["author"]),
			Score:       num(rec["score"]),
			NumComments: num(rec["num_comments"]),
			CreatedUTC:  str(rec["created_utc"]),
			Permalink:   str(rec["permalink"]),
		})
	}
	return sources
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int {
	f, _ := v.(float64)
	return int(f)
}

func nonNil(sources []model.Source) []model.Source {
	if sources == nil {
		return []model.Source{}
	}
	return sources
}
