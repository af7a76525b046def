package agent

import (
	"context"
	"errors"
	"io"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Msparihar/ReddiChat/model"
)

// RunStream 流式执行一轮对话。事件按产生顺序发送，
// done 或 error 必定是最后一个事件，随后 channel 关闭。
// 工具失败被吸收进负载，流仍以 done 收尾；模型上游失败才产生 error
func (a *Agent) RunStream(ctx context.Context, turns []Turn) <-chan Event {
	ch := make(chan Event, 16)

	go func() {
		defer close(ch)

		msgs := toMessages(a.systemPrompt, turns)
		var toolUsed string
		var sources []model.Source

		for round := 0; round < a.maxRounds; round++ {
			stream, err := a.llm.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
				Model:    a.model,
				Messages: msgs,
				Tools:    a.toolDefs,
				Stream:   true,
			})
			if err != nil {
				log.Printf("[Agent] stream open failed: %v", err)
				ch <- errorEvent("model temporarily unavailable")
				return
			}

			content, calls, err := consume(stream, ch)
			stream.Close()
			if err != nil {
				log.Printf("[Agent] stream read failed: %v", err)
				ch <- errorEvent("model temporarily unavailable")
				return
			}

			if len(calls) == 0 {
				// FINAL
				ch <- doneEvent(&Result{Content: content, Sources: nonNil(sources), ToolUsed: toolUsed})
				return
			}

			// AWAITING_TOOL：只执行第一个调用
			call := calls[0]
			if len(calls) > 1 {
				log.Printf("[Agent] ignoring %d extra tool calls", len(calls)-1)
			}

			ch <- toolStartEvent(call.Function.Name)

			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: []openai.ToolCall{call},
			})

			output := a.invokeTool(ctx, call)
			toolUsed = call.Function.Name
			sources = append(sources, parseSources(call.Function.Name, output)...)

			ch <- toolEndEvent(call.Function.Name, output)

			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    string(output),
			})
		}

		// 轮数耗尽：仍以 done 收尾
		log.Printf("[Agent] tool loop exceeded %d rounds", a.maxRounds)
		ch <- doneEvent(&Result{Content: unavailableResponse, Sources: nonNil(sources), ToolUsed: toolUsed})
	}()

	return ch
}

// consume 读完一次模型流：内容增量边收边转发，工具调用按 Index 拼装
func consume(stream CompletionStream, ch chan<- Event) (string, []openai.ToolCall, error) {
	var content string
	var calls []openai.ToolCall

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return content, calls, nil
		}
		if err != nil {
			return "", nil, err
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			content += delta.Content
			ch <- contentDeltaEvent(delta.Content)
		}

		for _, tc := range delta.ToolCalls {
			if tc.Index != nil && *tc.Index < len(calls) {
				// 续传参数片段
				calls[*tc.Index].Function.Arguments += tc.Function.Arguments
				continue
			}
			calls = append(calls, tc)
		}
	}
}
