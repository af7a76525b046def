package agent

import (
	"encoding/json"

	"github.com/Msparihar/ReddiChat/model"
)

// EventType 流式事件类型。done 和 error 为终止事件，之后不再有事件
type EventType string

const (
	EventContentDelta EventType = "content_delta"
	EventToolStart    EventType = "tool_start"
	EventToolEnd      EventType = "tool_end"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// Event 带标签的流式事件变体，构造函数决定哪些字段有效
type Event struct {
	Type       EventType
	Delta      string          // content_delta
	ToolName   string          // tool_start / tool_end
	ToolOutput json.RawMessage // tool_end，工具原始输出
	Result     *Result         // done
	Err        string          // error
}

// Result 一轮模型调用的最终产出
type Result struct {
	Content  string
	Sources  []model.Source
	ToolUsed string
}

func contentDeltaEvent(delta string) Event {
	return Event{Type: EventContentDelta, Delta: delta}
}

func toolStartEvent(name string) Event {
	return Event{Type: EventToolStart, ToolName: name}
}

func toolEndEvent(name string, output json.RawMessage) Event {
	return Event{Type: EventToolEnd, ToolName: name, ToolOutput: output}
}

func doneEvent(result *Result) Event {
	return Event{Type: EventDone, Result: result}
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Err: msg}
}
