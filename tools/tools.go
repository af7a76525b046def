package tools

import (
	"context"
	"encoding/json"
)

// Tool 模型可调用的外部能力。Invoke 返回 JSON 负载；
// 上游失败写入负载的 error 字段而不是返回 Go 错误，保证一轮对话不中断
type Tool interface {
	Name() string
	Description() string
	// Parameters 返回 JSON Schema 形式的参数定义
	Parameters() json.RawMessage
	Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}
