package agent

import (
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Part 多模态内容片段，构造时确定类型
type Part struct {
	Type     PartType
	Text     string // TypeText
	MimeType string // TypeImage / TypeMedia
	Data     []byte // TypeImage / TypeMedia，原始字节
}

type PartType int

const (
	TypeText PartType = iota
	TypeImage
	TypeMedia
)

func TextPart(text string) Part {
	return Part{Type: TypeText, Text: text}
}

func ImagePart(mimeType string, data []byte) Part {
	return Part{Type: TypeImage, MimeType: mimeType, Data: data}
}

// MediaPart 音频/视频内容，字节原样内联
func MediaPart(mimeType string, data []byte) Part {
	return Part{Type: TypeMedia, MimeType: mimeType, Data: data}
}

// Turn 会话中的一轮。Parts 非空时该轮为多模态用户消息，Content 忽略
type Turn struct {
	Role    string
	Content string
	Parts   []Part
}

// toMessages 将轮次序列转换为接口消息，系统提示放最前
func toMessages(systemPrompt string, turns []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	for _, turn := range turns {
		if len(turn.Parts) == 0 {
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    turn.Role,
				Content: turn.Content,
			})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, p.toChatPart())
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:         turn.Role,
			MultiContent: parts,
		})
	}
	return msgs
}

func (p Part) toChatPart() openai.ChatMessagePart {
	switch p.Type {
	case TypeImage, TypeMedia:
		// Gemini 的 OpenAI 兼容层接受任意 mime 的 data URL，
		// 音视频与图片走同一内联通道
		return openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: dataURL(p.MimeType, p.Data),
			},
		}
	default:
		return openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: p.Text,
		}
	}
}

func dataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
