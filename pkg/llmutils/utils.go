// Package llmutils provides helpers to shape LLM input and output.
package llmutils

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/effective-security/finassist/pkg/llms"
)

// CleanJSON returns JSON by trimming prefixes and postfixes,
// as LLM can reply like `Here you go: {json}`
func CleanJSON(bs []byte) []byte {
	return trimPostfixAfterJSON(trimPrefixBeforeJSON(bs))
}

func trimPrefixBeforeJSON(bs []byte) []byte {
	startObject := bytes.IndexByte(bs, '{')
	startArray := bytes.IndexByte(bs, '[')

	var start int
	switch {
	case startObject == -1 && startArray == -1:
		return bs
	case startObject == -1:
		start = startArray
	case startArray == -1:
		start = startObject
	default:
		start = min(startObject, startArray)
	}
	return bs[start:]
}

func trimPostfixAfterJSON(bs []byte) []byte {
	endObject := bytes.LastIndexByte(bs, '}')
	endArray := bytes.LastIndexByte(bs, ']')

	var end int
	switch {
	case endObject == -1 && endArray == -1:
		return bs
	case endObject == -1:
		end = endArray
	case endArray == -1:
		end = endObject
	default:
		end = max(endObject, endArray)
	}
	return bs[:end+1]
}

func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

func BackticksJSON(js string) string {
	return "\n```json\n" + strings.TrimSpace(js) + "\n```\n"
}

// MergeInputs returns a copy of configInputs overridden by userInputs.
func MergeInputs(configInputs map[string]any, userInputs map[string]any) map[string]any {
	res := make(map[string]any, len(configInputs)+len(userInputs))
	for k, v := range configInputs {
		res[k] = v
	}
	for k, v := range userInputs {
		res[k] = v
	}
	return res
}

// CountMessagesContentSize counts the size of the content in the messages
func CountMessagesContentSize(msgs []llms.Message) uint64 {
	var size uint64
	for _, mc := range msgs {
		size += uint64(len(mc.Role))
		for _, p := range mc.Parts {
			switch pp := p.(type) {
			case llms.TextContent:
				size += uint64(len(pp.Text))
			case llms.ToolCall:
				size += uint64(len(pp.ID))
				size += uint64(len(pp.Type))
				if pp.FunctionCall != nil {
					size += uint64(len(pp.FunctionCall.Name))
					size += uint64(len(pp.FunctionCall.Arguments))
				}
			case llms.ToolCallResponse:
				size += uint64(len(pp.ToolCallID))
				size += uint64(len(pp.Name))
				size += uint64(len(pp.Content))
			}
		}
	}
	return size
}

// CountResponseContentSize counts the size of the content in the content response
func CountResponseContentSize(resp *llms.ContentResponse) uint64 {
	var size uint64
	for _, choice := range resp.Choices {
		size += uint64(len(choice.Content))
		for _, toolCall := range choice.ToolCalls {
			size += uint64(len(toolCall.ID))
			size += uint64(len(toolCall.Type))
			if toolCall.FunctionCall != nil {
				size += uint64(len(toolCall.FunctionCall.Name))
				size += uint64(len(toolCall.FunctionCall.Arguments))
			}
		}
	}
	return size
}

// CountTokens sums token usage reported in GenerationInfo.
func CountTokens(resp *llms.ContentResponse) (in, out, total int64) {
	for _, choice := range resp.Choices {
		in += toInt64(choice.GenerationInfo["InputTokens"])
		out += toInt64(choice.GenerationInfo["OutputTokens"])
		total += toInt64(choice.GenerationInfo["TotalTokens"])
	}
	return
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
