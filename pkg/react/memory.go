package react

import (
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/argus/pkg/llm"
)

// maxContextTokens bounds the estimated size of the conversation handed to
// the provider on each round (spec.md §4.8 "Memory").
const maxContextTokens = 4000

// summarizeAfterRounds is how many rounds a tool-result message survives
// before Memory collapses it to a compact projection.
const summarizeAfterRounds = 2

// roundedMessage pairs a message with the round it was appended in, so
// Memory can summarize tool results that have aged past summarizeAfterRounds.
type roundedMessage struct {
	msg   llm.Message
	round int
}

// Memory holds the full conversation history for one investigation. It
// summarizes old tool-result messages and evicts the oldest entries to
// keep the assembled context under maxContextTokens, per spec.md §4.8.
type Memory struct {
	entries []roundedMessage
	round   int
}

// NewMemory creates an empty conversation memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Append adds a message at the current round.
func (m *Memory) Append(msg llm.Message) {
	m.entries = append(m.entries, roundedMessage{msg: msg, round: m.round})
}

// AdvanceRound marks the start of a new round; subsequent Append calls are
// tagged with it for summarization age tracking.
func (m *Memory) AdvanceRound() {
	m.round++
}

// Messages returns the assembled conversation: old tool-result messages
// summarized, then the oldest entries dropped until the estimated total is
// within budget.
func (m *Memory) Messages() []llm.Message {
	projected := make([]llm.Message, len(m.entries))
	for i, e := range m.entries {
		msg := e.msg
		if msg.Role == llm.RoleTool && m.round-e.round > summarizeAfterRounds {
			msg.Content = summarizeToolResult(msg.Content)
		}
		projected[i] = msg
	}

	for estimateTokens(projected) > maxContextTokens && len(projected) > 1 {
		projected = projected[1:]
	}
	return projected
}

// estimateTokens is a cheap, deterministic proxy: ~4 chars/token, the same
// rough heuristic tarsy's prompt budget code uses when an exact tokenizer
// isn't worth the dependency for a soft cap.
func estimateTokens(msgs []llm.Message) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content) / 4
	}
	return total
}

// summarizeToolResult collapses an aged tool-result payload to a compact
// projection: top-level keys, an array length if the payload is a list,
// and a short preview — enough for the model to recall what happened
// without carrying the full payload indefinitely.
func summarizeToolResult(content string) string {
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(content), &arr); err == nil {
		preview := content
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return fmt.Sprintf(`{"summarized":true,"match_count":%d,"preview":%q}`, len(arr), preview)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		b, _ := json.Marshal(keys)
		return fmt.Sprintf(`{"summarized":true,"keys":%s}`, b)
	}

	preview := content
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return fmt.Sprintf(`{"summarized":true,"preview":%q}`, preview)
}
