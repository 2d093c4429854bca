package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// StubProvider replays a fixed, ordered script of responses and is meant
// for tests of pkg/react and pkg/investigator that must not depend on a
// live model. Each call to Stream consumes the next scripted Response.
type StubProvider struct {
	mu        sync.Mutex
	responses []StubResponse
	calls     []StubCall
}

// StubResponse is one scripted turn: either final text, or a set of tool
// calls the loop should act on. Err, if set, is sent on the error channel
// instead of any deltas.
type StubResponse struct {
	Content   string
	ToolCalls []ToolCall
	Err       error
}

// StubCall records one invocation of Stream for assertions in tests.
type StubCall struct {
	Messages []Message
	Tools    []ToolSchema
}

// NewStubProvider builds a StubProvider that yields responses in order.
func NewStubProvider(responses ...StubResponse) *StubProvider {
	return &StubProvider{responses: responses}
}

// Calls returns the recorded Stream invocations in call order.
func (s *StubProvider) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StubCall(nil), s.calls...)
}

// Stream implements Provider. Panics if more calls are made than there are
// scripted responses, since that indicates the test's script under-counts
// ReAct rounds.
func (s *StubProvider) Stream(_ context.Context, messages []Message, tools []ToolSchema) (<-chan ResponseDelta, <-chan error) {
	s.mu.Lock()
	if len(s.responses) == 0 {
		s.mu.Unlock()
		panic("llm: StubProvider.Stream called with no scripted responses left")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	s.calls = append(s.calls, StubCall{Messages: messages, Tools: tools})
	s.mu.Unlock()

	deltas := make(chan ResponseDelta, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)
		if resp.Err != nil {
			errs <- resp.Err
			return
		}
		deltas <- ResponseDelta{
			Content:           resp.Content,
			Done:              true,
			ToolCallsSnapshot: resp.ToolCalls,
			PromptTokens:      len(resp.Content),
			CompletionTokens:  len(resp.Content),
		}
	}()

	return deltas, errs
}

// ToolResultJSON is a small helper for tests building tool-role messages:
// marshals v and panics on error, since test fixtures are always valid.
func ToolResultJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
