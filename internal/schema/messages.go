package schema

// Messages is the ordered list of messages exchanged with the model.
// It owns typed append methods so callers never construct raw maps.
type Messages struct {
	Messages []Message
}

// NewMessages returns a Messages initialised with the given messages.
// Called with no arguments it returns an empty Messages ready for use.
func NewMessages(msgs ...Message) Messages {
	if len(msgs) == 0 {
		return Messages{Messages: make([]Message, 0)}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return Messages{Messages: out}
}

// AddUser appends a user message.
func (mh *Messages) AddUser(content string) {
	mh.Messages = append(mh.Messages, NewUserMessage(content))
}

// AddAssistant appends a final assistant message.
func (mh *Messages) AddAssistant(content string) {
	mh.Messages = append(mh.Messages, NewAssistantMessage(content))
}

// AddToolRound appends the results of the calls one model response issued,
// one tool-result message per call, in call order.
func (mh *Messages) AddToolRound(calls []ToolCallRequest, results []ToolCallResult) {
	round := len(mh.Messages)
	for i, call := range calls {
		msg := NewToolResultMessage(call, results[i])
		msg.Round = round
		mh.Messages = append(mh.Messages, msg)
	}
}

func (mh *Messages) Len() int { return len(mh.Messages) }

// Truncate drops every message after the first n.
func (mh *Messages) Truncate(n int) {
	if n < 0 || n >= len(mh.Messages) {
		return
	}
	clear(mh.Messages[n:])
	mh.Messages = mh.Messages[:n]
}

// Clone returns a copy of mh with an independent backing slice.
func (mh *Messages) Clone() Messages {
	cloned := make([]Message, len(mh.Messages))
	copy(cloned, mh.Messages)
	return Messages{Messages: cloned}
}

// ToolRun is the tool-result messages of one round: the calls one model
// response issued, together with their results.
type ToolRun []Message

// Calls returns the requests of the run in order.
func (r ToolRun) Calls() []ToolCallRequest {
	out := make([]ToolCallRequest, 0, len(r))
	for _, m := range r {
		if m.Call != nil {
			out = append(out, *m.Call)
		}
	}
	return out
}

// Walk visits the history in order, grouping the tool-result messages of each
// round into one ToolRun. Exactly one of msg and run is set per callback.
func (mh *Messages) Walk(fn func(msg *Message, run ToolRun)) {
	msgs := mh.Messages
	for i := 0; i < len(msgs); {
		if msgs[i].Role != RoleTool {
			fn(&msgs[i], nil)
			i++
			continue
		}
		j := i
		for j < len(msgs) && msgs[j].Role == RoleTool && msgs[j].Round == msgs[i].Round {
			j++
		}
		fn(nil, ToolRun(msgs[i:j]))
		i = j
	}
}
