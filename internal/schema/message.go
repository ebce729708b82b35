package schema

import (
	"encoding/json"
	"fmt"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCallRequest represents one tool invocation requested by the model.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolCallResult is the outcome of one ToolCallRequest.
//
// Err carries the typed failure (*ToolCallValidationError,
// *ToolInvocationError, or an error wrapping ErrCancelled) and is never
// sent to the model; Error is its model-facing text.
type ToolCallResult struct {
	CallID  string
	Success bool
	Payload map[string]any
	Error   string
	Err     error `json:"-"`
}

// Content renders the result the way it is fed back to the model.
func (r ToolCallResult) Content() string {
	if !r.Success {
		return "error: " + r.Error
	}
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprintf("error: unencodable tool output: %v", err)
	}
	return string(b)
}

// FailedResult builds an unsuccessful result from a typed error.
func FailedResult(callID string, err error) ToolCallResult {
	return ToolCallResult{CallID: callID, Success: false, Error: err.Error(), Err: err}
}

// Message is one entry in the conversation history.
//
// Role is one of "user", "assistant", "tool". Tool-result messages carry the
// call that produced them; providers rebuild their native tool-request turn
// from consecutive tool-result messages.
type Message struct {
	Role    string
	Content string
	Call    *ToolCallRequest // "tool" role only
	Result  *ToolCallResult  // "tool" role only
	Round   int              // "tool" role only: groups the calls of one response
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func NewToolResultMessage(call ToolCallRequest, result ToolCallResult) Message {
	result.CallID = call.ID
	return Message{
		Role:    RoleTool,
		Content: result.Content(),
		Call:    &call,
		Result:  &result,
	}
}

// ToolName returns the originating tool of a tool-result message.
func (m Message) ToolName() string {
	if m.Call == nil {
		return ""
	}
	return m.Call.Name
}

// ToolCallID returns the call identifier of a tool-result message.
func (m Message) ToolCallID() string {
	if m.Call == nil {
		return ""
	}
	return m.Call.ID
}
