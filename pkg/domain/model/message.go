package model

import (
	"github.com/m-mizutani/goerr/v2"
)

// MessageKind tags the payload of a Message
type MessageKind string

const (
	MessageKindUser       MessageKind = "user"
	MessageKindReasoning  MessageKind = "reasoning"
	MessageKindToolCall   MessageKind = "tool_call"
	MessageKindToolResult MessageKind = "tool_result"
)

// UserMessage is a question asked by the user
type UserMessage struct {
	Text string `json:"text"`
}

// ReasoningMessage is a final answer produced by the reasoning capability
type ReasoningMessage struct {
	Text string `json:"text"`
}

// ToolCallMessage is a reasoning step that requested tool calls, in dispatch order
type ToolCallMessage struct {
	Text  string     `json:"text,omitempty"`
	Calls []ToolCall `json:"calls"`
}

// ToolResultMessage carries the result of one tool call
type ToolResultMessage struct {
	Result ToolResult `json:"result"`
}

// Message is one entry of a conversation. Exactly one payload matching Kind is set.
// Seq is 1-based and contiguous within a conversation.
type Message struct {
	Seq        int                `json:"seq"`
	Kind       MessageKind        `json:"kind"`
	User       *UserMessage       `json:"user,omitempty"`
	Reasoning  *ReasoningMessage  `json:"reasoning,omitempty"`
	ToolCall   *ToolCallMessage   `json:"tool_call,omitempty"`
	ToolResult *ToolResultMessage `json:"tool_result,omitempty"`
}

// NewUserMessage creates an unsequenced user message
func NewUserMessage(text string) Message {
	return Message{Kind: MessageKindUser, User: &UserMessage{Text: text}}
}

// NewReasoningMessage creates an unsequenced final-answer message
func NewReasoningMessage(text string) Message {
	return Message{Kind: MessageKindReasoning, Reasoning: &ReasoningMessage{Text: text}}
}

// NewToolCallMessage creates an unsequenced tool call message
func NewToolCallMessage(text string, calls []ToolCall) Message {
	return Message{Kind: MessageKindToolCall, ToolCall: &ToolCallMessage{Text: text, Calls: calls}}
}

// NewToolResultMessage creates an unsequenced tool result message
func NewToolResultMessage(result ToolResult) Message {
	return Message{Kind: MessageKindToolResult, ToolResult: &ToolResultMessage{Result: result}}
}

// Validate checks that the payload matches the kind
func (m *Message) Validate() error {
	set := 0
	for _, p := range []bool{m.User != nil, m.Reasoning != nil, m.ToolCall != nil, m.ToolResult != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return goerr.New("message must carry exactly one payload", goerr.V("seq", m.Seq), goerr.V("payloads", set))
	}

	var ok bool
	switch m.Kind {
	case MessageKindUser:
		ok = m.User != nil
	case MessageKindReasoning:
		ok = m.Reasoning != nil
	case MessageKindToolCall:
		ok = m.ToolCall != nil
	case MessageKindToolResult:
		ok = m.ToolResult != nil
	}
	if !ok {
		return goerr.New("message payload does not match kind", goerr.V("seq", m.Seq), goerr.V("kind", m.Kind))
	}
	return nil
}

// Conversation is an append-only sequence of messages owned by one thread.
// Append never mutates the receiver.
type Conversation struct {
	messages []Message
}

// NewConversation rebuilds a conversation from persisted messages after validating sequence numbers
func NewConversation(messages []Message) (Conversation, error) {
	for i := range messages {
		if messages[i].Seq != i+1 {
			return Conversation{}, goerr.Wrap(ErrCorruptCheckpoint, "message sequence gap",
				goerr.V("index", i), goerr.V("seq", messages[i].Seq))
		}
		if err := messages[i].Validate(); err != nil {
			return Conversation{}, goerr.Wrap(ErrCorruptCheckpoint, "invalid message", goerr.V("cause", err.Error()))
		}
	}
	copied := make([]Message, len(messages))
	copy(copied, messages)
	return Conversation{messages: copied}, nil
}

// Append returns a new conversation with msgs appended and sequenced
func (c Conversation) Append(msgs ...Message) Conversation {
	next := make([]Message, len(c.messages), len(c.messages)+len(msgs))
	copy(next, c.messages)
	for _, m := range msgs {
		m.Seq = len(next) + 1
		next = append(next, m)
	}
	return Conversation{messages: next}
}

// Len returns the number of messages
func (c Conversation) Len() int {
	return len(c.messages)
}

// Messages returns a copy of the messages
func (c Conversation) Messages() []Message {
	copied := make([]Message, len(c.messages))
	copy(copied, c.messages)
	return copied
}

// Last returns the last message, or nil if empty
func (c Conversation) Last() *Message {
	if len(c.messages) == 0 {
		return nil
	}
	m := c.messages[len(c.messages)-1]
	return &m
}
