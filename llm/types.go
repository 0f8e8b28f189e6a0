package llm

// MessageRole identifies who produced a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one turn of conversation history. Content is ordered: a single
// assistant message may interleave text with tool-use blocks, and a user
// message may carry several tool results.
type Message struct {
	Role    MessageRole
	Content []ContentBlock
}

// ContentBlockType discriminates the ContentBlock union.
type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeToolUse    ContentBlockType = "tool_use"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

// ContentBlock holds exactly one of the three payloads, selected by Type.
type ContentBlock struct {
	Type       ContentBlockType
	Text       string
	ToolUse    *ToolUseBlock
	ToolResult *ToolResultBlock
}

// ToolUseBlock is the model asking for a tool invocation. ID ties the
// eventual result back to this request.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResultBlock carries a tool's outcome back to the model. Content is
// the JSON-encoded payload; IsError marks execution failures so the model
// can recover instead of trusting the payload.
type ToolResultBlock struct {
	ID      string
	Content string
	IsError bool
}

// ToolSpec describes one callable tool in the request's tool contract.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema is the JSON Schema for a tool's arguments. ExtraFields passes
// through schema keywords beyond type/properties/required unchanged.
type ToolSchema struct {
	Type        string
	Properties  map[string]any
	Required    []string
	ExtraFields map[string]any
}

// Request is a complete chat call: history plus the per-call knobs.
// Temperature is a pointer so providers can distinguish "unset" from zero.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Tools       []ToolSpec
	MaxTokens   int64
	Temperature *float64
}

// Response is the non-streaming result of a call.
type Response struct {
	Content    []ContentBlock
	Usage      *Usage
	StopReason string
}

// Usage reports token accounting. The cache fields are zero for providers
// without prompt caching.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// StreamDeltaType discriminates the StreamDelta union.
type StreamDeltaType string

const (
	StreamDeltaTypeText      StreamDeltaType = "text"
	StreamDeltaTypeToolUse   StreamDeltaType = "tool_use"
	StreamDeltaTypeToolInput StreamDeltaType = "tool_input"
)

// StreamDelta is one increment of streamed content: a text fragment, the
// start of a tool-use block, or a fragment of that block's input JSON.
type StreamDelta struct {
	Type      StreamDeltaType
	Text      string
	ToolUse   *ToolUseBlock
	ToolInput string
}

// StreamEventType discriminates stream events.
type StreamEventType string

const (
	StreamEventTypeStart        StreamEventType = "start"
	StreamEventTypeContentBlock StreamEventType = "content_block"
	StreamEventTypeContentDelta StreamEventType = "content_delta"
	StreamEventTypeMessageDelta StreamEventType = "message_delta"
	StreamEventTypeStop         StreamEventType = "stop"
)

// StreamEvent is one event from a Stream. Delta is set for content events,
// Usage for message deltas that carry accounting, and Done on the final
// stop event.
type StreamEvent struct {
	Type  StreamEventType
	Delta *StreamDelta
	Usage *Usage
	Done  bool
}

// NewTextMessage builds a single-block text message.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{{Type: ContentBlockTypeText, Text: text}},
	}
}
