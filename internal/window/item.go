package window

import "time"

// Kind classifies a context item. The set is closed: every switch over
// Kind in this package covers all five values.
type Kind string

// Item kinds, in the order they typically appear in a conversation.
const (
	KindSystem     Kind = "system"
	KindUser       Kind = "user"
	KindAssistant  Kind = "assistant"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
)

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSystem, KindUser, KindAssistant, KindToolCall, KindToolResult:
		return true
	}
	return false
}

// Category is the aggregation bucket a kind contributes to.
type Category string

// Aggregation buckets for token accounting.
const (
	CategorySystem  Category = "system"
	CategoryMessage Category = "message"
	CategoryTool    Category = "tool"
)

// Category maps a kind to its accounting bucket: System counts as system,
// User and Assistant as message, ToolCall and ToolResult as tool.
func (k Kind) Category() Category {
	switch k {
	case KindSystem:
		return CategorySystem
	case KindUser, KindAssistant:
		return CategoryMessage
	case KindToolCall, KindToolResult:
		return CategoryTool
	}
	return CategoryMessage
}

// defaultImportance returns the importance assigned to new items of this
// kind. Tool results sit lowest because they are the primary pruning and
// compaction target.
func (k Kind) defaultImportance() float64 {
	switch k {
	case KindSystem:
		return 1.0
	case KindUser, KindAssistant:
		return 0.5
	case KindToolCall:
		return 0.5
	case KindToolResult:
		return 0.3
	}
	return 0.5
}

// Item is one entry in the context log: a message, tool call, or tool
// result. Content is mutable only through compaction; everything else is
// set once at insertion. IDs are assigned monotonically per tracker and
// never reused.
type Item struct {
	ID         int
	Kind       Kind
	Content    string
	ToolName   string
	TokenCount int
	Pinned     bool
	Importance float64
	CreatedAt  time.Time
}
