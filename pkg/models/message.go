// Package models provides the wire-level data model shared by the agent
// loop, the tool registry, and the MCP client: messages, content blocks,
// tool calls/results, and task events.
package models

import "encoding/json"

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation. The conversation alternates
// strictly between RoleUser and RoleAssistant; two messages of the same
// role never adjoin.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// BlockType discriminates the ContentBlock variants.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is a tagged union over the four block kinds the spec
// defines. Only the fields relevant to Type are populated; callers must
// switch on Type before reading them.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockImage
	MediaType  string `json:"media_type,omitempty"`
	Base64Data string `json:"base64_data,omitempty"`

	// BlockToolUse (assistant-produced)
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`

	// BlockToolResult (user-produced; one per preceding tool_use)
	ToolResultContent  []ContentBlock `json:"tool_result_content,omitempty"`
	IsError            bool           `json:"is_error,omitempty"`
	StructuredContent  json.RawMessage `json:"structured_content,omitempty"`
}

// Text returns a text content block.
func Text(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// Image returns an image content block.
func Image(mediaType, base64Data string) ContentBlock {
	return ContentBlock{Type: BlockImage, MediaType: mediaType, Base64Data: base64Data}
}

// ToolUse returns an assistant tool-invocation block.
func ToolUse(toolUseID, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUseID: toolUseID, Name: name, Input: input}
}

// ToolResultBlock returns a user tool-result block paired to toolUseID.
func ToolResultBlock(toolUseID string, content []ContentBlock, isError bool, structured json.RawMessage) ContentBlock {
	return ContentBlock{
		Type:              BlockToolResult,
		ToolUseID:         toolUseID,
		ToolResultContent: content,
		IsError:           isError,
		StructuredContent: structured,
	}
}

// ToolUseBlocks returns every tool_use block in the message, in document order.
func (m Message) ToolUseBlocks() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ToolResultBlocks returns every tool_result block in the message, in document order.
func (m Message) ToolResultBlocks() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolResult {
			out = append(out, b)
		}
	}
	return out
}

// TextContent concatenates every text block's content, in document order.
func (m Message) TextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ValidateAlternation checks that messages strictly alternate user/assistant
// with no two same-role entries adjoining. Returns the index of the first
// violation, or -1 if the slice is valid.
func ValidateAlternation(messages []Message) int {
	for i := 1; i < len(messages); i++ {
		if messages[i].Role == messages[i-1].Role {
			return i
		}
	}
	return -1
}

// ValidateToolPairing checks that every tool_use block in message[i] (when
// assistant) is matched by exactly one tool_result block of the same ID, in
// the same order, in message[i+1]. Returns a descriptive error or nil.
func ValidateToolPairing(messages []Message) error {
	for i := 0; i+1 < len(messages); i++ {
		cur := messages[i]
		if cur.Role != RoleAssistant {
			continue
		}
		uses := cur.ToolUseBlocks()
		if len(uses) == 0 {
			continue
		}
		next := messages[i+1]
		results := next.ToolResultBlocks()
		if len(results) != len(uses) {
			return &PairingError{Index: i, Reason: "tool_use count does not match tool_result count"}
		}
		for j, u := range uses {
			if results[j].ToolUseID != u.ToolUseID {
				return &PairingError{Index: i, Reason: "tool_result id/order mismatch for " + u.ToolUseID}
			}
		}
	}
	return nil
}

// PairingError reports a tool_use/tool_result mismatch between two adjoining messages.
type PairingError struct {
	Index  int
	Reason string
}

func (e *PairingError) Error() string {
	return "tool_use/tool_result pairing error at message " + itoa(e.Index) + ": " + e.Reason
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
