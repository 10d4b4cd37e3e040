package tether

import "fmt"

// normalizeInput converts the accepted invocation input shapes into
// messages to append to the conversation:
//
//	string          → one user message with a single text block
//	[]ContentBlock  → one user message holding the blocks
//	Message         → appended as-is
//	[]Message       → appended as-is
//
// Normalization happens once, on the first cycle of an invocation.
func normalizeInput(input any) ([]Message, error) {
	switch v := input.(type) {
	case string:
		return []Message{TextMessage(RoleUser, v)}, nil
	case []ContentBlock:
		return []Message{{Role: RoleUser, Content: v}}, nil
	case Message:
		return []Message{v}, nil
	case []Message:
		return v, nil
	default:
		return nil, fmt.Errorf("tether: unsupported input type %T", input)
	}
}
