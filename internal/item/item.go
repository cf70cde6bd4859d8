// Package item defines the item stack exchanged between listings, mailboxes
// and the transaction log.
package item

import "strings"

// Stack is an opaque serialized item plus the fields the marketplace needs
// to categorise and search it. Payload is never interpreted here.
type Stack struct {
	Type        string `json:"type" validate:"required"`
	DisplayName string `json:"display_name,omitempty"`
	Amount      int    `json:"amount" validate:"min=1"`
	Payload     []byte `json:"payload,omitempty"`
}

// Name returns the display name, or a readable form of the type such as
// "Diamond Sword" for DIAMOND_SWORD.
func (s Stack) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	words := strings.Split(strings.ToLower(s.Type), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Clone returns a copy that shares no memory with s.
func (s Stack) Clone() Stack {
	if s.Payload != nil {
		s.Payload = append([]byte(nil), s.Payload...)
	}
	return s
}
