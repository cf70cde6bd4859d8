package item_test

import (
	"testing"

	"github.com/jensholdgaard/auctionhouse/internal/item"
)

func TestStack_Name(t *testing.T) {
	tests := []struct {
		name  string
		stack item.Stack
		want  string
	}{
		{name: "display name wins", stack: item.Stack{Type: "DIAMOND_SWORD", DisplayName: "Excalibur"}, want: "Excalibur"},
		{name: "type is humanised", stack: item.Stack{Type: "DIAMOND_SWORD"}, want: "Diamond Sword"},
		{name: "single word", stack: item.Stack{Type: "dirt"}, want: "Dirt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stack.Name(); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStack_Clone(t *testing.T) {
	orig := item.Stack{Type: "STONE", Amount: 64, Payload: []byte{1, 2, 3}}
	clone := orig.Clone()
	clone.Payload[0] = 9

	if orig.Payload[0] != 1 {
		t.Errorf("Clone shares payload with original")
	}
}
