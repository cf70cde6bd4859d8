package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec converts a full collection to and from its persisted form.
type Codec[T any] interface {
	Encode(records []T) ([]byte, error)
	Decode(data []byte) ([]T, error)
}

// JSONCodec stores a collection as one indented JSON array so snapshots stay
// readable and diffable.
type JSONCodec[T any] struct{}

// Encode marshals records as an indented JSON array. A nil slice encodes as [].
func (JSONCodec[T]) Encode(records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding records: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode unmarshals a JSON array. Empty input decodes to no records.
func (JSONCodec[T]) Decode(data []byte) ([]T, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return records, nil
}
