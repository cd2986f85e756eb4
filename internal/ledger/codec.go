package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode strictly unmarshals a contract message; unknown fields are rejected.
func Decode(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMsg, err)
	}
	return nil
}

// Encode marshals a query response.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return raw, nil
}
