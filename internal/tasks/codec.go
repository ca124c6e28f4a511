package tasks

import (
	"encoding/json"
	"fmt"
)

// EncodePayload validates payload against t and marshals it for the tasks table.
func EncodePayload(t Type, payload any) (json.RawMessage, error) {
	if !t.IsValid() {
		return nil, ErrInvalidType
	}
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return b, nil
}

// DecodePayload unmarshals raw into the payload struct for t.
func DecodePayload(t Type, raw []byte) (any, error) {
	if !t.IsValid() {
		return nil, ErrInvalidType
	}
	if len(raw) == 0 {
		return nil, ErrInvalidPayload
	}

	switch t {
	case TypePasswordResetEmail:
		var p PasswordResetEmailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p, nil

	case TypeApplicationReceived:
		var p ApplicationReceivedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p, nil

	default:
		return nil, ErrInvalidType
	}
}
