package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode marshals kind and payload into a framed Envelope.
func Encode(id string, kind Kind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshaling %s payload: %w", kind, err)
	}

	env := Envelope{ID: id, Kind: kind, Payload: raw}

	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshaling envelope: %w", err)
	}

	return b, nil
}

// Decode unmarshals a framed Envelope.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: unmarshaling envelope: %w", err)
	}

	return env, nil
}

// DecodePayload unmarshals env's Payload into dest.
func DecodePayload(env Envelope, dest any) error {
	if err := json.Unmarshal(env.Payload, dest); err != nil {
		return fmt.Errorf("protocol: unmarshaling %s payload: %w", env.Kind, err)
	}

	return nil
}
