package domain

import "encoding/json"

// MessageProductDetected is sent by a content scanner after every extraction pass.
const MessageProductDetected = "PRODUCT_DETECTED"

// Keys of the shared local storage area.
const (
	KeyCurrentProduct = "currentProduct"
	KeyUserSessionID  = "userSessionId"
	KeyScansUsed      = "scansUsed"
	KeyHistory        = "history"
)

// Message is a runtime message from a content scanner to the coordinator.
// The originating tab travels with the transport, not the message.
type Message struct {
	Type    string           `json:"type"`
	Payload *ProductMetadata `json:"payload"`
}

// MessageResponse acknowledges receipt of a Message. It says nothing about persistence.
type MessageResponse struct {
	Success bool `json:"success"`
}

// UnmarshalJSON tolerates payloads that fail the product shape check by
// treating them as "no product". A malformed url is dropped from an otherwise
// valid payload.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Type = raw.Type
	m.Payload = nil
	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return nil
	}
	var p ProductMetadata
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil
	}
	m.Payload = p.Sanitize()
	return nil
}
