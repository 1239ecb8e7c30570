package breakout

import (
	"encoding/json"
	"fmt"
)

// Frame message types
const (
	MessageTypeCompletion = "payment_completion"
	MessageTypeStatus     = "payment_status"
)

// FrameMessage is the structured payload exchanged on the cross-frame
// channel. Either Success or Status carries the outcome.
type FrameMessage struct {
	Type          string `json:"type"`
	Success       *bool  `json:"success,omitempty"`
	Status        string `json:"status,omitempty"`
	URL           string `json:"url,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ParseFrameMessage decodes and validates a cross-frame message. Anything
// without a recognized type is rejected; arbitrary pages can post to the
// channel.
func ParseFrameMessage(raw []byte) (*FrameMessage, error) {
	var m FrameMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("malformed frame message: %w", err)
	}
	if m.Type != MessageTypeCompletion && m.Type != MessageTypeStatus {
		return nil, fmt.Errorf("unknown frame message type %q", m.Type)
	}
	return &m, nil
}

// IndicatesSuccess reports whether the message signals a successful payment
func (m *FrameMessage) IndicatesSuccess() bool {
	if m.Success != nil {
		return *m.Success
	}
	switch m.Status {
	case "success", "completed", "settled":
		return true
	}
	return false
}

// IndicatesFailure reports whether the message signals a failed payment
func (m *FrameMessage) IndicatesFailure() bool {
	if m.Success != nil {
		return !*m.Success
	}
	switch m.Status {
	case "failed", "declined", "error":
		return true
	}
	return false
}
