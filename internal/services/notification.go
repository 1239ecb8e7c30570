package services

import (
	"encoding/json"
	"time"

	"traderoom_app_echo/internal/apperrors"
)

// Notification is the validated shape of a gateway completion signal. Both
// the native webhook payload and the synthesized result of a direct gateway
// lookup normalize into it, so reconciliation has a single input shape
// instead of defensive field-by-field reads.
type Notification struct {
	ResponseCode    string          `json:"ResponseCode"`
	Description     string          `json:"Description,omitempty"`
	LowProfileID    string          `json:"LowProfileId"`
	Email           string          `json:"Email,omitempty"`
	TranzactionID   string          `json:"TranzactionId,omitempty"`
	ReturnValue     string          `json:"ReturnValue,omitempty"`
	TokenInfo       TokenInfo       `json:"TokenInfo"`
	TranzactionInfo TranzactionInfo `json:"TranzactionInfo"`
}

// Success reports whether the notification carries a successful outcome
func (n *Notification) Success() bool {
	return IsSuccessCode(n.ResponseCode)
}

// ParseNotification decodes and validates a verbatim gateway payload.
// Malformed payloads are rejected before any state is touched.
func ParseNotification(raw []byte) (*Notification, error) {
	if len(raw) == 0 {
		return nil, apperrors.Validation("Empty notification payload")
	}

	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, apperrors.Validation("Notification payload is not valid JSON")
	}
	if n.ResponseCode == "" {
		return nil, apperrors.Validation("Notification is missing a response code")
	}
	if n.LowProfileID == "" {
		return nil, apperrors.Validation("Notification is missing the correlation id")
	}
	return &n, nil
}

// NotificationFromLookup synthesizes a notification from a direct gateway
// result lookup, so the recovery path applies exactly the same effect as a
// native callback carrying the same gateway response.
func NotificationFromLookup(correlationID string, result *ResultLookupResponse) *Notification {
	return &Notification{
		ResponseCode:    result.ResponseCode,
		LowProfileID:    correlationID,
		ReturnValue:     result.ReturnValue,
		TokenInfo:       result.TokenInfo,
		TranzactionInfo: result.TranzactionInfo,
	}
}

// parseTokenExpiry decodes the gateway's MMYY token expiry into the last day
// coverage is plausible for, or nil when absent/garbled.
func parseTokenExpiry(exDate string) *time.Time {
	if len(exDate) != 4 {
		return nil
	}
	t, err := time.Parse("0106", exDate)
	if err != nil {
		return nil
	}
	// end of the expiry month
	end := t.AddDate(0, 1, 0).Add(-time.Second)
	return &end
}
