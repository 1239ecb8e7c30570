package services

import (
	"testing"
	"time"

	"traderoom_app_echo/internal/apperrors"
)

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid success payload",
			raw:  `{"ResponseCode": "000", "LowProfileId": "cid-123", "ReturnValue": "ref-456"}`,
		},
		{
			name: "valid failure payload",
			raw:  `{"ResponseCode": "701", "Description": "Declined", "LowProfileId": "cid-123"}`,
		},
		{
			name:    "empty payload",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     "ResponseCode=000&LowProfileId=cid-123",
			wantErr: true,
		},
		{
			name:    "missing response code",
			raw:     `{"LowProfileId": "cid-123"}`,
			wantErr: true,
		},
		{
			name:    "missing correlation id",
			raw:     `{"ResponseCode": "000"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNotification([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected a validation error")
				}
				if got := apperrors.CodeOf(err); got != apperrors.CodeValidation {
					t.Errorf("error code = %q; want %q", got, apperrors.CodeValidation)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNotification returned error: %v", err)
			}
			if n.LowProfileID != "cid-123" {
				t.Errorf("LowProfileID = %q; want %q", n.LowProfileID, "cid-123")
			}
		})
	}
}

func TestNotificationSuccess(t *testing.T) {
	success := &Notification{ResponseCode: "000"}
	if !success.Success() {
		t.Error("code 000 should report success")
	}

	declined := &Notification{ResponseCode: "701"}
	if declined.Success() {
		t.Error("code 701 should not report success")
	}
}

func TestNotificationFromLookup(t *testing.T) {
	result := &ResultLookupResponse{
		ResponseCode: "000",
		ReturnValue:  "ref-456",
		TokenInfo:    TokenInfo{Token: "tok_abc", TokenExDate: "0128"},
		TranzactionInfo: TranzactionInfo{
			Last4CardDigits: "4242",
			Amount:          1490,
		},
	}

	n := NotificationFromLookup("cid-123", result)

	if n.LowProfileID != "cid-123" {
		t.Errorf("LowProfileID = %q; want %q", n.LowProfileID, "cid-123")
	}
	if !n.Success() {
		t.Error("lookup-sourced notification should carry the success outcome")
	}
	if n.TokenInfo.Token != "tok_abc" {
		t.Errorf("token = %q; want %q", n.TokenInfo.Token, "tok_abc")
	}
	if n.TranzactionInfo.Amount != 1490 {
		t.Errorf("amount = %v; want %v", n.TranzactionInfo.Amount, 1490.0)
	}
}

func TestParseTokenExpiry(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
		month time.Month
		year  int
	}{
		{name: "january 2026", input: "0126", valid: true, month: time.January, year: 2026},
		{name: "december 2028", input: "1228", valid: true, month: time.December, year: 2028},
		{name: "empty", input: "", valid: false},
		{name: "too short", input: "126", valid: false},
		{name: "not numeric", input: "abcd", valid: false},
		{name: "month out of range", input: "1326", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTokenExpiry(tt.input)
			if !tt.valid {
				if got != nil {
					t.Errorf("parseTokenExpiry(%q) = %v; want nil", tt.input, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("parseTokenExpiry(%q) = nil; want a time", tt.input)
			}
			if got.Month() != tt.month || got.Year() != tt.year {
				t.Errorf("parseTokenExpiry(%q) = %v; want end of %v %d", tt.input, got, tt.month, tt.year)
			}
		})
	}
}
