package breakout

import (
	"net/url"
	"testing"
)

func TestMatchesSuccessMarker(t *testing.T) {
	tests := []struct {
		name     string
		rawURL   string
		expected bool
	}{
		{
			name:     "step completion param",
			rawURL:   "https://app.example/anywhere?step=completion",
			expected: true,
		},
		{
			name:     "success true param",
			rawURL:   "https://app.example/anywhere?success=true",
			expected: true,
		},
		{
			name:     "completion path",
			rawURL:   "https://app.example/payment/complete",
			expected: true,
		},
		{
			name:     "failure step takes precedence over completion path",
			rawURL:   "https://app.example/payment/complete?step=failure",
			expected: false,
		},
		{
			name:     "success false takes precedence",
			rawURL:   "https://app.example/payment/complete?success=false",
			expected: false,
		},
		{
			name:     "gateway form url",
			rawURL:   "https://secure.cardgw.example/form/abc",
			expected: false,
		},
		{
			name:     "empty url",
			rawURL:   "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MatchesSuccessMarker(tt.rawURL)
			if result != tt.expected {
				t.Errorf("MatchesSuccessMarker(%q) = %v; want %v", tt.rawURL, result, tt.expected)
			}
		})
	}
}

func TestBuildCompletionURLRoundTrip(t *testing.T) {
	built := BuildCompletionURL("https://app.example/", true, CompletionParams{
		CorrelationID:  "cid-123",
		RegistrationID: "reg-9",
		Plan:           "annual",
	})

	if !MatchesSuccessMarker(built) {
		t.Errorf("built success URL %q does not match its own success markers", built)
	}

	parsed, err := url.Parse(built)
	if err != nil {
		t.Fatalf("built URL does not parse: %v", err)
	}
	if parsed.Path != CompletionPath {
		t.Errorf("path = %q; want %q", parsed.Path, CompletionPath)
	}
	if !ConfirmCompletionQuery(parsed.Query()) {
		t.Error("built success URL fails the completion query contract")
	}

	q := parsed.Query()
	if q.Get(ParamCorrelationID) != "cid-123" {
		t.Errorf("correlationId = %q; want %q", q.Get(ParamCorrelationID), "cid-123")
	}
	if q.Get(ParamForceTop) != "1" {
		t.Errorf("force_top = %q; want %q", q.Get(ParamForceTop), "1")
	}
	if q.Get(ParamPlan) != "annual" {
		t.Errorf("plan = %q; want %q", q.Get(ParamPlan), "annual")
	}
}

func TestBuildCompletionURLFailure(t *testing.T) {
	built := BuildCompletionURL("https://app.example", false, CompletionParams{CorrelationID: "cid-123"})

	if MatchesSuccessMarker(built) {
		t.Errorf("failure URL %q matched a success marker", built)
	}
	if !MatchesErrorMarker(built) {
		t.Errorf("failure URL %q did not match an error marker", built)
	}

	parsed, err := url.Parse(built)
	if err != nil {
		t.Fatalf("built URL does not parse: %v", err)
	}
	if ConfirmCompletionQuery(parsed.Query()) {
		t.Error("failure URL passed the completion query contract")
	}
}

func TestConfirmCompletionQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected bool
	}{
		{name: "both markers", query: "step=completion&success=true", expected: true},
		{name: "step only", query: "step=completion", expected: false},
		{name: "success only", query: "success=true", expected: false},
		{name: "failure step", query: "step=failure&success=true", expected: false},
		{name: "empty", query: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("bad test query: %v", err)
			}
			result := ConfirmCompletionQuery(values)
			if result != tt.expected {
				t.Errorf("ConfirmCompletionQuery(%q) = %v; want %v", tt.query, result, tt.expected)
			}
		})
	}
}
