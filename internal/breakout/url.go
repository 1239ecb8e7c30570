// Package breakout implements completion detection for the cross-origin
// hosted payment form. The gateway's frame cannot be controlled directly, so
// several redundant channels watch for completion and a single deduplicating
// dispatcher navigates the top-level page away from the frame.
package breakout

import (
	"net/url"
	"strings"
)

// CompletionPath is the fixed path of the canonical completion URL
const CompletionPath = "/payment/complete"

// Completion URL query parameters
const (
	ParamStep           = "step"
	ParamSuccess        = "success"
	ParamForceTop       = "force_top"
	ParamCorrelationID  = "correlationId"
	ParamRegistrationID = "registrationId"
	ParamPlan           = "plan"

	StepCompletion = "completion"
	StepFailure    = "failure"
)

// successMarkers is the fixed allow-list of substrings that identify a
// success navigation inside the hosted frame. Detection fires when the frame
// URL contains any of them.
var successMarkers = []string{
	"step=completion",
	"success=true",
	CompletionPath,
}

// errorMarkers identify a failed outcome navigation
var errorMarkers = []string{
	"step=failure",
	"success=false",
}

// MatchesSuccessMarker reports whether a frame URL carries a success marker.
// Error markers take precedence so a failure redirect that reuses the
// completion path does not read as success.
func MatchesSuccessMarker(rawURL string) bool {
	if rawURL == "" || MatchesErrorMarker(rawURL) {
		return false
	}
	for _, marker := range successMarkers {
		if strings.Contains(rawURL, marker) {
			return true
		}
	}
	return false
}

// MatchesErrorMarker reports whether a frame URL carries a failure marker
func MatchesErrorMarker(rawURL string) bool {
	for _, marker := range errorMarkers {
		if strings.Contains(rawURL, marker) {
			return true
		}
	}
	return false
}

// CompletionParams are the optional identifiers carried on the completion URL
type CompletionParams struct {
	CorrelationID  string
	RegistrationID string
	Plan           string
}

// BuildCompletionURL composes the canonical completion URL the breakout
// strategies navigate to.
func BuildCompletionURL(baseURL string, success bool, p CompletionParams) string {
	q := url.Values{}
	if success {
		q.Set(ParamStep, StepCompletion)
		q.Set(ParamSuccess, "true")
	} else {
		q.Set(ParamStep, StepFailure)
		q.Set(ParamSuccess, "false")
	}
	q.Set(ParamForceTop, "1")
	if p.CorrelationID != "" {
		q.Set(ParamCorrelationID, p.CorrelationID)
	}
	if p.RegistrationID != "" {
		q.Set(ParamRegistrationID, p.RegistrationID)
	}
	if p.Plan != "" {
		q.Set(ParamPlan, p.Plan)
	}
	return strings.TrimSuffix(baseURL, "/") + CompletionPath + "?" + q.Encode()
}

// ConfirmCompletionQuery checks a navigation's query parameters against the
// completion contract. Both markers must match exactly for the hosting page
// to finalize.
func ConfirmCompletionQuery(values url.Values) bool {
	return values.Get(ParamStep) == StepCompletion && values.Get(ParamSuccess) == "true"
}
