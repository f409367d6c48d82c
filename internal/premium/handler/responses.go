package handler

import "premiumblocker/internal/premium/engine"

// ResolveResponse is the HTTP response for POST /v1/connections/resolve.
type ResolveResponse struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Source  string `json:"source"`
}

// FromVerdict converts an engine verdict to an HTTP response.
func FromVerdict(v engine.Verdict) ResolveResponse {
	return ResolveResponse{
		Action:  string(v.Action),
		Message: v.Message,
		Source:  string(v.Outcome.Source),
	}
}
