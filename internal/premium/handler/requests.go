package handler

import (
	"strings"

	"github.com/google/uuid"

	"premiumblocker/internal/premium/engine"
	"premiumblocker/pkg/platform/httputil"
)

const maxUsernameLength = 64

// ResolveRequest is the HTTP request body for POST /v1/connections/resolve.
type ResolveRequest struct {
	Username      string `json:"username"`
	RemoteAddress string `json:"remote_address"`
	Stage         string `json:"stage"`
	AssignedID    string `json:"assigned_id,omitempty"`

	// Parsed values (populated by Validate)
	parsedStage      engine.Stage
	parsedAssignedID *uuid.UUID
}

// Validate validates and parses the request. The username is kept byte-exact
// because the offline identity depends on it.
func (r *ResolveRequest) Validate() error {
	if r == nil {
		return httputil.NewError(httputil.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Username) == "" {
		return httputil.NewError(httputil.CodeValidation, "username is required")
	}
	if len(r.Username) > maxUsernameLength {
		return httputil.NewError(httputil.CodeValidation, "username must be at most 64 bytes")
	}

	if r.Stage == "" {
		r.Stage = string(engine.StagePreAuth)
	}
	stage, err := engine.ParseStage(r.Stage)
	if err != nil {
		return httputil.NewError(httputil.CodeValidation, "stage must be pre_auth or post_auth")
	}
	r.parsedStage = stage

	if r.AssignedID != "" {
		if stage != engine.StagePostAuth {
			return httputil.NewError(httputil.CodeValidation, "assigned_id is only valid at post_auth")
		}
		id, err := uuid.Parse(r.AssignedID)
		if err != nil {
			return httputil.NewError(httputil.CodeValidation, "assigned_id must be a UUID")
		}
		r.parsedAssignedID = &id
	}
	return nil
}

// Attempt converts the validated request to the engine's input.
func (r *ResolveRequest) Attempt() engine.ConnectionAttempt {
	return engine.ConnectionAttempt{
		Username:      r.Username,
		RemoteAddress: r.RemoteAddress,
		Stage:         r.parsedStage,
		AssignedID:    r.parsedAssignedID,
	}
}
