package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// Stage is the connection lifecycle point the attempt was observed at.
type Stage string

const (
	// StagePreAuth is before the proxy authenticates; no identifier yet.
	StagePreAuth Stage = "pre_auth"
	// StagePostAuth carries the identifier the proxy assigned.
	StagePostAuth Stage = "post_auth"
)

// ParseStage validates a wire stage name.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StagePreAuth, StagePostAuth:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("unknown stage %q", s)
	}
}

// ConnectionAttempt is built by the hosting proxy per connection event.
type ConnectionAttempt struct {
	Username      string
	RemoteAddress string
	Stage         Stage
	AssignedID    *uuid.UUID
}

// Source names the signal that decided an outcome.
type Source string

const (
	SourceDisabled  Source = "disabled"
	SourceCache     Source = "cache"
	SourceHeuristic Source = "heuristic"
	SourceAPI       Source = "api"
	SourceFailOpen  Source = "fail_open"
)

// Outcome is the premium determination for one attempt.
type Outcome struct {
	Premium bool
	Source  Source
}

type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Verdict is returned to the hosting proxy. Message is the raw kick message
// template and is only set on deny.
type Verdict struct {
	Action  Action
	Message string
	Outcome Outcome
}

func (v Verdict) Denied() bool {
	return v.Action == ActionDeny
}
