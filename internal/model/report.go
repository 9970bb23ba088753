package model

import "time"

// Report summarises one finished (or abandoned) reveal flow
type Report struct {
	FlowID     string        `json:"flow_id" yaml:"flow_id"`
	Token      ClaimToken    `json:"token,omitempty" yaml:"token,omitempty"`
	Identity   string        `json:"identity,omitempty" yaml:"identity,omitempty"`
	State      string        `json:"state" yaml:"state"`                     // Final orchestrator state
	Stage      string        `json:"stage" yaml:"stage"`                     // Final timeline stage
	Claim      ClaimResult   `json:"claim" yaml:"claim"`                     // Claim outcome as observed by the flow
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"` // Last error, if any
	ErrorKind  string        `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Frames     int           `json:"frames" yaml:"frames"` // Frames rendered during the flow
}

// Succeeded reports whether the flow ended with a confirmed claim
func (r *Report) Succeeded() bool {
	return r.Claim.IsConfirmed() && r.State == "done"
}
