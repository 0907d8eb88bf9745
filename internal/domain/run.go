package domain

import (
	"fmt"
	"time"
)

// Stage names a pipeline stage driven by the orchestrator.
type Stage string

const (
	StageDecode  Stage = "decode"
	StageAnalyze Stage = "analyze"
)

// ParseStage validates a stage name coming from a request path or flag.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageDecode, StageAnalyze:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("%w: unknown stage %q", ErrValidation, s)
	}
}

// RunState is the orchestrator state machine: Idle -> Running -> {Completed, Aborted}.
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
	RunFailed    RunState = "failed"
)

// EventType discriminates streamed run events.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventAborted  EventType = "aborted"
	EventError    EventType = "error"
)

// Terminal reports whether no further events follow.
func (t EventType) Terminal() bool {
	return t != EventProgress
}

// Event is one record of the ordered per-run event stream.
type Event struct {
	Type      EventType `json:"type"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	ArticleID string    `json:"articleId,omitempty"`
	ItemError string    `json:"itemError,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// ItemOutcome is the terminal per-item result of a stage operation.
type ItemOutcome struct {
	Success bool
	Cached  bool
	Error   string
}

// RunSummary is handed to observers once a run reaches a terminal state.
type RunSummary struct {
	RunID      string
	OwnerID    string
	Stage      Stage
	State      RunState
	Succeeded  int
	Failed     int
	Total      int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// BatchResult is the non-streaming response of an analyze run.
type BatchResult struct {
	Analyzed  int      `json:"analyzed"`
	Failed    int      `json:"failed"`
	Remaining int      `json:"remaining"`
	Errors    []string `json:"errors"`
}

// IngestResult summarizes one ingestion pass.
type IngestResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}
