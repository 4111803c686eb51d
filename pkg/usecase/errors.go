package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// ErrThreadInterrupted is returned by Run when the latest checkpoint of the thread
	// is mid-turn. The turn has to be resumed or the thread ended first.
	ErrThreadInterrupted = errors.New("thread has an unfinished turn")

	// ErrEmptyQuestion is returned for a blank question
	ErrEmptyQuestion = errors.New("question is empty")
)

// Context keys for error values
const (
	StateKey = "state"
	StepKey  = "step"
)
