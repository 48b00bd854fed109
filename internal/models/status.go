package models

import "strings"

// Status is the lifecycle state of a donation.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus accepts the canonical names plus common processor spellings.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processing", "pending":
		return StatusProcessing, true
	case "succeeded", "successful", "success", "completed":
		return StatusSucceeded, true
	case "failed", "failure":
		return StatusFailed, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	}
	return "", false
}

// Valid reports whether s is one of the four stored statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusSucceeded
}

// CanTransition reports whether a stored donation in state from may be
// overwritten with to. Nothing leaves succeeded; re-applying the same
// status is always allowed.
func CanTransition(from, to Status) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return !from.Terminal()
}
