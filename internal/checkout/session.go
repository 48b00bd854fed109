package checkout

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"donation-api/internal/models"
)

// State is where a donor's checkout attempt stands.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Outcome classifies what the processor reported for a confirmation.
type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeProcessing     Outcome = "processing"
	OutcomeRequiresAction Outcome = "requires_action"
	OutcomeFailed         Outcome = "failed"
	OutcomeCancelled      Outcome = "cancelled"
)

// Classify maps a processor's status word onto an Outcome. Unknown words
// count as failures so nothing unrecognised is ever persisted as paid.
func Classify(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded", "successful", "success", "completed", "settlement", "capture":
		return OutcomeSucceeded
	case "processing", "pending":
		return OutcomeProcessing
	case "requires_action", "requires_confirmation", "requires_capture":
		return OutcomeRequiresAction
	case "cancelled", "canceled", "cancel", "closed":
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// Persist reports whether the outcome produces a donation record.
func (o Outcome) Persist() bool {
	return o == OutcomeSucceeded || o == OutcomeProcessing
}

// Status is the donation status recorded for a persisted outcome.
func (o Outcome) Status() models.Status {
	if o == OutcomeSucceeded {
		return models.StatusSucceeded
	}
	return models.StatusProcessing
}

var ErrInvalidTransition = errors.New("invalid checkout transition")

// Session tracks one confirmation attempt. It is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	state   State
	message string
}

func NewSession() *Session {
	return &Session{state: StateIdle}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Message is the processor's failure message, if any.
func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Begin moves idle to processing while the processor confirms.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("begin from %s: %w", s.state, ErrInvalidTransition)
	}
	s.state = StateProcessing
	return nil
}

// Resolve applies the processor's outcome. requires_action and processing
// keep the session in processing; the other outcomes are final.
func (s *Session) Resolve(o Outcome, message string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateProcessing {
		return s.state, fmt.Errorf("resolve %s from %s: %w", o, s.state, ErrInvalidTransition)
	}
	switch o {
	case OutcomeSucceeded:
		s.state = StateSucceeded
	case OutcomeFailed:
		s.state = StateFailed
		s.message = message
	case OutcomeCancelled:
		s.state = StateCancelled
	case OutcomeProcessing, OutcomeRequiresAction:
	default:
		return s.state, fmt.Errorf("unknown outcome %q: %w", o, ErrInvalidTransition)
	}
	return s.state, nil
}

// Reset returns a failed or cancelled session to idle so the donor can try
// again with a new intent. A succeeded session cannot be reset.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSucceeded || s.state == StateProcessing {
		return fmt.Errorf("reset from %s: %w", s.state, ErrInvalidTransition)
	}
	s.state, s.message = StateIdle, ""
	return nil
}
