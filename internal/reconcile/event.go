package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"donation-api/internal/apperr"
	"donation-api/internal/models"
)

// Source names the trigger that produced an event.
type Source string

const (
	SourceClient       Source = "client"
	SourceWebhook      Source = "webhook"
	SourceVerification Source = "verification"
)

// Donor holds the optional, best-effort donor details.
type Donor struct {
	Name  string
	Email string
	Phone string
}

// Event is a payment status observation from any trigger source.
type Event struct {
	Provider      string
	Status        models.Status
	TransactionID string
	TxRef         string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	Donor         Donor
	// Metadata carries provider correlation fields (flw_ref,
	// stripe_payment_intent, ...). It is merged over the stored metadata.
	Metadata models.Metadata
	Source   Source
}

func (ev Event) validate() error {
	if !ev.Status.Valid() {
		return fmt.Errorf("status %q: %w", ev.Status, apperr.ErrValidation)
	}
	if strings.TrimSpace(ev.TransactionID) == "" && strings.TrimSpace(ev.TxRef) == "" {
		return fmt.Errorf("transaction_id or tx_ref required: %w", apperr.ErrValidation)
	}
	if ev.Amount.IsNegative() {
		return fmt.Errorf("amount %s: %w", ev.Amount, apperr.ErrValidation)
	}
	if ev.Provider == "" {
		return fmt.Errorf("provider required: %w", apperr.ErrValidation)
	}
	return nil
}

// Outcome is what reconciliation did to the donation record.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Result is the donation as stored after reconciliation.
type Result struct {
	Donation *models.Donation
	Outcome  Outcome
}
