package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"donation-api/internal/apperr"
	"donation-api/internal/models"
	"donation-api/internal/payments"
	"donation-api/internal/reconcile"
)

// Reconciler is the reconciliation entry point.
type Reconciler interface {
	Reconcile(ctx context.Context, ev reconcile.Event) (*reconcile.Result, error)
}

// Confirmation is what the browser reports after the payment widget closes.
type Confirmation struct {
	Provider      string
	Status        string
	Message       string
	TxRef         string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	Donor         reconcile.Donor
}

// Result is the final state of a confirmation attempt.
type Result struct {
	State    State
	Outcome  Outcome
	Message  string
	Recorded bool
	Donation *models.Donation
}

type statusSource struct {
	fetcher payments.StatusFetcher
	byTxRef bool
}

// Confirmer runs the client confirmation path. Providers with a registered
// StatusFetcher are re-read and the processor's answer wins. Flutterwave
// confirmations are recorded as provisional processing rows until a webhook
// or verification confirms them.
type Confirmer struct {
	reconciler Reconciler
	sources    map[string]statusSource
}

func NewConfirmer(reconciler Reconciler) *Confirmer {
	return &Confirmer{reconciler: reconciler, sources: map[string]statusSource{}}
}

// Register installs a status source. byTxRef selects lookup by tx_ref
// instead of the processor's transaction id.
func (c *Confirmer) Register(provider string, fetcher payments.StatusFetcher, byTxRef bool) {
	c.sources[provider] = statusSource{fetcher: fetcher, byTxRef: byTxRef}
}

func (c *Confirmer) Confirm(ctx context.Context, conf Confirmation) (*Result, error) {
	conf.Provider = strings.ToLower(strings.TrimSpace(conf.Provider))
	if conf.Provider == "" {
		return nil, fmt.Errorf("provider required: %w", apperr.ErrValidation)
	}

	session := NewSession()
	if err := session.Begin(); err != nil {
		return nil, err
	}

	ev, raw, message, err := c.observe(ctx, conf)
	if err != nil {
		return nil, err
	}

	outcome := Classify(raw)
	state, err := session.Resolve(outcome, message)
	if err != nil {
		return nil, err
	}
	res := &Result{State: state, Outcome: outcome, Message: session.Message()}

	if !outcome.Persist() {
		log.Printf("[checkout] %s confirmation %s/%s ended %s, nothing recorded", conf.Provider, conf.TxRef, conf.TransactionID, outcome)
		return res, nil
	}

	ev.Status = outcome.Status()
	rec, err := c.reconciler.Reconcile(ctx, ev)
	if err != nil {
		return nil, err
	}
	res.Recorded = true
	res.Donation = rec.Donation
	return res, nil
}

// observe returns the event to record, the status word to classify and the
// failure message to surface.
func (c *Confirmer) observe(ctx context.Context, conf Confirmation) (reconcile.Event, string, string, error) {
	src, ok := c.sources[conf.Provider]
	if !ok && conf.Provider != payments.ProviderFlutterwave {
		return reconcile.Event{}, "", "", fmt.Errorf("unknown provider %q: %w", conf.Provider, apperr.ErrValidation)
	}
	if !ok {
		ev := reconcile.Event{
			Provider:      conf.Provider,
			TxRef:         strings.TrimSpace(conf.TxRef),
			Amount:        conf.Amount,
			Currency:      conf.Currency,
			PaymentMethod: conf.PaymentMethod,
			Donor:         conf.Donor,
			Source:        reconcile.SourceClient,
		}
		if ev.TxRef == "" {
			return ev, "", "", fmt.Errorf("tx_ref required: %w", apperr.ErrValidation)
		}
		raw := conf.Status
		// An unverified success is held at processing until the
		// processor confirms it.
		if Classify(raw) == OutcomeSucceeded {
			raw = string(OutcomeProcessing)
		}
		return ev, raw, conf.Message, nil
	}

	id := conf.TransactionID
	if src.byTxRef {
		id = conf.TxRef
	}
	if strings.TrimSpace(id) == "" {
		return reconcile.Event{}, "", "", fmt.Errorf("%s confirmation needs a payment id: %w", conf.Provider, apperr.ErrValidation)
	}

	dismissed := Classify(conf.Status) == OutcomeCancelled
	p, err := src.fetcher.FetchStatus(ctx, id)
	if err != nil {
		if dismissed && errors.Is(err, payments.ErrUnknownPayment) {
			log.Printf("[checkout] %s %s closed before a payment existed", conf.Provider, id)
			return reconcile.Event{}, string(OutcomeCancelled), "", nil
		}
		return reconcile.Event{}, "", "", err
	}
	if conf.TxRef != "" && p.TxRef != "" && p.TxRef != conf.TxRef {
		log.Printf("[checkout] tx_ref mismatch for %s %s: claimed %q, processor has %q", conf.Provider, id, conf.TxRef, p.TxRef)
		return reconcile.Event{}, "", "", fmt.Errorf("transaction reference mismatch: %w", apperr.ErrConflict)
	}
	if p.TxRef == "" {
		p.TxRef = conf.TxRef
	}
	if p.Donor.Name == "" {
		p.Donor.Name = conf.Donor.Name
	}
	if p.Donor.Email == "" {
		p.Donor.Email = conf.Donor.Email
	}
	if p.Donor.Phone == "" {
		p.Donor.Phone = conf.Donor.Phone
	}

	raw := p.RawStatus
	// A widget closed with nothing charged and no decline is a cancellation,
	// not a failure.
	if dismissed && p.Message == "" && p.Status != models.StatusSucceeded && p.Status != models.StatusProcessing {
		raw = string(OutcomeCancelled)
	}

	message := p.Message
	if message == "" {
		message = conf.Message
	}
	return p.Event(reconcile.SourceClient), raw, message, nil
}
