package reconcile

import (
	"context"
	"log"
	"strings"
	"time"

	"donation-api/internal/models"
	"donation-api/internal/repository"
)

// DonationStore performs the conditional upsert.
type DonationStore interface {
	Upsert(ctx context.Context, d *models.Donation) (*repository.UpsertResult, error)
}

// CampaignLookup resolves the campaign donations are attributed to.
type CampaignLookup interface {
	FindIDByName(ctx context.Context, name string) (string, error)
}

// Notifier is told about donations that just reached succeeded.
type Notifier interface {
	Publish(d models.Donation)
}

// Service is the single reconciliation entry point shared by the client
// confirmation, webhook and verification paths.
type Service struct {
	store    DonationStore
	campaign *Lazy[string]
	notifier Notifier
	now      func() time.Time
}

// NewService wires the store and the campaign lookup. notifier may be nil.
func NewService(store DonationStore, campaigns CampaignLookup, campaignName string, notifier Notifier) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.campaign = NewLazy(func(ctx context.Context) (string, error) {
		return campaigns.FindIDByName(ctx, campaignName)
	})
	return s
}

// Reconcile merges ev into the donation record for its transaction: it
// inserts when no record exists, updates a non-terminal record, and leaves a
// succeeded record untouched.
func (s *Service) Reconcile(ctx context.Context, ev Event) (*Result, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	d := &models.Donation{
		TransactionID:   strings.TrimSpace(ev.TransactionID),
		TxRef:           strings.TrimSpace(ev.TxRef),
		Amount:          ev.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(ev.Currency)),
		Status:          ev.Status,
		PaymentProvider: ev.Provider,
		PaymentMethod:   ev.PaymentMethod,
		DonorName:       strings.TrimSpace(ev.Donor.Name),
		DonorEmail:      strings.TrimSpace(ev.Donor.Email),
		DonorPhone:      strings.TrimSpace(ev.Donor.Phone),
		Metadata:        s.metadata(ev, now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if d.Currency == "" {
		d.Currency = "USD"
	}

	if id, err := s.campaign.Get(ctx); err != nil {
		log.Printf("[reconcile] campaign lookup failed, recording without campaign: %v", err)
	} else {
		d.CampaignID = &id
	}

	res, err := s.store.Upsert(ctx, d)
	if err != nil {
		log.Printf("[reconcile] %s %s tx=%s ref=%s: %v", ev.Source, ev.Provider, ev.TransactionID, ev.TxRef, err)
		return nil, err
	}

	outcome := OutcomeUpdated
	switch {
	case !res.Changed:
		outcome = OutcomeUnchanged
	case res.Created:
		outcome = OutcomeCreated
	}

	log.Printf("[reconcile] %s donation %d via %s/%s: incoming=%s stored=%s",
		outcome, res.Donation.ID, ev.Source, ev.Provider, ev.Status, res.Donation.Status)

	if res.Changed && res.Donation.Status == models.StatusSucceeded && s.notifier != nil {
		s.notifier.Publish(*res.Donation)
	}

	return &Result{Donation: res.Donation, Outcome: outcome}, nil
}

func (s *Service) metadata(ev Event, now time.Time) models.Metadata {
	m := models.Metadata{}
	for k, v := range ev.Metadata {
		m[k] = v
	}
	if ev.TxRef != "" {
		m["tx_ref"] = ev.TxRef
	}
	source := string(ev.Source)
	if source == "" {
		source = "unknown"
	}
	m[source+"_processed"] = true
	m[source+"_timestamp"] = now.Format(time.RFC3339)
	return m
}
