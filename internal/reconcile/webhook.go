package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"donation-api/internal/apperr"
	"donation-api/internal/models"
)

// Parser turns one provider's webhook body into an Event. ParseWebhook
// returns a nil Event for event types that need no reconciliation.
type Parser interface {
	Identify(body []byte) (eventID, eventType string, err error)
	ParseWebhook(ctx context.Context, body []byte) (*Event, error)
}

// AuditLog is the append-only store of raw deliveries.
type AuditLog interface {
	Record(ctx context.Context, ev *models.WebhookEvent) error
	HasProcessed(ctx context.Context, provider, eventID string, excludeID int64) (bool, error)
	MarkProcessed(ctx context.Context, id int64, donationID *int64, note string) error
	MarkFailed(ctx context.Context, id int64, processingErr error) error
	Get(ctx context.Context, id int64) (*models.WebhookEvent, error)
}

// Archiver copies raw payloads to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, provider, deliveryID string, body []byte) error
}

// Delivery outcomes reported by Handle and Replay.
const (
	DeliveryProcessed = "processed"
	DeliveryIgnored   = "ignored"
	DeliveryDuplicate = "duplicate"
)

type HandleResult struct {
	WebhookID int64
	EventID   string
	EventType string
	Status    string
	Result    *Result
}

// Processor runs webhook deliveries through the audit log and the
// reconciliation service.
type Processor struct {
	service  *Service
	audit    AuditLog
	archiver Archiver

	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewProcessor builds a processor. archiver may be nil.
func NewProcessor(service *Service, audit AuditLog, archiver Archiver) *Processor {
	return &Processor{
		service:  service,
		audit:    audit,
		archiver: archiver,
		parsers:  make(map[string]Parser),
	}
}

// Register installs the parser for a provider.
func (p *Processor) Register(provider string, parser Parser) {
	p.mu.Lock()
	p.parsers[provider] = parser
	p.mu.Unlock()
}

func (p *Processor) parser(provider string) (Parser, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	parser, ok := p.parsers[provider]
	if !ok {
		return nil, fmt.Errorf("no webhook parser for %q: %w", provider, apperr.ErrNotConfigured)
	}
	return parser, nil
}

// Handle records an authenticated delivery and reconciles it. The raw body
// is stored before any processing; a delivery whose processing fails stays
// unprocessed so the processor's redelivery or a manual replay can finish it.
func (p *Processor) Handle(ctx context.Context, provider string, body []byte) (*HandleResult, error) {
	parser, err := p.parser(provider)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("webhook body is not JSON: %w", apperr.ErrValidation)
	}
	eventID, eventType, err := parser.Identify(body)
	if err != nil {
		return nil, err
	}

	rec := &models.WebhookEvent{
		Provider:   provider,
		EventType:  eventType,
		EventID:    eventID,
		DeliveryID: uuid.NewString(),
		Payload:    string(body),
	}
	if err := p.audit.Record(ctx, rec); err != nil {
		return nil, err
	}
	log.Printf("[webhook] stored %s %s (%s) as delivery %d", provider, eventType, eventID, rec.ID)

	if p.archiver != nil {
		if err := p.archiver.Archive(ctx, provider, rec.DeliveryID, body); err != nil {
			log.Printf("[webhook] archive delivery %d failed: %v", rec.ID, err)
		}
	}

	return p.process(ctx, parser, rec, body)
}

// Replay re-runs a stored delivery that was left unprocessed.
func (p *Processor) Replay(ctx context.Context, webhookID int64) (*HandleResult, error) {
	rec, err := p.audit.Get(ctx, webhookID)
	if err != nil {
		return nil, err
	}
	if rec.Processed {
		return &HandleResult{WebhookID: rec.ID, EventID: rec.EventID, EventType: rec.EventType, Status: DeliveryDuplicate}, nil
	}
	parser, err := p.parser(rec.Provider)
	if err != nil {
		return nil, err
	}
	log.Printf("[webhook] replaying delivery %d (%s %s)", rec.ID, rec.Provider, rec.EventID)
	return p.process(ctx, parser, rec, []byte(rec.Payload))
}

func (p *Processor) process(ctx context.Context, parser Parser, rec *models.WebhookEvent, body []byte) (*HandleResult, error) {
	out := &HandleResult{WebhookID: rec.ID, EventID: rec.EventID, EventType: rec.EventType}

	done, err := p.audit.HasProcessed(ctx, rec.Provider, rec.EventID, rec.ID)
	if err != nil {
		p.markFailed(ctx, rec.ID, err)
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrPersistence)
	}
	if done {
		log.Printf("[webhook] %s event %s already processed, skipping delivery %d", rec.Provider, rec.EventID, rec.ID)
		p.markProcessed(ctx, rec.ID, nil, "duplicate delivery")
		out.Status = DeliveryDuplicate
		return out, nil
	}

	ev, err := parser.ParseWebhook(ctx, body)
	if err != nil {
		p.markFailed(ctx, rec.ID, err)
		return nil, err
	}
	if ev == nil {
		log.Printf("[webhook] unhandled %s event type: %s", rec.Provider, rec.EventType)
		p.markProcessed(ctx, rec.ID, nil, "ignored event type")
		out.Status = DeliveryIgnored
		return out, nil
	}
	ev.Source = SourceWebhook

	res, err := p.service.Reconcile(ctx, *ev)
	if err != nil {
		p.markFailed(ctx, rec.ID, err)
		return nil, err
	}

	p.markProcessed(ctx, rec.ID, &res.Donation.ID, "")
	out.Status = DeliveryProcessed
	out.Result = res
	return out, nil
}

func (p *Processor) markProcessed(ctx context.Context, id int64, donationID *int64, note string) {
	if err := p.audit.MarkProcessed(ctx, id, donationID, note); err != nil {
		log.Printf("[webhook] mark delivery %d processed: %v", id, err)
	}
}

func (p *Processor) markFailed(ctx context.Context, id int64, cause error) {
	if errors.Is(cause, context.Canceled) {
		cause = fmt.Errorf("request cancelled: %w", cause)
	}
	if err := p.audit.MarkFailed(ctx, id, cause); err != nil {
		log.Printf("[webhook] mark delivery %d failed: %v", id, err)
	}
}
