package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"donation-api/internal/apperr"
	"donation-api/internal/currency"
	"donation-api/internal/models"
	"donation-api/internal/reconcile"
)

// Stripe handles card payments through PaymentIntents and hosted Checkout.
type Stripe struct {
	client        *stripe.Client
	webhookSecret string
	appURL        string
}

// NewStripe builds the adapter. An empty secret key leaves it unconfigured;
// intent calls then fail with ErrNotConfigured.
func NewStripe(secretKey, webhookSecret, appURL string) *Stripe {
	s := &Stripe{webhookSecret: webhookSecret, appURL: strings.TrimRight(appURL, "/")}
	if secretKey != "" {
		s.client = stripe.NewClient(secretKey)
	}
	return s
}

func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if s.client == nil {
		return nil, notConfigured(ProviderStripe, "secret key")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(currency.MinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(req.description()),
		Metadata:    req.metadata(),
	}
	if req.Donor.Email != "" {
		params.ReceiptEmail = stripe.String(req.Donor.Email)
	}

	pi, err := s.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		log.Printf("[stripe] create payment intent: %v", err)
		return nil, stripeErr(err)
	}
	log.Printf("[stripe] payment intent created: %s (tx_ref %s)", pi.ID, req.TxRef)

	return &Intent{
		Provider:        ProviderStripe,
		TxRef:           req.TxRef,
		Amount:          req.Amount,
		Currency:        req.Currency,
		ClientSecret:    pi.ClientSecret,
		PaymentIntentID: pi.ID,
	}, nil
}

// CreateCheckoutSession starts a hosted Checkout redirect. The tx_ref travels
// as the session's client reference and in the PaymentIntent metadata, so
// both checkout.session.* and payment_intent.* events correlate.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, req IntentRequest) (*Intent, error) {
	if s.client == nil {
		return nil, notConfigured(ProviderStripe, "secret key")
	}
	if s.appURL == "" {
		return nil, notConfigured(ProviderStripe, "APP_URL")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	metadata := req.metadata()
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SubmitType:        stripe.String("donate"),
		ClientReferenceID: stripe.String(req.TxRef),
		SuccessURL:        stripe.String(s.appURL + "/donate/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.appURL + "/donate"),
		Metadata:          metadata,
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(req.description()),
					},
					UnitAmount: stripe.Int64(currency.MinorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Description: stripe.String(req.description()),
			Metadata:    metadata,
		},
	}
	if req.Donor.Email != "" {
		params.CustomerEmail = stripe.String(req.Donor.Email)
	}

	cs, err := s.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		log.Printf("[stripe] create checkout session: %v", err)
		return nil, stripeErr(err)
	}

	return &Intent{
		Provider:    ProviderStripe,
		TxRef:       req.TxRef,
		Amount:      req.Amount,
		Currency:    req.Currency,
		SessionID:   cs.ID,
		RedirectURL: cs.URL,
	}, nil
}

// FetchStatus re-reads a PaymentIntent; its status is authoritative over
// whatever the browser reported.
func (s *Stripe) FetchStatus(ctx context.Context, paymentIntentID string) (*Payment, error) {
	if s.client == nil {
		return nil, notConfigured(ProviderStripe, "secret key")
	}
	if paymentIntentID == "" {
		return nil, fmt.Errorf("payment_intent_id required: %w", apperr.ErrValidation)
	}
	pi, err := s.client.V1PaymentIntents.Retrieve(ctx, paymentIntentID, nil)
	if err != nil {
		return nil, stripeErr(err)
	}
	return paymentFromIntent(pi), nil
}

// VerifySignature checks the Stripe-Signature header against the endpoint secret.
func (s *Stripe) VerifySignature(header http.Header, body []byte) error {
	if s.webhookSecret == "" {
		return notConfigured(ProviderStripe, "webhook secret")
	}
	sig := header.Get("Stripe-Signature")
	if sig == "" {
		return fmt.Errorf("missing Stripe-Signature: %w", apperr.ErrUnauthorized)
	}
	if err := webhook.ValidatePayload(body, sig, s.webhookSecret); err != nil {
		return fmt.Errorf("stripe signature: %v: %w", err, apperr.ErrUnauthorized)
	}
	return nil
}

func (s *Stripe) Identify(body []byte) (string, string, error) {
	var ev stripe.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", "", fmt.Errorf("decode stripe event: %v: %w", err, apperr.ErrValidation)
	}
	if ev.ID == "" || ev.Type == "" {
		return "", "", fmt.Errorf("stripe event without id or type: %w", apperr.ErrValidation)
	}
	return ev.ID, string(ev.Type), nil
}

var stripeEventStatus = map[stripe.EventType]models.Status{
	"payment_intent.succeeded":      models.StatusSucceeded,
	"payment_intent.processing":     models.StatusProcessing,
	"payment_intent.payment_failed": models.StatusFailed,
	"payment_intent.canceled":       models.StatusCancelled,
}

func (s *Stripe) ParseWebhook(ctx context.Context, body []byte) (*reconcile.Event, error) {
	var ev stripe.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode stripe event: %v: %w", err, apperr.ErrValidation)
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("stripe event %s has no data: %w", ev.ID, apperr.ErrValidation)
	}

	if status, ok := stripeEventStatus[ev.Type]; ok {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %v: %w", err, apperr.ErrValidation)
		}
		p := paymentFromIntent(&pi)
		p.Status = status
		e := p.Event(reconcile.SourceWebhook)
		return &e, nil
	}

	if ev.Type == "checkout.session.completed" {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %v: %w", err, apperr.ErrValidation)
		}
		e := eventFromSession(&cs)
		return &e, nil
	}

	return nil, nil
}

func paymentFromIntent(pi *stripe.PaymentIntent) *Payment {
	p := &Payment{
		Provider:      ProviderStripe,
		TransactionID: pi.ID,
		TxRef:         pi.Metadata["tx_ref"],
		RawStatus:     string(pi.Status),
		Status:        stripeStatus(pi.Status),
		Amount:        decimal.New(pi.Amount, -2),
		Currency:      strings.ToUpper(string(pi.Currency)),
		PaymentMethod: "card",
		Donor: reconcile.Donor{
			Name:  pi.Metadata["donor_name"],
			Email: pi.Metadata["donor_email"],
		},
		Metadata: models.Metadata{"stripe_payment_intent": pi.ID},
	}
	if p.Donor.Email == "" {
		p.Donor.Email = pi.ReceiptEmail
	}
	if len(pi.PaymentMethodTypes) == 1 {
		p.PaymentMethod = pi.PaymentMethodTypes[0]
	}
	for _, k := range []string{"campaign", "tier", "recurring", "source"} {
		if v := pi.Metadata[k]; v != "" {
			p.Metadata[k] = v
		}
	}
	if pi.LastPaymentError != nil {
		p.Message = pi.LastPaymentError.Msg
		p.Metadata["failure_reason"] = pi.LastPaymentError.Msg
	}
	return p
}

func eventFromSession(cs *stripe.CheckoutSession) reconcile.Event {
	ev := reconcile.Event{
		Provider:      ProviderStripe,
		Status:        models.StatusProcessing,
		TxRef:         cs.ClientReferenceID,
		Amount:        decimal.New(cs.AmountTotal, -2),
		Currency:      strings.ToUpper(string(cs.Currency)),
		PaymentMethod: "card",
		Metadata:      models.Metadata{"stripe_checkout_session": cs.ID},
		Source:        reconcile.SourceWebhook,
	}
	if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		ev.Status = models.StatusSucceeded
	}
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		ev.TransactionID = cs.PaymentIntent.ID
		ev.Metadata["stripe_payment_intent"] = cs.PaymentIntent.ID
	}
	if ev.TxRef == "" {
		ev.TxRef = cs.Metadata["tx_ref"]
	}
	if cs.CustomerDetails != nil {
		ev.Donor = reconcile.Donor{
			Name:  cs.CustomerDetails.Name,
			Email: cs.CustomerDetails.Email,
			Phone: cs.CustomerDetails.Phone,
		}
	}
	if ev.Donor.Name == "" {
		ev.Donor.Name = cs.Metadata["donor_name"]
	}
	return ev
}

func stripeStatus(s stripe.PaymentIntentStatus) models.Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return models.StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return models.StatusCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return models.StatusFailed
	default:
		return models.StatusProcessing
	}
}

func stripeErr(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Msg != "" {
		return processorErr(ProviderStripe, serr.Msg)
	}
	return processorErr(ProviderStripe, err.Error())
}
