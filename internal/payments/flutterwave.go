package payments

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"donation-api/internal/apperr"
	"donation-api/internal/models"
	"donation-api/internal/reconcile"
)

const (
	DefaultFlutterwaveURL = "https://api.flutterwave.com"

	flutterwavePaymentOptions = "card,mobilemoney,ussd,banktransfer"
)

// Flutterwave handles mobile-money and card payments for African corridors.
// Intents are inline-checkout configs; confirmation is pull-based via Verify.
type Flutterwave struct {
	publicKey     string
	secretKey     string
	webhookSecret string
	baseURL       string
	http          *http.Client
	now           func() time.Time
}

func NewFlutterwave(publicKey, secretKey, webhookSecret, baseURL string, client *http.Client) *Flutterwave {
	if baseURL == "" {
		baseURL = DefaultFlutterwaveURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Flutterwave{
		publicKey:     publicKey,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          client,
		now:           time.Now,
	}
}

// CreateIntent returns the inline checkout configuration; no remote call is
// made until the donor pays in the widget.
func (f *Flutterwave) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if f.publicKey == "" {
		return nil, notConfigured(ProviderFlutterwave, "public key")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return &Intent{
		Provider: ProviderFlutterwave,
		TxRef:    req.TxRef,
		Amount:   req.Amount,
		Currency: req.Currency,
		Config: map[string]any{
			"public_key":      f.publicKey,
			"tx_ref":          req.TxRef,
			"amount":          req.Amount,
			"currency":        req.Currency,
			"payment_options": flutterwavePaymentOptions,
			"customer": map[string]string{
				"email":        req.Donor.Email,
				"name":         req.Donor.Name,
				"phone_number": req.Donor.Phone,
			},
			"customizations": map[string]string{
				"title":       "Donation",
				"description": req.description(),
			},
			"meta": map[string]string{
				"campaign":  req.Campaign,
				"tier":      req.Tier,
				"recurring": fmt.Sprintf("%t", req.Recurring),
			},
		},
	}, nil
}

type flwCustomer struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

type flwTransaction struct {
	ID                json.Number     `json:"id"`
	TxRef             string          `json:"tx_ref"`
	FlwRef            string          `json:"flw_ref"`
	Amount            decimal.Decimal `json:"amount"`
	ChargedAmount     decimal.Decimal `json:"charged_amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	PaymentType       string          `json:"payment_type"`
	ProcessorResponse string          `json:"processor_response"`
	AppFee            any             `json:"app_fee"`
	MerchantFee       any             `json:"merchant_fee"`
	AuthModel         string          `json:"auth_model"`
	Narration         string          `json:"narration"`
	IP                string          `json:"ip"`
	DeviceFingerprint string          `json:"device_fingerprint"`
	Customer          *flwCustomer    `json:"customer"`
}

type flwEnvelope struct {
	Event     string          `json:"event"`
	EventType string          `json:"event.type"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Data      *flwTransaction `json:"data"`
}

// Verify fetches a transaction by its Flutterwave id.
func (f *Flutterwave) Verify(ctx context.Context, transactionID string) (*Payment, error) {
	if f.secretKey == "" {
		return nil, notConfigured(ProviderFlutterwave, "secret key")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("transaction_id required: %w", apperr.ErrValidation)
	}

	endpoint := f.baseURL + "/v3/transactions/" + url.PathEscape(transactionID) + "/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, processorErr(ProviderFlutterwave, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, processorErr(ProviderFlutterwave, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[flutterwave] verify %s: HTTP %d: %s", transactionID, resp.StatusCode, body)
		var env flwEnvelope
		if json.Unmarshal(body, &env) == nil && env.Message != "" {
			return nil, processorErr(ProviderFlutterwave, env.Message)
		}
		return nil, processorErr(ProviderFlutterwave, fmt.Sprintf("verify returned HTTP %d", resp.StatusCode))
	}

	var env flwEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, processorErr(ProviderFlutterwave, "malformed verify response")
	}
	if env.Data == nil {
		return nil, processorErr(ProviderFlutterwave, "verify response has no data")
	}
	return paymentFromFlw(env.Data), nil
}

// VerifyPayment runs the pull-based confirmation: the transaction must have
// succeeded and carry the tx_ref the browser claims.
func (f *Flutterwave) VerifyPayment(ctx context.Context, transactionID, txRef string) (*Payment, error) {
	p, err := f.Verify(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.StatusSucceeded {
		return p, fmt.Errorf("transaction %s was not successful (%s): %w", transactionID, p.RawStatus, apperr.ErrValidation)
	}
	if p.TxRef != strings.TrimSpace(txRef) {
		log.Printf("[flutterwave] tx_ref mismatch for %s: expected %q, received %q", transactionID, txRef, p.TxRef)
		return p, fmt.Errorf("transaction reference mismatch: %w", apperr.ErrConflict)
	}
	return p, nil
}

// VerifySignature compares the verif-hash header with the configured secret.
func (f *Flutterwave) VerifySignature(header http.Header, body []byte) error {
	if f.webhookSecret == "" {
		return notConfigured(ProviderFlutterwave, "webhook secret")
	}
	sig := header.Get("verif-hash")
	if sig == "" || subtle.ConstantTimeCompare([]byte(sig), []byte(f.webhookSecret)) != 1 {
		return fmt.Errorf("invalid verif-hash: %w", apperr.ErrUnauthorized)
	}
	return nil
}

func (f *Flutterwave) Identify(body []byte) (string, string, error) {
	var env flwEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", fmt.Errorf("decode flutterwave event: %v: %w", err, apperr.ErrValidation)
	}
	eventType := env.Event
	if eventType == "" {
		eventType = env.EventType
	}
	if eventType == "" {
		return "", "", fmt.Errorf("flutterwave event without type: %w", apperr.ErrValidation)
	}
	if env.Data != nil && env.Data.ID.String() != "" {
		return env.Data.ID.String(), eventType, nil
	}
	return fmt.Sprintf("flw_%d", f.now().UnixNano()), eventType, nil
}

func (f *Flutterwave) ParseWebhook(ctx context.Context, body []byte) (*reconcile.Event, error) {
	var env flwEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode flutterwave event: %v: %w", err, apperr.ErrValidation)
	}
	if env.Event != "charge.completed" {
		return nil, nil
	}
	if env.Data == nil {
		return nil, fmt.Errorf("charge.completed without data: %w", apperr.ErrValidation)
	}
	ev := paymentFromFlw(env.Data).Event(reconcile.SourceWebhook)
	return &ev, nil
}

func paymentFromFlw(tx *flwTransaction) *Payment {
	p := &Payment{
		Provider:      ProviderFlutterwave,
		TransactionID: tx.ID.String(),
		TxRef:         tx.TxRef,
		RawStatus:     tx.Status,
		Status:        models.StatusFailed,
		Amount:        tx.Amount,
		Currency:      strings.ToUpper(tx.Currency),
		PaymentMethod: tx.PaymentType,
		Message:       tx.ProcessorResponse,
		Metadata: models.Metadata{
			"flw_ref":            tx.FlwRef,
			"processor_response": tx.ProcessorResponse,
		},
	}
	if strings.EqualFold(tx.Status, "successful") {
		p.Status = models.StatusSucceeded
		p.Message = ""
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = "mobile_money"
	}
	if tx.Customer != nil {
		p.Donor = reconcile.Donor{Name: tx.Customer.Name, Email: tx.Customer.Email, Phone: tx.Customer.PhoneNumber}
	}
	extra := map[string]any{
		"charged_amount":     tx.ChargedAmount,
		"app_fee":            tx.AppFee,
		"merchant_fee":       tx.MerchantFee,
		"auth_model":         tx.AuthModel,
		"narration":          tx.Narration,
		"ip":                 tx.IP,
		"device_fingerprint": tx.DeviceFingerprint,
	}
	for k, v := range extra {
		switch v := v.(type) {
		case nil:
		case string:
			if v != "" {
				p.Metadata[k] = v
			}
		case decimal.Decimal:
			if !v.IsZero() {
				p.Metadata[k] = v.String()
			}
		default:
			p.Metadata[k] = v
		}
	}
	return p
}
