package payments

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"donation-api/internal/apperr"
	"donation-api/internal/currency"
	"donation-api/internal/models"
	"donation-api/internal/reconcile"
)

const midtransCurrency = "IDR"

type snapCreator interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type statusChecker interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// Midtrans is the redirect checkout: Snap creates the payment page and the
// Core API is the authority on a transaction's status.
type Midtrans struct {
	serverKey string
	snap      snapCreator
	core      statusChecker
}

func NewMidtrans(serverKey string, production bool) *Midtrans {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	m := &Midtrans{serverKey: serverKey}
	if serverKey == "" {
		return m
	}

	var s snap.Client
	s.New(serverKey, env)

	var c coreapi.Client
	c.New(serverKey, env)

	m.snap, m.core = &s, &c
	return m
}

// CreateIntent opens a Snap transaction whose order id is the tx_ref.
func (m *Midtrans) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if m.snap == nil {
		return nil, notConfigured(ProviderMidtrans, "server key")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	donorName := req.Donor.Name
	if donorName == "" {
		donorName = "Anonymous"
	}
	// Snap charges whole rupiah whatever currency the donor picked.
	gross := currency.Convert(req.Amount, req.Currency, midtransCurrency).Round(0)
	if !gross.IsPositive() {
		return nil, fmt.Errorf("amount %s %s is below one rupiah: %w", req.Amount, req.Currency, apperr.ErrValidation)
	}
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.TxRef,
			GrossAmt: gross.IntPart(),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: donorName,
			Email: req.Donor.Email,
			Phone: req.Donor.Phone,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    "DONATION",
				Price: gross.IntPart(),
				Qty:   1,
				Name:  req.description(),
			},
		},
		CustomField1: req.Campaign,
		CustomField2: req.Tier,
		CustomField3: originalCharge(req.Amount, req.Currency),
	}

	snapResp, merr := m.snap.CreateTransaction(snapReq)
	if snapResp == nil {
		log.Printf("[midtrans] create transaction %s: %v", req.TxRef, merr)
		return nil, midtransErr(merr)
	}
	if merr != nil {
		log.Printf("[midtrans] transaction %s created with error: %v", req.TxRef, merr)
	}

	return &Intent{
		Provider:    ProviderMidtrans,
		TxRef:       req.TxRef,
		Amount:      gross,
		Currency:    midtransCurrency,
		Token:       snapResp.Token,
		RedirectURL: snapResp.RedirectURL,
		Config: map[string]any{
			"original_amount":   req.Amount,
			"original_currency": currency.Normalize(req.Currency),
		},
	}, nil
}

func originalCharge(amount decimal.Decimal, code string) string {
	return currency.Normalize(code) + " " + amount.StringFixed(2)
}

// FetchStatus asks the Core API for an order's current status.
func (m *Midtrans) FetchStatus(ctx context.Context, orderID string) (*Payment, error) {
	if m.core == nil {
		return nil, notConfigured(ProviderMidtrans, "server key")
	}
	if orderID == "" {
		return nil, fmt.Errorf("order id required: %w", apperr.ErrValidation)
	}
	resp, merr := m.core.CheckTransaction(orderID)
	if resp == nil {
		return nil, midtransErr(merr)
	}
	if merr != nil {
		log.Printf("[midtrans] check %s returned a response and an error: %v", orderID, merr)
	}
	return paymentFromMidtrans(resp), nil
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// VerifySignature checks signature_key = sha512(order_id + status_code +
// gross_amount + server_key). Midtrans signs in the body, not a header.
func (m *Midtrans) VerifySignature(header http.Header, body []byte) error {
	if m.serverKey == "" {
		return notConfigured(ProviderMidtrans, "server key")
	}
	var n midtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("decode midtrans notification: %v: %w", err, apperr.ErrValidation)
	}
	if n.SignatureKey == "" {
		return fmt.Errorf("missing signature_key: %w", apperr.ErrUnauthorized)
	}
	want := MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, m.serverKey)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(n.SignatureKey)), []byte(want)) != 1 {
		return fmt.Errorf("invalid signature_key: %w", apperr.ErrUnauthorized)
	}
	return nil
}

// MidtransSignature computes the notification signature.
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (m *Midtrans) Identify(body []byte) (string, string, error) {
	var n midtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return "", "", fmt.Errorf("decode midtrans notification: %v: %w", err, apperr.ErrValidation)
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return "", "", fmt.Errorf("midtrans notification without order_id or status: %w", apperr.ErrValidation)
	}
	id := n.TransactionID
	if id == "" {
		id = n.OrderID
	}
	return id + ":" + n.TransactionStatus, n.TransactionStatus, nil
}

// ParseWebhook trusts only the Core API: the notification body just names
// the order to re-check.
func (m *Midtrans) ParseWebhook(ctx context.Context, body []byte) (*reconcile.Event, error) {
	var n midtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode midtrans notification: %v: %w", err, apperr.ErrValidation)
	}
	p, err := m.FetchStatus(ctx, n.OrderID)
	if err != nil {
		return nil, err
	}
	if !p.Status.Valid() {
		return nil, nil
	}
	ev := p.Event(reconcile.SourceWebhook)
	return &ev, nil
}

func paymentFromMidtrans(resp *coreapi.TransactionStatusResponse) *Payment {
	amount, err := decimal.NewFromString(resp.GrossAmount)
	if err != nil {
		amount = decimal.Zero
	}
	cur := strings.ToUpper(resp.Currency)
	if cur == "" {
		cur = midtransCurrency
	}
	p := &Payment{
		Provider:      ProviderMidtrans,
		TransactionID: resp.TransactionID,
		TxRef:         resp.OrderID,
		RawStatus:     resp.TransactionStatus,
		Status:        midtransStatus(resp.TransactionStatus, resp.FraudStatus),
		Amount:        amount,
		Currency:      cur,
		PaymentMethod: resp.PaymentType,
		Metadata: models.Metadata{
			"midtrans_order_id": resp.OrderID,
			"midtrans_status":   resp.TransactionStatus,
		},
	}
	if resp.CustomField3 != "" {
		p.Metadata["original_charge"] = resp.CustomField3
	}
	if p.Status == models.StatusFailed {
		p.Message = resp.StatusMessage
	}
	return p
}

// midtransStatus maps Midtrans transaction_status values. Statuses with no
// donation meaning (refund, authorize) map to "".
func midtransStatus(status, fraud string) models.Status {
	switch status {
	case "settlement":
		return models.StatusSucceeded
	case "capture":
		if fraud == "challenge" {
			return models.StatusProcessing
		}
		return models.StatusSucceeded
	case "pending":
		return models.StatusProcessing
	case "deny", "expire", "failure":
		return models.StatusFailed
	case "cancel":
		return models.StatusCancelled
	}
	return ""
}

func midtransErr(merr *midtrans.Error) error {
	if merr == nil {
		return processorErr(ProviderMidtrans, "empty response")
	}
	if merr.StatusCode == http.StatusNotFound {
		return unknownPaymentErr(ProviderMidtrans, merr.Message)
	}
	return processorErr(ProviderMidtrans, merr.Message)
}
