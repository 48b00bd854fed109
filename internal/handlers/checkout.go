package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"donation-api/internal/apperr"
	"donation-api/internal/currency"
	"donation-api/internal/payments"
	"donation-api/internal/reconcile"
)

// SessionCreator starts a hosted redirect checkout.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error)
}

type CheckoutHandler struct {
	Providers map[string]payments.Initiator
	Sessions  SessionCreator
}

func NewCheckoutHandler(providers map[string]payments.Initiator, sessions SessionCreator) *CheckoutHandler {
	return &CheckoutHandler{Providers: providers, Sessions: sessions}
}

type QuoteRequest struct {
	TierAmount   decimal.Decimal `json:"tier_amount"`
	CustomAmount string          `json:"custom_amount"`
	Currency     string          `json:"currency"`
}

// Quote resolves the amount to charge in the donor's currency.
func (h *CheckoutHandler) Quote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	code := currency.Normalize(req.Currency)
	if !currency.Supported(code) {
		respondError(c, fmt.Errorf("unsupported currency %q: %w", code, apperr.ErrValidation))
		return
	}

	amount := currency.Resolve(req.TierAmount, req.CustomAmount, code)
	c.JSON(http.StatusOK, gin.H{
		"amount":         amount,
		"currency":       code,
		"display":        currency.Format(amount, code),
		"usd_equivalent": currency.ToUSD(amount, code).Round(2),
	})
}

// Options tells the page which currency and providers to offer a country.
func (h *CheckoutHandler) Options(c *gin.Context) {
	country := c.Query("country")
	available := []string{}
	for _, p := range currency.PreferredProviders(country) {
		if _, ok := h.Providers[p]; ok {
			available = append(available, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"country":   strings.ToUpper(country),
		"currency":  currency.CurrencyForCountry(country),
		"providers": available,
	})
}

type DonationMetadata struct {
	Campaign   string `json:"campaign"`
	DonorName  string `json:"donor_name"`
	DonorEmail string `json:"donor_email"`
	DonorPhone string `json:"donor_phone"`
	Tier       string `json:"tier"`
	Recurring  bool   `json:"recurring"`
}

type CreateIntentRequest struct {
	Provider string           `json:"provider"`
	Amount   decimal.Decimal  `json:"amount"`
	Currency string           `json:"currency" binding:"required"`
	TxRef    string           `json:"tx_ref"`
	Metadata DonationMetadata `json:"metadata"`
}

func (r CreateIntentRequest) intentRequest() payments.IntentRequest {
	return payments.IntentRequest{
		Amount:    r.Amount,
		Currency:  r.Currency,
		TxRef:     r.TxRef,
		Tier:      r.Metadata.Tier,
		Campaign:  r.Metadata.Campaign,
		Recurring: r.Metadata.Recurring,
		Donor: reconcile.Donor{
			Name:  r.Metadata.DonorName,
			Email: r.Metadata.DonorEmail,
			Phone: r.Metadata.DonorPhone,
		},
	}
}

// CreateIntent starts a pending charge with the chosen processor.
func (h *CheckoutHandler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = payments.ProviderStripe
	}
	initiator, ok := h.Providers[provider]
	if !ok {
		respondError(c, fmt.Errorf("unknown provider %q: %w", provider, apperr.ErrValidation))
		return
	}

	intent, err := initiator.CreateIntent(c.Request.Context(), req.intentRequest())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

// CreateCheckoutSession starts a hosted redirect checkout.
func (h *CheckoutHandler) CreateCheckoutSession(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if h.Sessions == nil {
		respondError(c, fmt.Errorf("checkout sessions: %w", apperr.ErrNotConfigured))
		return
	}

	intent, err := h.Sessions.CreateCheckoutSession(c.Request.Context(), req.intentRequest())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}
