package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"donation-api/internal/checkout"
	"donation-api/internal/payments"
	"donation-api/internal/reconcile"
)

// Confirmer runs the client confirmation path.
type Confirmer interface {
	Confirm(ctx context.Context, conf checkout.Confirmation) (*checkout.Result, error)
}

// PaymentVerifier pulls a transaction from the processor and checks it
// against the tx_ref the browser holds.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, transactionID, txRef string) (*payments.Payment, error)
}

type DonationHandler struct {
	Confirmer  Confirmer
	Verifier   PaymentVerifier
	Reconciler checkout.Reconciler
}

func NewDonationHandler(confirmer Confirmer, verifier PaymentVerifier, reconciler checkout.Reconciler) *DonationHandler {
	return &DonationHandler{Confirmer: confirmer, Verifier: verifier, Reconciler: reconciler}
}

type ConfirmRequest struct {
	Provider      string           `json:"provider" binding:"required"`
	Status        string           `json:"status" binding:"required"`
	Message       string           `json:"message"`
	TxRef         string           `json:"tx_ref"`
	TransactionID string           `json:"transaction_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	PaymentMethod string           `json:"payment_method"`
	Metadata      DonationMetadata `json:"metadata"`
}

// Confirm records what the browser saw when the payment widget closed.
func (h *DonationHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.Confirmer.Confirm(c.Request.Context(), checkout.Confirmation{
		Provider:      req.Provider,
		Status:        req.Status,
		Message:       req.Message,
		TxRef:         req.TxRef,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Donor: reconcile.Donor{
			Name:  req.Metadata.DonorName,
			Email: req.Metadata.DonorEmail,
			Phone: req.Metadata.DonorPhone,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	switch res.Outcome {
	case checkout.OutcomeFailed:
		msg := res.Message
		if msg == "" {
			msg = "Payment failed"
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg, "state": res.State})
		return
	case checkout.OutcomeCancelled, checkout.OutcomeRequiresAction:
		c.JSON(http.StatusOK, gin.H{"recorded": false, "state": res.State, "outcome": res.Outcome})
		return
	}

	body := gin.H{"recorded": res.Recorded, "state": res.State, "outcome": res.Outcome}
	if res.Donation != nil {
		body["donation_id"] = res.Donation.ID
		body["status"] = res.Donation.Status
	}
	c.JSON(http.StatusOK, body)
}

type VerifyRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	TxRef         string `json:"tx_ref" binding:"required"`
}

// VerifyFlutterwave confirms a Flutterwave payment by asking Flutterwave
// directly, then records it.
func (h *DonationHandler) VerifyFlutterwave(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.Verifier.VerifyPayment(c.Request.Context(), req.TransactionID, req.TxRef)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.Reconciler.Reconcile(c.Request.Context(), p.Event(reconcile.SourceVerification))
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Payment verified and recorded"
	if res.Outcome == reconcile.OutcomeUnchanged {
		message = "Payment already processed"
	}
	log.Printf("[verify] flutterwave %s (%s): %s", p.TransactionID, p.TxRef, res.Outcome)

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        message,
		"donation_id":    res.Donation.ID,
		"transaction_id": p.TransactionID,
		"amount":         p.Amount,
		"currency":       p.Currency,
	})
}
