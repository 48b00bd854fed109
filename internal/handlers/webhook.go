package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"donation-api/internal/apperr"
	"donation-api/internal/payments"
	"donation-api/internal/reconcile"
)

const maxWebhookBody = 1 << 20

// WebhookProcessor records and reconciles raw webhook deliveries.
type WebhookProcessor interface {
	Handle(ctx context.Context, provider string, body []byte) (*reconcile.HandleResult, error)
	Replay(ctx context.Context, webhookID int64) (*reconcile.HandleResult, error)
}

type WebhookHandler struct {
	Processor WebhookProcessor
	Verifiers map[string]payments.SignatureVerifier
}

func NewWebhookHandler(processor WebhookProcessor, verifiers map[string]payments.SignatureVerifier) *WebhookHandler {
	return &WebhookHandler{Processor: processor, Verifiers: verifiers}
}

// Receive authenticates a provider's delivery and hands it to the processor.
// Deliveries failing the signature check are rejected before anything is
// stored.
func (h *WebhookHandler) Receive(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read request body"})
			return
		}

		verifier, ok := h.Verifiers[provider]
		if !ok {
			respondError(c, fmt.Errorf("%s webhooks: %w", provider, apperr.ErrNotConfigured))
			return
		}
		if err := verifier.VerifySignature(c.Request.Header, body); err != nil {
			log.Printf("[webhook] %s delivery rejected: %v", provider, err)
			respondError(c, err)
			return
		}

		res, err := h.Processor.Handle(c.Request.Context(), provider, body)
		if err != nil {
			log.Printf("[webhook] %s delivery failed: %v", provider, err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"received": true,
			"status":   res.Status,
			"event_id": res.EventID,
		})
	}
}
