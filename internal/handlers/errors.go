package handlers

//go:generate mockgen -destination=mocks_test.go -package=handlers donation-api/internal/handlers SessionCreator,Confirmer,PaymentVerifier,WebhookProcessor,StatsStore,UserStore
//go:generate mockgen -destination=mock_payments_test.go -package=handlers donation-api/internal/payments Initiator,SignatureVerifier
//go:generate mockgen -destination=mock_checkout_test.go -package=handlers donation-api/internal/checkout Reconciler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"donation-api/internal/apperr"
	"donation-api/internal/payments"
)

// respondError writes err as {"error": msg} with the status its kind maps to.
// Internal failures are logged and answered with a generic message.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	switch {
	case errors.Is(err, apperr.ErrNotConfigured):
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "Payment system not configured"
	case errors.Is(err, apperr.ErrProcessor):
		msg = payments.ProcessorMessage(err)
	case status == http.StatusInternalServerError:
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "Server error."
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
}
