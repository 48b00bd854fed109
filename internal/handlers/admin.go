package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"donation-api/internal/models"
	"donation-api/internal/repository"
)

type DonationLister interface {
	List(ctx context.Context, f repository.DonationFilter) ([]models.Donation, int, error)
}

type AuditLister interface {
	List(ctx context.Context, processed *bool, limit int) ([]models.WebhookEvent, error)
}

// AdminHandler serves the back office: donations, the webhook audit log and
// manual replay of deliveries left unprocessed.
type AdminHandler struct {
	Donations DonationLister
	Webhooks  AuditLister
	Processor WebhookProcessor
}

func NewAdminHandler(donations DonationLister, webhooks AuditLister, processor WebhookProcessor) *AdminHandler {
	return &AdminHandler{Donations: donations, Webhooks: webhooks, Processor: processor}
}

func (h *AdminHandler) ListDonations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var status string
	if raw := c.Query("status"); raw != "" {
		parsed, ok := models.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status " + raw})
			return
		}
		status = string(parsed)
	}

	donations, total, err := h.Donations.List(c.Request.Context(), repository.DonationFilter{
		Status:   status,
		Provider: c.Query("provider"),
		Currency: c.Query("currency"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"donations": donations,
		"total":     total,
		"page":      page,
	})
}

func (h *AdminHandler) ListWebhooks(c *gin.Context) {
	var processed *bool
	if raw := c.Query("processed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "processed must be true or false"})
			return
		}
		processed = &v
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := h.Webhooks.List(c.Request.Context(), processed, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []models.WebhookEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": events})
}

// Replay re-runs a stored delivery through reconciliation.
func (h *AdminHandler) Replay(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook id"})
		return
	}

	res, err := h.Processor.Replay(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{"webhook_id": res.WebhookID, "status": res.Status}
	if res.Result != nil && res.Result.Donation != nil {
		body["donation_id"] = res.Result.Donation.ID
		body["outcome"] = res.Result.Outcome
	}
	c.JSON(http.StatusOK, body)
}
