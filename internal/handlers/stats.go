package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"donation-api/internal/repository"
	"donation-api/internal/stats"
)

const recentDonationsLimit = 10

// StatsStore is the read side of the donation store.
type StatsStore interface {
	SucceededAmounts(ctx context.Context) ([]repository.SucceededAmount, error)
	Recent(ctx context.Context, limit int) ([]repository.RecentDonation, error)
}

type StatsHandler struct {
	Store StatsStore
	now   func() time.Time
}

func NewStatsHandler(store StatsStore) *StatsHandler {
	return &StatsHandler{Store: store, now: time.Now}
}

// GetStats always answers 200. A failing query is logged and its part of the
// summary falls back to the base values.
func (h *StatsHandler) GetStats(c *gin.Context) {
	var (
		amounts []repository.SucceededAmount
		recent  []repository.RecentDonation
		failed  bool
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		amounts, err = h.Store.SucceededAmounts(c.Request.Context())
		if err != nil {
			log.Println("[stats] succeeded amounts:", err)
			amounts = nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = h.Store.Recent(c.Request.Context(), recentDonationsLimit)
		if err != nil {
			log.Println("[stats] recent donations:", err)
			recent = nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		failed = true
	}

	summary := stats.Summarize(amounts, recent, h.now())
	if failed {
		summary.Error = "Some statistics are temporarily unavailable"
	}
	c.JSON(http.StatusOK, summary)
}
