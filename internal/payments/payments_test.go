package payments

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donation-api/internal/apperr"
	"donation-api/internal/models"
	"donation-api/internal/reconcile"
)

func TestNewTxRef(t *testing.T) {
	a, b := NewTxRef(), NewTxRef()
	assert.True(t, strings.HasPrefix(a, "nr_"))
	assert.NotEqual(t, a, b)
}

func TestIntentRequestValidate(t *testing.T) {
	req := IntentRequest{Amount: decimal.NewFromInt(25), Currency: " kes "}
	require.NoError(t, req.Validate())
	assert.Equal(t, "KES", req.Currency)
	assert.True(t, strings.HasPrefix(req.TxRef, "nr_"))
	assert.Equal(t, DefaultCampaignTag, req.Campaign)

	kept := IntentRequest{Amount: decimal.NewFromInt(1), Currency: "usd", TxRef: "nr_1"}
	require.NoError(t, kept.Validate())
	assert.Equal(t, "nr_1", kept.TxRef)

	for _, bad := range []IntentRequest{
		{Amount: decimal.Zero, Currency: "USD"},
		{Amount: decimal.NewFromInt(-5), Currency: "USD"},
		{Amount: decimal.NewFromInt(5), Currency: "JPY"},
	} {
		err := bad.Validate()
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", bad)
	}
}

func TestIntentRequestMetadata(t *testing.T) {
	req := IntentRequest{
		TxRef:     "nr_1",
		Campaign:  "youth",
		Tier:      "Supporter",
		Recurring: true,
		Donor:     reconcile.Donor{Name: "Ada", Email: "ada@example.org"},
	}
	md := req.metadata()
	assert.Equal(t, "nr_1", md["tx_ref"])
	assert.Equal(t, "true", md["recurring"])
	assert.Equal(t, "website", md["source"])
	assert.Equal(t, "Donation - Supporter", req.description())
	assert.Equal(t, "Donation - General Donation", IntentRequest{}.description())
}

func TestPaymentEvent(t *testing.T) {
	p := &Payment{
		Provider:      ProviderFlutterwave,
		TransactionID: "42",
		TxRef:         "nr_2",
		Status:        models.StatusSucceeded,
		Amount:        decimal.NewFromInt(10),
		Currency:      "KES",
	}
	ev := p.Event(reconcile.SourceVerification)
	assert.Equal(t, reconcile.SourceVerification, ev.Source)
	assert.Equal(t, "42", ev.TransactionID)
	assert.Equal(t, "nr_2", ev.TxRef)
}

func TestProcessorMessage(t *testing.T) {
	assert.Equal(t, "Your card was declined.", ProcessorMessage(processorErr(ProviderStripe, "Your card was declined.")))
	assert.Equal(t, "plain", ProcessorMessage(fmt.Errorf("plain")))
	assert.Equal(t, "", ProcessorMessage(nil))
}
