package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donation-api/internal/apperr"
	"donation-api/internal/models"
	"donation-api/internal/repository"
)

// fakeParser understands {"id": "...", "type": "...", "status": "...", "tx": "...", "ref": "..."}.
type fakeParser struct {
	parseErr error
}

type fakePayload struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Tx     string `json:"tx"`
	Ref    string `json:"ref"`
}

func (p *fakeParser) Identify(body []byte) (string, string, error) {
	var fp fakePayload
	if err := json.Unmarshal(body, &fp); err != nil {
		return "", "", fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}
	if fp.ID == "" {
		return "", "", fmt.Errorf("missing id: %w", apperr.ErrValidation)
	}
	return fp.ID, fp.Type, nil
}

func (p *fakeParser) ParseWebhook(ctx context.Context, body []byte) (*Event, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	var fp fakePayload
	if err := json.Unmarshal(body, &fp); err != nil {
		return nil, err
	}
	if fp.Type != "charge.completed" {
		return nil, nil
	}
	status, ok := models.ParseStatus(fp.Status)
	if !ok {
		return nil, fmt.Errorf("status %q: %w", fp.Status, apperr.ErrValidation)
	}
	return &Event{
		Provider:      "fake",
		Status:        status,
		TransactionID: fp.Tx,
		TxRef:         fp.Ref,
		Amount:        decimal.NewFromInt(10),
		Currency:      "USD",
	}, nil
}

type archiveStub struct {
	bodies map[string][]byte
	err    error
}

func (a *archiveStub) Archive(ctx context.Context, provider, deliveryID string, body []byte) error {
	if a.err != nil {
		return a.err
	}
	a.bodies[provider+"/"+deliveryID] = body
	return nil
}

type processorFixture struct {
	proc      *Processor
	parser    *fakeParser
	webhooks  *repository.WebhookRepo
	donations *repository.DonationRepo
	archive   *archiveStub
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	db := newTestDB(t)
	donations := repository.NewDonationRepo(db)
	webhooks := repository.NewWebhookRepo(db)
	svc := NewService(donations, repository.NewCampaignRepo(db), "General Fund", nil)

	archive := &archiveStub{bodies: map[string][]byte{}}
	parser := &fakeParser{}
	proc := NewProcessor(svc, webhooks, archive)
	proc.Register("fake", parser)
	return &processorFixture{proc: proc, parser: parser, webhooks: webhooks, donations: donations, archive: archive}
}

const completedBody = `{"id":"evt_1","type":"charge.completed","status":"successful","tx":"T1","ref":"nr_1"}`

func TestProcessor_HandleRecordsAndReconciles(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	out, err := f.proc.Handle(ctx, "fake", []byte(completedBody))
	require.NoError(t, err)
	assert.Equal(t, DeliveryProcessed, out.Status)
	assert.Equal(t, "evt_1", out.EventID)
	require.NotNil(t, out.Result)
	assert.Equal(t, OutcomeCreated, out.Result.Outcome)
	assert.Equal(t, true, out.Result.Donation.Metadata["webhook_processed"])

	stored, err := f.webhooks.Get(ctx, out.WebhookID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	require.NotNil(t, stored.DonationID)
	assert.Equal(t, out.Result.Donation.ID, *stored.DonationID)
	assert.JSONEq(t, completedBody, stored.Payload)

	assert.Len(t, f.archive.bodies, 1)
	assert.Equal(t, []byte(completedBody), f.archive.bodies["fake/"+stored.DeliveryID])
}

func TestProcessor_DuplicateDeliveryIsRecordedButSkipped(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	_, err := f.proc.Handle(ctx, "fake", []byte(completedBody))
	require.NoError(t, err)
	out, err := f.proc.Handle(ctx, "fake", []byte(completedBody))
	require.NoError(t, err)
	assert.Equal(t, DeliveryDuplicate, out.Status)

	all, err := f.webhooks.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, w := range all {
		assert.True(t, w.Processed)
	}

	_, total, err := f.donations.List(ctx, repository.DonationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestProcessor_IgnoredEventType(t *testing.T) {
	f := newProcessorFixture(t)

	out, err := f.proc.Handle(context.Background(), "fake", []byte(`{"id":"evt_2","type":"customer.created"}`))
	require.NoError(t, err)
	assert.Equal(t, DeliveryIgnored, out.Status)
	assert.Nil(t, out.Result)

	stored, err := f.webhooks.Get(context.Background(), out.WebhookID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Equal(t, "ignored event type", stored.ProcessingError)
}

func TestProcessor_MalformedBodyRecordsNothing(t *testing.T) {
	f := newProcessorFixture(t)

	for _, body := range []string{`not json`, `{"type":"charge.completed"}`} {
		_, err := f.proc.Handle(context.Background(), "fake", []byte(body))
		assert.ErrorIs(t, err, apperr.ErrValidation, body)
	}

	all, err := f.webhooks.List(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestProcessor_UnknownProvider(t *testing.T) {
	f := newProcessorFixture(t)
	_, err := f.proc.Handle(context.Background(), "paypal", []byte(completedBody))
	assert.ErrorIs(t, err, apperr.ErrNotConfigured)
}

func TestProcessor_FailureLeavesDeliveryForReplay(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	f.parser.parseErr = errors.New("verify call timed out")
	_, err := f.proc.Handle(ctx, "fake", []byte(completedBody))
	require.Error(t, err)

	processed := false
	pending, err := f.webhooks.List(ctx, &processed, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "verify call timed out", pending[0].ProcessingError)

	f.parser.parseErr = nil
	out, err := f.proc.Replay(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryProcessed, out.Status)

	d, err := f.donations.GetByTransactionID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSucceeded, d.Status)

	again, err := f.proc.Replay(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryDuplicate, again.Status)
}

func TestProcessor_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newProcessorFixture(t)
	f.archive.err = errors.New("bucket unavailable")

	out, err := f.proc.Handle(context.Background(), "fake", []byte(completedBody))
	require.NoError(t, err)
	assert.Equal(t, DeliveryProcessed, out.Status)
}

func TestProcessor_ReplayUnknownDelivery(t *testing.T) {
	f := newProcessorFixture(t)
	_, err := f.proc.Replay(context.Background(), 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
