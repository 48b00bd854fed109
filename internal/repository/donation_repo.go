package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"donation-api/internal/apperr"
	"donation-api/internal/models"
)

const donationColumns = `id, transaction_id, tx_ref, amount, currency, status,
	payment_provider, payment_method, donor_name, donor_email, donor_phone,
	campaign_id, metadata, revision, created_at, updated_at`

// donationRow mirrors the donations table; nullable keys stay nullable here.
type donationRow struct {
	ID              int64           `db:"id"`
	TransactionID   sql.NullString  `db:"transaction_id"`
	TxRef           sql.NullString  `db:"tx_ref"`
	Amount          decimal.Decimal `db:"amount"`
	Currency        string          `db:"currency"`
	Status          string          `db:"status"`
	PaymentProvider string          `db:"payment_provider"`
	PaymentMethod   string          `db:"payment_method"`
	DonorName       string          `db:"donor_name"`
	DonorEmail      string          `db:"donor_email"`
	DonorPhone      string          `db:"donor_phone"`
	CampaignID      sql.NullString  `db:"campaign_id"`
	Metadata        models.Metadata `db:"metadata"`
	Revision        int             `db:"revision"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r donationRow) toModel() *models.Donation {
	d := &models.Donation{
		ID:              r.ID,
		TransactionID:   r.TransactionID.String,
		TxRef:           r.TxRef.String,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Status:          models.Status(r.Status),
		PaymentProvider: r.PaymentProvider,
		PaymentMethod:   r.PaymentMethod,
		DonorName:       r.DonorName,
		DonorEmail:      r.DonorEmail,
		DonorPhone:      r.DonorPhone,
		Metadata:        r.Metadata,
		Revision:        r.Revision,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.CampaignID.Valid {
		id := r.CampaignID.String
		d.CampaignID = &id
	}
	if d.Metadata == nil {
		d.Metadata = models.Metadata{}
	}
	return d
}

func campaignID(id *string) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(*id)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// UpsertResult reports what a conditional upsert did.
type UpsertResult struct {
	Donation *models.Donation
	// Created is true when a new row was inserted.
	Created bool
	// Changed is false when the stored row was already succeeded and the
	// write was refused.
	Changed bool
}

type DonationRepo struct {
	db      *sqlx.DB
	dialect dialect
}

func NewDonationRepo(db *sqlx.DB) *DonationRepo {
	return &DonationRepo{db: db, dialect: dialectFor(db)}
}

// Upsert records d with a single conditional write keyed by the processor's
// transaction id, or by tx_ref while the processor id is still unknown.
// A row already in succeeded is never modified.
func (r *DonationRepo) Upsert(ctx context.Context, d *models.Donation) (*UpsertResult, error) {
	if d.TransactionID == "" && d.TxRef == "" {
		return nil, fmt.Errorf("transaction_id or tx_ref required: %w", apperr.ErrValidation)
	}

	res, err := r.upsertTx(ctx, d)
	if isUniqueViolation(err) {
		// A concurrent writer inserted the row between our adoption and
		// insert steps; the second pass lands on the existing row.
		log.Printf("[repository] retrying donation upsert after unique violation: %v", err)
		res, err = r.upsertTx(ctx, d)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert donation: %v: %w", err, apperr.ErrPersistence)
	}
	return res, nil
}

func (r *DonationRepo) upsertTx(ctx context.Context, d *models.Donation) (*UpsertResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	txRef := d.TxRef
	if d.TransactionID != "" && txRef != "" {
		// Adopt a provisional row created under tx_ref only.
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE donations SET transaction_id = ?
			WHERE tx_ref = ? AND transaction_id IS NULL
			  AND NOT EXISTS (SELECT 1 FROM donations WHERE transaction_id = ?)`),
			d.TransactionID, txRef, d.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("adopt provisional row: %w", err)
		}

		// Any other row still holding tx_ref keeps it: either another
		// transaction, or a provisional row left behind because the
		// transaction already had its own row.
		var owners int
		err = tx.GetContext(ctx, &owners, tx.Rebind(`
			SELECT COUNT(*) FROM donations
			WHERE tx_ref = ? AND (transaction_id IS NULL OR transaction_id <> ?)`),
			txRef, d.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("check tx_ref owner: %w", err)
		}
		if owners > 0 {
			log.Printf("[repository] tx_ref %s already belongs to another row; recording %s without it",
				txRef, d.TransactionID)
			txRef = ""
		}
	}

	conflictKey := "transaction_id"
	if d.TransactionID == "" {
		conflictKey = "tx_ref"
	}

	query := fmt.Sprintf(`
		INSERT INTO donations
			(transaction_id, tx_ref, amount, currency, status, payment_provider,
			 payment_method, donor_name, donor_email, donor_phone, campaign_id,
			 metadata, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, %s, 1, ?, ?)
		ON CONFLICT (%s) DO UPDATE SET
			status = excluded.status,
			transaction_id = COALESCE(donations.transaction_id, excluded.transaction_id),
			tx_ref = COALESCE(donations.tx_ref, excluded.tx_ref),
			payment_method = CASE WHEN donations.payment_method = '' THEN excluded.payment_method ELSE donations.payment_method END,
			donor_name = CASE WHEN donations.donor_name IN ('', 'Anonymous') THEN excluded.donor_name ELSE donations.donor_name END,
			donor_email = CASE WHEN donations.donor_email = '' THEN excluded.donor_email ELSE donations.donor_email END,
			donor_phone = CASE WHEN donations.donor_phone = '' THEN excluded.donor_phone ELSE donations.donor_phone END,
			campaign_id = COALESCE(donations.campaign_id, excluded.campaign_id),
			metadata = %s,
			revision = donations.revision + 1,
			updated_at = excluded.updated_at
		WHERE donations.status <> 'succeeded'
		RETURNING id, revision`,
		r.dialect.jsonParam, conflictKey,
		r.dialect.mergeJSON("donations.metadata", "excluded.metadata"))

	donorName := d.DonorName
	if donorName == "" {
		donorName = "Anonymous"
	}
	metadata, err := d.Metadata.Value()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	now := d.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var id int64
	var revision int
	err = tx.QueryRowxContext(ctx, tx.Rebind(query),
		nullString(d.TransactionID), nullString(txRef), d.Amount, strings.ToUpper(d.Currency),
		string(d.Status), d.PaymentProvider, d.PaymentMethod, donorName, d.DonorEmail,
		d.DonorPhone, campaignID(d.CampaignID), metadata, now, now,
	).Scan(&id, &revision)

	changed := true
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// The terminal-state guard refused the update.
		changed = false
	case err != nil:
		return nil, fmt.Errorf("insert donation: %w", err)
	}

	var row donationRow
	if changed {
		err = tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+donationColumns+` FROM donations WHERE id = ?`), id)
	} else {
		key := d.TransactionID
		if conflictKey == "tx_ref" {
			key = d.TxRef
		}
		err = tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+donationColumns+` FROM donations WHERE `+conflictKey+` = ?`), key)
	}
	if err != nil {
		return nil, fmt.Errorf("reload donation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &UpsertResult{
		Donation: row.toModel(),
		Created:  changed && revision == 1,
		Changed:  changed,
	}, nil
}

func (r *DonationRepo) getBy(ctx context.Context, column string, value any) (*models.Donation, error) {
	var row donationRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+donationColumns+` FROM donations WHERE `+column+` = ?`), value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("donation %s=%v: %w", column, value, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return row.toModel(), nil
}

func (r *DonationRepo) GetByID(ctx context.Context, id int64) (*models.Donation, error) {
	return r.getBy(ctx, "id", id)
}

func (r *DonationRepo) GetByTransactionID(ctx context.Context, transactionID string) (*models.Donation, error) {
	return r.getBy(ctx, "transaction_id", transactionID)
}

func (r *DonationRepo) GetByTxRef(ctx context.Context, txRef string) (*models.Donation, error) {
	return r.getBy(ctx, "tx_ref", txRef)
}

type DonationFilter struct {
	Status   string
	Provider string
	Currency string
	Page     int
	Limit    int
}

// List returns one page of donations, newest first, and the total match count.
func (r *DonationRepo) List(ctx context.Context, f DonationFilter) ([]models.Donation, int, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Provider != "" {
		clauses = append(clauses, "payment_provider = ?")
		args = append(args, f.Provider)
	}
	if f.Currency != "" {
		clauses = append(clauses, "currency = ?")
		args = append(args, strings.ToUpper(f.Currency))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) FROM donations"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	var rows []donationRow
	query := "SELECT " + donationColumns + " FROM donations" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), append(args, f.Limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list donations: %w", err)
	}

	out := make([]models.Donation, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toModel())
	}
	return out, total, nil
}

// SucceededAmount is the slice of a succeeded donation the statistics need.
type SucceededAmount struct {
	Amount          decimal.Decimal `db:"amount"`
	Currency        string          `db:"currency"`
	PaymentProvider string          `db:"payment_provider"`
}

func (r *DonationRepo) SucceededAmounts(ctx context.Context) ([]SucceededAmount, error) {
	var out []SucceededAmount
	err := r.db.SelectContext(ctx, &out,
		`SELECT amount, currency, payment_provider FROM donations WHERE status = 'succeeded'`)
	if err != nil {
		return nil, fmt.Errorf("succeeded amounts: %w", err)
	}
	return out, nil
}

// RecentDonation is the public view of a succeeded donation.
type RecentDonation struct {
	DonorName       string          `db:"donor_name" json:"donor_name"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Currency        string          `db:"currency" json:"currency"`
	PaymentProvider string          `db:"payment_provider" json:"payment_provider"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

func (r *DonationRepo) Recent(ctx context.Context, limit int) ([]RecentDonation, error) {
	var out []RecentDonation
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT donor_name, amount, currency, payment_provider, created_at
		FROM donations WHERE status = 'succeeded'
		ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("recent donations: %w", err)
	}
	return out, nil
}
