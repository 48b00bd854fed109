package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// We use 'db' tags for sqlx to map the snake_case columns to Go fields.

// User is an administrator allowed into the back office.
type User struct {
	ID           int       `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Campaign is the fundraising campaign a donation is attributed to.
type Campaign struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Donation is one row per real-world payment, keyed by the processor's
// transaction id once it is known and by the locally generated tx_ref before.
type Donation struct {
	ID              int64           `json:"id"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	TxRef           string          `json:"tx_ref,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          Status          `json:"status"`
	PaymentProvider string          `json:"payment_provider"`
	PaymentMethod   string          `json:"payment_method"`
	DonorName       string          `json:"donor_name"`
	DonorEmail      string          `json:"donor_email,omitempty"`
	DonorPhone      string          `json:"donor_phone,omitempty"`
	CampaignID      *string         `json:"campaign_id"`
	Metadata        Metadata        `json:"metadata"`
	Revision        int             `json:"revision"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// WebhookEvent is one raw delivery in the append-only audit log.
type WebhookEvent struct {
	ID              int64      `db:"id" json:"id"`
	Provider        string     `db:"provider" json:"provider"`
	EventType       string     `db:"event_type" json:"event_type"`
	EventID         string     `db:"event_id" json:"event_id"`
	DeliveryID      string     `db:"delivery_id" json:"delivery_id"`
	Payload         string     `db:"payload" json:"payload"`
	Processed       bool       `db:"processed" json:"processed"`
	ProcessingError string     `db:"processing_error" json:"processing_error,omitempty"`
	DonationID      *int64     `db:"donation_id" json:"donation_id"`
	ReceivedAt      time.Time  `db:"received_at" json:"received_at"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at"`
}

// Metadata is the free-form bag of provider correlation fields stored as JSON.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. Postgres jsonb arrives as []byte or string
// depending on the driver, SQLite TEXT as string.
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported type %T", src)
	}
	out := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
	}
	*m = out
	return nil
}

// String returns the value under key when it is a string.
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
