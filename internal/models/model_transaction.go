package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/topservers/credits/pkg/types"
)

// Transaction is one attempt to pay for credits via one provider.
//
// Status is monotonic: once completed or failed it never changes again.
// The terminal transition is done with a conditional UPDATE on
// status='pending', which is what keeps concurrent notifications for the
// same payment from crediting twice.
type Transaction struct {
	ID       string                `gorm:"column:id;primary_key;type:uuid;index:idx_tx_user_id_id,priority:2,sort:desc" json:"id"`
	UserID   string                `gorm:"column:user_id;type:varchar(64);not null;index:idx_tx_user_id_id,priority:1" json:"user_id"`
	Provider types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null;uniqueIndex:unique_provider_external_id,priority:1" json:"provider"`
	// ExternalID is the provider-assigned identifier, attached once the
	// external payment exists. Inbound notifications join on it. NULL until
	// then: rows are created before the provider call, and a '' default
	// would make the unique index reject every second pending creation.
	ExternalID *string `gorm:"column:external_id;type:varchar(128);uniqueIndex:unique_provider_external_id,priority:2" json:"external_id"`
	OrderID    *string `gorm:"column:order_id;type:uuid;index" json:"order_id"`

	Credits        int64  `gorm:"column:credits;type:bigint;not null" json:"credits"`
	AmountUSDCents int64  `gorm:"column:amount_usd_cents;type:bigint;not null" json:"amount_usd_cents"`
	Currency       string `gorm:"column:currency;type:varchar(8);not null" json:"currency"`

	Status types.TransactionStatus `gorm:"column:status;type:varchar(16);not null;default:'pending';index" json:"status"`
	// Metadata accumulates provider payloads and audit trail. Keys are only
	// ever merged in, never removed.
	Metadata    datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CompletedAt *time.Time        `gorm:"column:completed_at;default:null" json:"completed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) Terminal() bool {
	return t != nil && t.Status.Terminal()
}

// ExternalRef returns the provider-assigned id, or "" when the external
// payment has not been created yet.
func (t *Transaction) ExternalRef() string {
	if t == nil || t.ExternalID == nil {
		return ""
	}
	return *t.ExternalID
}

// NeedsManualReview reports whether the completion path failed to credit
// the ledger for this transaction.
func (t *Transaction) NeedsManualReview() bool {
	if t == nil || t.Metadata == nil {
		return false
	}
	v, ok := t.Metadata[MetadataKeyNeedsManualReview].(bool)
	return ok && v
}

// MetadataKeyNeedsManualReview flags a completed transaction whose ledger
// credit failed.
const MetadataKeyNeedsManualReview = "needs_manual_review"
