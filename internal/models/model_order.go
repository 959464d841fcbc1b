package models

import (
	"time"

	"github.com/topservers/credits/pkg/types"
)

// Order is a purchase intent for one credit package. An order can span
// multiple transactions (payment retries); it completes when any of them
// does.
type Order struct {
	ID        string                `gorm:"column:id;primary_key;type:uuid;index:idx_order_user_id_id,priority:2,sort:desc" json:"id"`
	UserID    string                `gorm:"column:user_id;type:varchar(64);not null;index:idx_order_user_id_id,priority:1" json:"user_id"`
	PackageID string                `gorm:"column:package_id;type:varchar(64);not null" json:"package_id"`
	Provider  types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`

	Credits        int64 `gorm:"column:credits;type:bigint;not null" json:"credits"`
	BasePriceCents int64 `gorm:"column:base_price_cents;type:bigint;not null" json:"base_price_cents"`
	// FinalPriceCents includes the provider fee markup so the net amount
	// received equals the base price.
	FinalPriceCents int64 `gorm:"column:final_price_cents;type:bigint;not null" json:"final_price_cents"`

	Status    types.OrderStatus `gorm:"column:status;type:varchar(16);not null;default:'pending'" json:"status"`
	ExpiresAt time.Time         `gorm:"column:expires_at;not null" json:"expires_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// DerivedStatus folds expiry into the stored status. Expiry is advisory
// only: it affects what we report, not whether a late notification may
// still complete a linked transaction.
func (o *Order) DerivedStatus(now time.Time) types.OrderStatus {
	if o.Status == types.OrderStatusPending && now.After(o.ExpiresAt) {
		return types.OrderStatusExpired
	}
	return o.Status
}
