package models

import "time"

// UserCredit is the credit ledger row for one user. Credits is mutated
// only through SQL-level increments (credits = credits + ?), never by
// read-modify-write in application code.
type UserCredit struct {
	UserID    string    `gorm:"column:user_id;primary_key;type:varchar(64)" json:"user_id"`
	Credits   int64     `gorm:"column:credits;type:bigint;not null;default:0" json:"credits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserCredit) TableName() string {
	return "user_credits"
}
