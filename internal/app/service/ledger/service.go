package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/topservers/credits/internal/models"
	"github.com/topservers/credits/pkg/apperr"
)

// Service is the credit ledger. Credits are only ever mutated through a
// single SQL-level increment; the balance is never computed in application
// code, so concurrent completions for the same user cannot lose updates.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	var row models.UserCredit
	if err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: no credit profile for user %s", apperr.ErrNotFound, userID)
		}
		return 0, err
	}
	return row.Credits, nil
}

// Credit atomically adds amount to the user's balance, creating the row
// when missing, and returns the new balance.
func (s *Service) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit amount must be positive", apperr.ErrValidation)
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"credits": gorm.Expr("user_credits.credits + ?", amount)}),
	}).Create(&models.UserCredit{UserID: userID, Credits: amount}).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrLedgerMutation, err)
	}
	// The increment is already durable; a failed balance read must not make
	// the caller treat the credit as failed.
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		s.log.Warnw("credit applied but balance read failed", "user_id", userID, "err", err)
		return 0, nil
	}
	return balance, nil
}
