package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/topservers/credits/internal/models"
	"github.com/topservers/credits/pkg/apperr"
	"github.com/topservers/credits/pkg/tool"
	"github.com/topservers/credits/pkg/types"
)

// OrderTTL is how long an order stays payable before it reports expired.
// Expiry is advisory: a late provider notification can still complete a
// transaction linked to an expired order.
const OrderTTL = 24 * time.Hour

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

type CreateOrderRequest struct {
	UserID          string
	PackageID       string
	Provider        types.PaymentProvider
	Credits         int64
	BasePriceCents  int64
	FinalPriceCents int64
}

func (s *Service) Create(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	o := &models.Order{
		ID:              tool.GenerateUUIDV7(),
		UserID:          req.UserID,
		PackageID:       req.PackageID,
		Provider:        req.Provider,
		Credits:         req.Credits,
		BasePriceCents:  req.BasePriceCents,
		FinalPriceCents: req.FinalPriceCents,
		Status:          types.OrderStatusPending,
		ExpiresAt:       time.Now().Add(OrderTTL),
	}
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
		}
		return nil, err
	}
	return &o, nil
}

// MarkCompleted flips a pending order to completed. Completion wins over
// expiry, so no expiry condition here.
func (s *Service) MarkCompleted(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, types.OrderStatusPending).
		Update("status", types.OrderStatusCompleted).Error
}
