package notificationlog

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/topservers/credits/internal/models"
	"github.com/topservers/credits/pkg/logctx"
	"github.com/topservers/credits/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a payment notification log. Nil input is
// ignored; audit writes never block or fail the reconcile path.
func (s *Service) Save(ctx context.Context, entry *models.PaymentNotificationLog) {
	go func() {
		if entry == nil {
			return
		}
		if entry.ID == "" {
			entry.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
		}
	}()
}

type ListRequest struct {
	TransactionID string `json:"transaction_id"`
	From          int    `json:"from"`
	Size          int    `json:"size"`
}

// List returns recent notification logs for admin tooling.
func (s *Service) List(ctx context.Context, req *ListRequest) ([]*models.PaymentNotificationLog, error) {
	if req.Size <= 0 || req.Size > 500 {
		req.Size = 100
	}
	q := s.db.WithContext(ctx).Model(&models.PaymentNotificationLog{}).Order("created_at desc").Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.TransactionID != "" {
		q = q.Where("transaction_id = ?", req.TransactionID)
	}
	var rows []*models.PaymentNotificationLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
