package txstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/topservers/credits/internal/models"
	"github.com/topservers/credits/pkg/apperr"
	"github.com/topservers/credits/pkg/types"
)

// Store persists payment transactions. Terminal transitions go through
// conditional UPDATEs on status='pending' so that two channels racing on
// the same payment cannot both win.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Create(ctx context.Context, tx *models.Transaction) error {
	return s.db.WithContext(ctx).Create(tx).Error
}

// SetExternalID attaches the provider-assigned id after the external
// payment was created.
func (s *Store) SetExternalID(ctx context.Context, id, externalID string) error {
	return s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		Update("external_id", externalID).Error
}

func (s *Store) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %s", apperr.ErrNotFound, id)
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) FindByExternalID(ctx context.Context, provider types.PaymentProvider, externalID string) (*models.Transaction, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty external id", apperr.ErrNotFound)
	}
	var tx models.Transaction
	if err := s.db.WithContext(ctx).
		First(&tx, "provider = ? AND external_id = ?", provider, externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction for %s/%s", apperr.ErrNotFound, provider, externalID)
		}
		return nil, err
	}
	return &tx, nil
}

// AppendMetadata merges patch into the metadata column. Existing keys
// survive unless the patch rewrites them; nothing is ever removed.
func (s *Store) AppendMetadata(ctx context.Context, id string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		UpdateColumn("metadata", gorm.Expr("metadata || ?::jsonb", string(raw))).Error
}

// MarkCompleted transitions pending -> completed. Returns false when the
// row was already terminal, in which case nothing changed.
func (s *Store) MarkCompleted(ctx context.Context, id string, patch map[string]any) (bool, error) {
	return s.markTerminal(ctx, id, types.TransactionStatusCompleted, patch)
}

// MarkFailed transitions pending -> failed. Returns false when the row
// was already terminal.
func (s *Store) MarkFailed(ctx context.Context, id string, patch map[string]any) (bool, error) {
	return s.markTerminal(ctx, id, types.TransactionStatusFailed, patch)
}

func (s *Store) markTerminal(ctx context.Context, id string, status types.TransactionStatus, patch map[string]any) (bool, error) {
	updates := map[string]any{"status": status}
	if status == types.TransactionStatusCompleted {
		updates["completed_at"] = time.Now()
	}
	if len(patch) > 0 {
		raw, err := json.Marshal(patch)
		if err != nil {
			return false, err
		}
		updates["metadata"] = gorm.Expr("metadata || ?::jsonb", string(raw))
	}
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, types.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanResponse struct {
	Items []*models.Transaction `json:"items"`
	Total int64                 `json:"total"`
}

// Scan implements paginated admin listing with filters.
func (s *Store) Scan(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", apperr.ErrValidation)
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Transaction{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var rows []*models.Transaction
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return &ScanResponse{Items: rows, Total: total}, nil
}

// ListNeedsReview returns completed transactions whose ledger credit
// failed and awaits manual reconciliation.
func (s *Store) ListNeedsReview(ctx context.Context) ([]*models.Transaction, error) {
	var rows []*models.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ? AND metadata->>? = 'true'", types.TransactionStatusCompleted, models.MetadataKeyNeedsManualReview).
		Order("updated_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
