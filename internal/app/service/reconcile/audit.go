package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/topservers/credits/internal/app/service/provider"
	"github.com/topservers/credits/internal/models"
)

// auditResult writes the handled/handle_failed audit row for one
// notification. Audit rows are written asynchronously and never block or
// fail reconciliation.
func (e *Engine) auditResult(ctx context.Context, n *provider.Notification, res *Result, retErr error) {
	if e.audit == nil {
		return
	}

	dataBytes, _ := json.Marshal(n.Payload)

	status := models.PaymentNotificationLogStatusHandled
	resMap := map[string]any{"result": res}
	if retErr != nil {
		status = models.PaymentNotificationLogStatusHandleFailed
		resMap["error"] = retErr.Error()
	}
	resBytes, _ := json.Marshal(resMap)

	var userIDPtr *string
	if v, ok := ctx.Value("user_id").(string); ok && v != "" {
		userIDPtr = lo.ToPtr(v)
	}
	var traceID string
	if v, ok := ctx.Value("traceID").(string); ok {
		traceID = v
	}
	var txID string
	if res != nil {
		txID = res.TransactionID
	}

	e.audit.Save(ctx, &models.PaymentNotificationLog{
		Provider:         string(n.Provider),
		Channel:          string(n.Channel),
		UserID:           userIDPtr,
		TraceID:          traceID,
		TransactionID:    txID,
		NotificationTime: time.Now(),
		Data:             datatypes.JSON(dataBytes),
		Result:           lo.ToPtr(datatypes.JSON(resBytes)),
		Status:           status,
	})
}
