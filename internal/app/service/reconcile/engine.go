package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/topservers/credits/internal/app/service/provider"
	"github.com/topservers/credits/internal/models"
	"github.com/topservers/credits/pkg/apperr"
	"github.com/topservers/credits/pkg/logctx"
	"github.com/topservers/credits/pkg/metrics"
	"github.com/topservers/credits/pkg/types"
)

// TransactionStore is the subset of transaction persistence the engine
// needs. Terminal transitions are compare-and-set: they succeed only from
// pending, and report false otherwise.
type TransactionStore interface {
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	FindByExternalID(ctx context.Context, p types.PaymentProvider, externalID string) (*models.Transaction, error)
	AppendMetadata(ctx context.Context, id string, patch map[string]any) error
	MarkCompleted(ctx context.Context, id string, patch map[string]any) (bool, error)
	MarkFailed(ctx context.Context, id string, patch map[string]any) (bool, error)
}

// CreditLedger credits a user's balance with a storage-level atomic
// increment and returns the new balance.
type CreditLedger interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
}

// OrderMarker completes the order linked to a completed transaction.
type OrderMarker interface {
	MarkCompleted(ctx context.Context, orderID string) error
}

// Deduper is the advisory notification-id cache. It only suppresses audit
// noise from verbatim duplicate deliveries; idempotency of the ledger does
// not depend on it.
type Deduper interface {
	Seen(ctx context.Context, provider, notificationID string) bool
}

// AuditLog records every inbound notification and its handling result.
type AuditLog interface {
	Save(ctx context.Context, entry *models.PaymentNotificationLog)
}

// Result describes what one reconcile call did.
type Result struct {
	TransactionID string                  `json:"transaction_id"`
	Status        types.TransactionStatus `json:"status"`
	Outcome       types.Outcome           `json:"outcome"`
	// Transitioned is true when this call moved the transaction to a
	// terminal state. Duplicate and late notifications report false.
	Transitioned   bool  `json:"transitioned"`
	CreditsGranted int64 `json:"credits_granted,omitempty"`
	NewBalance     int64 `json:"new_balance,omitempty"`
}

// Engine applies one inbound notification to one transaction,
// idempotently, regardless of delivery channel.
//
// The contract it upholds: at most one ledger credit per transaction, no
// matter how many notifications arrive, on which channels, or in what
// order. The idempotency gate is the transaction's terminal status; the
// terminal transition itself is a CAS at the store, so concurrent
// deliveries for the same payment resolve to exactly one winner.
type Engine struct {
	store   TransactionStore
	ledger  CreditLedger
	orders  OrderMarker
	deduper Deduper
	reg     *provider.Registry
	audit   AuditLog
	log     *zap.SugaredLogger
}

func NewEngine(store TransactionStore, ledger CreditLedger, orders OrderMarker, deduper Deduper, reg *provider.Registry, audit AuditLog, log *zap.SugaredLogger) *Engine {
	return &Engine{store: store, ledger: ledger, orders: orders, deduper: deduper, reg: reg, audit: audit, log: log}
}

// Reconcile resolves the notification to a transaction and applies it.
//
// A duplicate notification for an already-terminal transaction is the
// expected, successfully-handled case and returns a nil error.
func (e *Engine) Reconcile(ctx context.Context, n *provider.Notification) (res *Result, retErr error) {
	lg := logctx.FromCtx(ctx, e.log).With("provider", n.Provider, "channel", n.Channel, "ref", n.Reference)

	defer func() {
		outcome := "error"
		transitioned := "false"
		if res != nil {
			outcome = string(res.Outcome)
			if res.Transitioned {
				transitioned = "true"
			}
		}
		metrics.ReconcileOutcomes.WithLabelValues(string(n.Provider), string(n.Channel), outcome, transitioned).Inc()
		e.auditResult(ctx, n, res, retErr)
	}()

	tx, err := e.resolve(ctx, n)
	if err != nil {
		lg.Warnw("notification references unknown transaction")
		return nil, err
	}
	lg = lg.With("transaction_id", tx.ID)

	// Idempotency gate: a terminal transaction never changes again. The
	// late notification is still recorded for audit.
	if tx.Terminal() {
		if e.deduper != nil && e.deduper.Seen(ctx, string(n.Provider), n.NotificationID) {
			lg.Debugw("duplicate notification suppressed")
			return &Result{TransactionID: tx.ID, Status: tx.Status, Outcome: types.Outcome(tx.Status)}, nil
		}
		if err := e.store.AppendMetadata(ctx, tx.ID, notePatch(n)); err != nil {
			lg.Warnw("failed to append audit metadata", "err", err)
		}
		lg.Infow("notification for terminal transaction, no-op", "status", tx.Status)
		return &Result{TransactionID: tx.ID, Status: tx.Status, Outcome: types.Outcome(tx.Status)}, nil
	}

	adapter, err := e.reg.Get(n.Provider)
	if err != nil {
		return nil, err
	}

	// Notifications without a status (e.g. the CoinPayments redirect)
	// get the authoritative state from the provider.
	if n.ProviderStatus == "" {
		polled, err := adapter.Poll(ctx, tx)
		if err != nil {
			return nil, err
		}
		polled.Channel = n.Channel
		n = polled
	}

	outcome := adapter.TranslateStatus(n.ProviderStatus)
	switch outcome {
	case types.OutcomePending:
		if err := e.store.AppendMetadata(ctx, tx.ID, notePatch(n)); err != nil {
			return nil, err
		}
		lg.Infow("notification leaves transaction pending", "provider_status", n.ProviderStatus)
		return &Result{TransactionID: tx.ID, Status: types.TransactionStatusPending, Outcome: outcome}, nil

	case types.OutcomeFailed:
		won, err := e.store.MarkFailed(ctx, tx.ID, notePatch(n))
		if err != nil {
			return nil, err
		}
		if !won {
			// Another channel finalized first; degrade to audit append.
			_ = e.store.AppendMetadata(ctx, tx.ID, notePatch(n))
			cur, _ := e.store.FindByID(ctx, tx.ID)
			return &Result{TransactionID: tx.ID, Status: statusOf(cur), Outcome: outcome}, nil
		}
		lg.Infow("transaction failed", "provider_status", n.ProviderStatus)
		return &Result{TransactionID: tx.ID, Status: types.TransactionStatusFailed, Outcome: outcome, Transitioned: true}, nil

	default: // types.OutcomeCompleted
		won, err := e.store.MarkCompleted(ctx, tx.ID, notePatch(n))
		if err != nil {
			return nil, err
		}
		if !won {
			_ = e.store.AppendMetadata(ctx, tx.ID, notePatch(n))
			cur, _ := e.store.FindByID(ctx, tx.ID)
			return &Result{TransactionID: tx.ID, Status: statusOf(cur), Outcome: outcome}, nil
		}

		newBalance, err := e.ledger.Credit(ctx, tx.UserID, tx.Credits)
		if err != nil {
			// The transaction is terminal and cannot be replayed; the
			// user has paid and was not credited. Flag loudly for manual
			// reconciliation.
			metrics.LedgerMutationFailures.Inc()
			lg.Errorw("ledger credit failed after completion, manual reconciliation required",
				"user_id", tx.UserID, "credits", tx.Credits, "err", err)
			_ = e.store.AppendMetadata(ctx, tx.ID, map[string]any{
				models.MetadataKeyNeedsManualReview: true,
				"ledger_error":                      err.Error(),
			})
			return nil, fmt.Errorf("%w: transaction %s completed but not credited: %v", apperr.ErrLedgerMutation, tx.ID, err)
		}

		if tx.OrderID != nil {
			if err := e.orders.MarkCompleted(ctx, *tx.OrderID); err != nil {
				lg.Warnw("failed to complete order", "order_id", *tx.OrderID, "err", err)
			}
		}

		lg.Infow("transaction completed, credits granted",
			"user_id", tx.UserID, "credits", tx.Credits, "new_balance", newBalance)
		return &Result{
			TransactionID:  tx.ID,
			Status:         types.TransactionStatusCompleted,
			Outcome:        outcome,
			Transitioned:   true,
			CreditsGranted: tx.Credits,
			NewBalance:     newBalance,
		}, nil
	}
}

func (e *Engine) resolve(ctx context.Context, n *provider.Notification) (*models.Transaction, error) {
	if n.Reference == "" {
		return nil, fmt.Errorf("%w: notification carries no reference", apperr.ErrNotFound)
	}
	if n.RefKind == provider.RefKindExternalID {
		return e.store.FindByExternalID(ctx, n.Provider, n.Reference)
	}
	return e.store.FindByID(ctx, n.Reference)
}

// notePatch builds the append-only metadata entry for one notification.
// The key is unique per delivery so earlier payloads are never rewritten.
func notePatch(n *provider.Notification) map[string]any {
	key := fmt.Sprintf("notify_%s_%d", n.Channel, time.Now().UnixNano())
	return map[string]any{
		key: map[string]any{
			"provider":        string(n.Provider),
			"notification_id": n.NotificationID,
			"provider_status": n.ProviderStatus,
			"amount_cents":    n.AmountCents,
			"currency":        n.Currency,
			"payload":         n.Payload,
			"received_at":     time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
}

func statusOf(tx *models.Transaction) types.TransactionStatus {
	if tx == nil {
		return types.TransactionStatusPending
	}
	return tx.Status
}
