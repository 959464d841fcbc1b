package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/topservers/credits/internal/app/service/provider"
	"github.com/topservers/credits/internal/models"
	"github.com/topservers/credits/pkg/apperr"
	cfgpkg "github.com/topservers/credits/pkg/config"
	"github.com/topservers/credits/pkg/types"
)

type memStore struct {
	mu  sync.Mutex
	txs map[string]*models.Transaction
}

func newMemStore(txs ...*models.Transaction) *memStore {
	s := &memStore{txs: map[string]*models.Transaction{}}
	for _, tx := range txs {
		if tx.Metadata == nil {
			tx.Metadata = map[string]any{}
		}
		s.txs[tx.ID] = tx
	}
	return s
}

func (s *memStore) FindByID(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", apperr.ErrNotFound, id)
	}
	cp := *tx
	return &cp, nil
}

func (s *memStore) FindByExternalID(_ context.Context, p types.PaymentProvider, externalID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.Provider == p && tx.ExternalRef() == externalID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: transaction for %s/%s", apperr.ErrNotFound, p, externalID)
}

func (s *memStore) AppendMetadata(_ context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return fmt.Errorf("%w: transaction %s", apperr.ErrNotFound, id)
	}
	for k, v := range patch {
		tx.Metadata[k] = v
	}
	return nil
}

func (s *memStore) MarkCompleted(ctx context.Context, id string, patch map[string]any) (bool, error) {
	return s.markTerminal(id, types.TransactionStatusCompleted, patch)
}

func (s *memStore) MarkFailed(ctx context.Context, id string, patch map[string]any) (bool, error) {
	return s.markTerminal(id, types.TransactionStatusFailed, patch)
}

func (s *memStore) markTerminal(id string, status types.TransactionStatus, patch map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return false, fmt.Errorf("%w: transaction %s", apperr.ErrNotFound, id)
	}
	if tx.Status != types.TransactionStatusPending {
		return false, nil
	}
	tx.Status = status
	for k, v := range patch {
		tx.Metadata[k] = v
	}
	return true, nil
}

func (s *memStore) get(id string) *models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id]
}

type memLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	creditN  int
	failWith error
}

func (l *memLedger) GetBalance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *memLedger) Credit(_ context.Context, userID string, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return 0, l.failWith
	}
	if l.balances == nil {
		l.balances = map[string]int64{}
	}
	l.creditN++
	l.balances[userID] += amount
	return l.balances[userID], nil
}

type memOrders struct {
	mu        sync.Mutex
	completed []string
}

func (o *memOrders) MarkCompleted(_ context.Context, orderID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, orderID)
	return nil
}

func testConfig() *cfgpkg.Config {
	cfg := &cfgpkg.Config{}
	cfg.Server.BaseURL = "http://localhost:8888"
	cfg.Providers.PayPal.FeePct = 0.034
	cfg.Providers.PayPal.FeeFixedCents = 30
	cfg.Providers.MercadoPago.FeePct = 0.0499
	return cfg
}

func testRegistry(cfg *cfgpkg.Config) *provider.Registry {
	return provider.NewRegistry(
		provider.NewCoinPaymentsAdapter(cfg),
		provider.NewPayPalAdapter(cfg),
		provider.NewMercadoPagoAdapter(cfg),
	)
}

func newTestEngine(store *memStore, ledger *memLedger, orders *memOrders, cfg *cfgpkg.Config) *Engine {
	if cfg == nil {
		cfg = testConfig()
	}
	return NewEngine(store, ledger, orders, nil, testRegistry(cfg), nil, zap.NewNop().Sugar())
}

func pendingTx(id, userID string, p types.PaymentProvider, credits int64) *models.Transaction {
	orderID := "order-" + id
	return &models.Transaction{
		ID:         id,
		UserID:     userID,
		Provider:   p,
		ExternalID: lo.ToPtr("ext-" + id),
		OrderID:    &orderID,
		Credits:    credits,
		Status:     types.TransactionStatusPending,
	}
}

func mpNotification(txID, status string, channel types.Channel) *provider.Notification {
	return &provider.Notification{
		Provider:       types.PaymentProviderMercadoPago,
		Channel:        channel,
		NotificationID: "n-" + txID + "-" + status,
		RefKind:        provider.RefKindTransactionID,
		Reference:      txID,
		ProviderStatus: status,
		Currency:       "USD",
		Payload:        map[string]any{"status": status},
	}
}

func TestReconcile_CompletedCreditsOnce(t *testing.T) {
	store := newMemStore(pendingTx("tx-1", "u-1", types.PaymentProviderMercadoPago, 500))
	ledger := &memLedger{}
	orders := &memOrders{}
	engine := newTestEngine(store, ledger, orders, nil)

	res, err := engine.Reconcile(context.Background(), mpNotification("tx-1", "approved", types.ChannelWebhook))
	require.NoError(t, err)
	require.True(t, res.Transitioned)
	require.Equal(t, types.TransactionStatusCompleted, res.Status)
	require.Equal(t, int64(500), res.CreditsGranted)
	require.Equal(t, int64(500), res.NewBalance)
	require.Equal(t, []string{"order-tx-1"}, orders.completed)

	// Redelivery of the same webhook, plus the redirect and a manual poll,
	// must not credit again.
	for _, ch := range []types.Channel{types.ChannelWebhook, types.ChannelRedirect, types.ChannelPoll} {
		res, err := engine.Reconcile(context.Background(), mpNotification("tx-1", "approved", ch))
		require.NoError(t, err)
		require.False(t, res.Transitioned)
		require.Equal(t, types.TransactionStatusCompleted, res.Status)
	}
	require.Equal(t, 1, ledger.creditN)
	require.Equal(t, int64(500), ledger.balances["u-1"])
}

func TestReconcile_ChannelOrderDoesNotMatter(t *testing.T) {
	run := func(channels []types.Channel) (int, types.TransactionStatus) {
		store := newMemStore(pendingTx("tx-1", "u-1", types.PaymentProviderMercadoPago, 100))
		ledger := &memLedger{}
		engine := newTestEngine(store, ledger, &memOrders{}, nil)
		for _, ch := range channels {
			_, err := engine.Reconcile(context.Background(), mpNotification("tx-1", "approved", ch))
			require.NoError(t, err)
		}
		return ledger.creditN, store.get("tx-1").Status
	}

	n, status := run([]types.Channel{types.ChannelWebhook, types.ChannelRedirect})
	require.Equal(t, 1, n)
	require.Equal(t, types.TransactionStatusCompleted, status)

	n, status = run([]types.Channel{types.ChannelRedirect, types.ChannelWebhook})
	require.Equal(t, 1, n)
	require.Equal(t, types.TransactionStatusCompleted, status)
}

func TestReconcile_UnknownReferenceIsNotFound(t *testing.T) {
	store := newMemStore()
	ledger := &memLedger{}
	engine := newTestEngine(store, ledger, &memOrders{}, nil)

	_, err := engine.Reconcile(context.Background(), mpNotification("tx-missing", "approved", types.ChannelWebhook))
	require.Error(t, err)
	require.True(t, apperr.IsNotFound(err))
	require.Equal(t, 0, ledger.creditN)
}

func TestReconcile_PendingAppendsWithoutTransition(t *testing.T) {
	store := newMemStore(pendingTx("tx-1", "u-1", types.PaymentProviderMercadoPago, 100))
	ledger := &memLedger{}
	engine := newTestEngine(store, ledger, &memOrders{}, nil)

	res, err := engine.Reconcile(context.Background(), mpNotification("tx-1", "in_process", types.ChannelWebhook))
	require.NoError(t, err)
	require.False(t, res.Transitioned)
	require.Equal(t, types.TransactionStatusPending, res.Status)
	require.Equal(t, 0, ledger.creditN)
	require.NotEmpty(t, store.get("tx-1").Metadata)
}

func TestReconcile_FailedIsTerminalToo(t *testing.T) {
	store := newMemStore(pendingTx("tx-1", "u-1", types.PaymentProviderMercadoPago, 100))
	ledger := &memLedger{}
	engine := newTestEngine(store, ledger, &memOrders{}, nil)

	res, err := engine.Reconcile(context.Background(), mpNotification("tx-1", "rejected", types.ChannelWebhook))
	require.NoError(t, err)
	require.True(t, res.Transitioned)
	require.Equal(t, types.TransactionStatusFailed, res.Status)

	// A later success notification for the same payment must not resurrect
	// the transaction or credit the ledger.
	res, err = engine.Reconcile(context.Background(), mpNotification("tx-1", "approved", types.ChannelWebhook))
	require.NoError(t, err)
	require.False(t, res.Transitioned)
	require.Equal(t, types.TransactionStatusFailed, res.Status)
	require.Equal(t, 0, ledger.creditN)
}

func TestReconcile_LedgerFailureFlagsManualReview(t *testing.T) {
	store := newMemStore(pendingTx("tx-1", "u-1", types.PaymentProviderMercadoPago, 100))
	ledger := &memLedger{failWith: fmt.Errorf("%w: connection reset", apperr.ErrLedgerMutation)}
	engine := newTestEngine(store, ledger, &memOrders{}, nil)

	_, err := engine.Reconcile(context.Background(), mpNotification("tx-1", "approved", types.ChannelWebhook))
	require.Error(t, err)
	require.True(t, apperr.IsLedgerMutation(err))

	tx := store.get("tx-1")
	require.Equal(t, types.TransactionStatusCompleted, tx.Status)
	require.Equal(t, true, tx.Metadata[models.MetadataKeyNeedsManualReview])
}

// lostRaceStore simulates a concurrent delivery finalizing the
// transaction between resolve and the terminal transition: the mark call
// reports no rows updated while the row lands on the winner's status.
type lostRaceStore struct {
	*memStore
	winner types.TransactionStatus
}

func (s *lostRaceStore) MarkCompleted(_ context.Context, id string, _ map[string]any) (bool, error) {
	_, _ = s.memStore.markTerminal(id, s.winner, nil)
	return false, nil
}

func (s *lostRaceStore) MarkFailed(_ context.Context, id string, _ map[string]any) (bool, error) {
	_, _ = s.memStore.markTerminal(id, s.winner, nil)
	return false, nil
}

func TestReconcile_LostCompletionRaceDoesNotCredit(t *testing.T) {
	mem := newMemStore(pendingTx("tx-1", "u-1", types.PaymentProviderMercadoPago, 100))
	store := &lostRaceStore{memStore: mem, winner: types.TransactionStatusCompleted}
	ledger := &memLedger{}
	engine := NewEngine(store, ledger, &memOrders{}, nil, testRegistry(testConfig()), nil, zap.NewNop().Sugar())

	res, err := engine.Reconcile(context.Background(), mpNotification("tx-1", "approved", types.ChannelRedirect))
	require.NoError(t, err)
	require.False(t, res.Transitioned)
	require.Equal(t, types.TransactionStatusCompleted, res.Status)
	// The concurrent winner credits in its own call; the loser never does.
	require.Equal(t, 0, ledger.creditN)
}

func TestReconcile_LostFailureRaceKeepsWinnerStatus(t *testing.T) {
	mem := newMemStore(pendingTx("tx-1", "u-1", types.PaymentProviderMercadoPago, 100))
	store := &lostRaceStore{memStore: mem, winner: types.TransactionStatusCompleted}
	ledger := &memLedger{}
	engine := NewEngine(store, ledger, &memOrders{}, nil, testRegistry(testConfig()), nil, zap.NewNop().Sugar())

	// A late "rejected" notification loses the transition race to a
	// concurrent completion and must not overwrite it.
	res, err := engine.Reconcile(context.Background(), mpNotification("tx-1", "rejected", types.ChannelWebhook))
	require.NoError(t, err)
	require.False(t, res.Transitioned)
	require.Equal(t, types.TransactionStatusCompleted, res.Status)
	require.Equal(t, types.TransactionStatusCompleted, mem.get("tx-1").Status)
	require.Equal(t, 0, ledger.creditN)
}

func TestReconcile_EmptyStatusFetchesFromProvider(t *testing.T) {
	// The CoinPayments redirect carries no trustable status; the engine must
	// fetch the authoritative one from the provider API.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api.php", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "ok",
			"result": map[string]any{
				"status":      100,
				"status_text": "Complete",
				"coin":        "BTC",
				"amountf":     "10.00",
				"receivedf":   "10.00",
			},
		})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Providers.CoinPayments.BaseURL = srv.URL

	store := newMemStore(pendingTx("tx-1", "u-1", types.PaymentProviderCoinPayments, 10))
	ledger := &memLedger{}
	engine := newTestEngine(store, ledger, &memOrders{}, cfg)

	res, err := engine.Reconcile(context.Background(), &provider.Notification{
		Provider:  types.PaymentProviderCoinPayments,
		Channel:   types.ChannelRedirect,
		RefKind:   provider.RefKindTransactionID,
		Reference: "tx-1",
		Payload:   map[string]any{"query": "tx=tx-1"},
	})
	require.NoError(t, err)
	require.True(t, res.Transitioned)
	require.Equal(t, types.TransactionStatusCompleted, res.Status)
	require.Equal(t, int64(10), res.CreditsGranted)
	require.Equal(t, 1, ledger.creditN)
}
