package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/topservers/credits/internal/app/service/order"
	"github.com/topservers/credits/internal/app/service/provider"
	"github.com/topservers/credits/internal/app/service/reconcile"
	"github.com/topservers/credits/internal/app/service/txstore"
	"github.com/topservers/credits/internal/models"
	"github.com/topservers/credits/pkg/apperr"
	cfgpkg "github.com/topservers/credits/pkg/config"
	"github.com/topservers/credits/pkg/logctx"
	"github.com/topservers/credits/pkg/tool"
	"github.com/topservers/credits/pkg/types"
)

// Service orchestrates payment creation: order, local pending
// transaction, then the external provider call. The local row is created
// before the provider is contacted so a crashed or failed external call
// still leaves an auditable record.
type Service struct {
	cfg    *cfgpkg.Config
	reg    *provider.Registry
	orders *order.Service
	store  *txstore.Store
	engine *reconcile.Engine
	log    *zap.SugaredLogger
}

func NewService(cfg *cfgpkg.Config, reg *provider.Registry, orders *order.Service, store *txstore.Store, engine *reconcile.Engine, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, reg: reg, orders: orders, store: store, engine: engine, log: log}
}

type CreatePaymentRequest struct {
	PackageID string `json:"package_id"`
	// Credits allows an ad-hoc purchase when no package is given;
	// priced at 1 credit = 1 USD.
	Credits     int64                 `json:"credits"`
	Provider    types.PaymentProvider `json:"provider"`
	PayCurrency string                `json:"pay_currency,omitempty"`
	BuyerEmail  string                `json:"buyer_email,omitempty"`
}

type CreatePaymentResult struct {
	OrderID         string `json:"order_id"`
	TransactionID   string `json:"transaction_id"`
	ExternalID      string `json:"external_id"`
	CheckoutURL     string `json:"checkout_url"`
	Credits         int64  `json:"credits"`
	FinalPriceCents int64  `json:"final_price_cents"`
}

func (s *Service) CreatePayment(ctx context.Context, userID string, req *CreatePaymentRequest) (*CreatePaymentResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", apperr.ErrAuthentication)
	}
	if !req.Provider.Valid() {
		return nil, fmt.Errorf("%w: unknown provider %q", apperr.ErrValidation, req.Provider)
	}

	credits := req.Credits
	baseCents := credits * 100
	packageID := req.PackageID
	if packageID != "" {
		pkg := s.cfg.GetCreditPackageByID(packageID)
		if pkg == nil {
			return nil, fmt.Errorf("%w: unknown package %q", apperr.ErrValidation, packageID)
		}
		credits = pkg.Credits
		baseCents = pkg.BasePriceCents
	}
	if credits < 1 {
		return nil, fmt.Errorf("%w: credits must be >= 1", apperr.ErrValidation)
	}

	adapter, err := s.reg.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.Create(ctx, &order.CreateOrderRequest{
		UserID:          userID,
		PackageID:       packageID,
		Provider:        req.Provider,
		Credits:         credits,
		BasePriceCents:  baseCents,
		FinalPriceCents: adapter.FinalAmountCents(baseCents),
	})
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:             tool.GenerateUUIDV7(),
		UserID:         userID,
		Provider:       req.Provider,
		OrderID:        &o.ID,
		Credits:        credits,
		AmountUSDCents: o.FinalPriceCents,
		Currency:       "USD",
		Status:         types.TransactionStatusPending,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		return nil, err
	}

	created, err := adapter.CreatePayment(ctx, &provider.CreateRequest{
		TransactionID: tx.ID,
		UserID:        userID,
		Credits:       credits,
		BaseCents:     baseCents,
		Currency:      "USD",
		PayCurrency:   req.PayCurrency,
		BuyerEmail:    req.BuyerEmail,
	})
	if err != nil {
		// The pending row stays for audit; the user can retry with a
		// fresh payment attempt.
		logctx.FromCtx(ctx, s.log).Warnw("provider payment creation failed",
			"provider", req.Provider, "transaction_id", tx.ID, "err", err)
		return nil, err
	}

	if err := s.store.SetExternalID(ctx, tx.ID, created.ExternalID); err != nil {
		return nil, err
	}

	return &CreatePaymentResult{
		OrderID:         o.ID,
		TransactionID:   tx.ID,
		ExternalID:      created.ExternalID,
		CheckoutURL:     created.CheckoutURL,
		Credits:         credits,
		FinalPriceCents: o.FinalPriceCents,
	}, nil
}

// Poll re-fetches provider-side status for one of the caller's pending
// transactions and feeds it through the reconcile engine.
func (s *Service) Poll(ctx context.Context, userID, transactionID string) (*reconcile.Result, error) {
	tx, err := s.store.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, fmt.Errorf("%w: transaction %s", apperr.ErrNotFound, transactionID)
	}

	adapter, err := s.reg.Get(tx.Provider)
	if err != nil {
		return nil, err
	}
	n, err := adapter.Poll(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.engine.Reconcile(ctx, n)
}
