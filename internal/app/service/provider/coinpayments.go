package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/topservers/credits/internal/models"
	cppkg "github.com/topservers/credits/internal/platform/providers/coinpayments"
	"github.com/topservers/credits/pkg/apperr"
	cfgpkg "github.com/topservers/credits/pkg/config"
	"github.com/topservers/credits/pkg/types"
)

// CoinPaymentsAdapter charges no markup (the buyer covers network fees on
// the crypto side) and authenticates IPNs with an HMAC-SHA512 over the raw
// POST body.
type CoinPaymentsAdapter struct {
	cli *cppkg.Client
	cfg *cfgpkg.Config
}

func NewCoinPaymentsAdapter(cfg *cfgpkg.Config) *CoinPaymentsAdapter {
	return &CoinPaymentsAdapter{
		cli: cppkg.NewClient(cppkg.Options{
			BaseURL:    cfg.Providers.CoinPayments.BaseURL,
			PublicKey:  cfg.Providers.CoinPayments.PublicKey,
			PrivateKey: cfg.Providers.CoinPayments.PrivateKey,
			IPNSecret:  cfg.Providers.CoinPayments.IPNSecret,
			MerchantID: cfg.Providers.CoinPayments.MerchantID,
		}),
		cfg: cfg,
	}
}

func (a *CoinPaymentsAdapter) Provider() types.PaymentProvider {
	return types.PaymentProviderCoinPayments
}

func (a *CoinPaymentsAdapter) FinalAmountCents(baseCents int64) int64 {
	return baseCents
}

func (a *CoinPaymentsAdapter) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	base := a.cfg.Server.BaseURL
	payCurrency := req.PayCurrency
	if payCurrency == "" {
		payCurrency = "BTC"
	}
	res, err := a.cli.CreateTransaction(ctx, &cppkg.CreateTransactionRequest{
		AmountUSD:  centsToDecimal(a.FinalAmountCents(req.BaseCents)),
		Currency2:  payCurrency,
		BuyerEmail: req.BuyerEmail,
		Custom:     req.TransactionID,
		IPNURL:     base + "/webhooks/coinpayments",
		SuccessURL: base + "/payments/success/coinpayments?tx=" + url.QueryEscape(req.TransactionID),
		CancelURL:  base + "/payments/cancel/coinpayments?tx=" + url.QueryEscape(req.TransactionID),
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{ExternalID: res.TxnID, CheckoutURL: res.CheckoutURL}, nil
}

// TranslateStatus maps CoinPayments numeric statuses: >=100 means funds
// are confirmed and forwarded, negative means cancelled/timed out,
// everything in between is still confirming. Non-numeric input is pending.
func (a *CoinPaymentsAdapter) TranslateStatus(providerStatus string) types.Outcome {
	n, err := strconv.Atoi(providerStatus)
	if err != nil {
		return types.OutcomePending
	}
	switch {
	case n >= 100:
		return types.OutcomeCompleted
	case n < 0:
		return types.OutcomeFailed
	default:
		return types.OutcomePending
	}
}

func (a *CoinPaymentsAdapter) ParseWebhook(ctx context.Context, rawBody []byte, header http.Header) (*Notification, error) {
	// Authenticate before parsing anything.
	if err := a.cli.VerifyIPN(rawBody, header.Get("HMAC")); err != nil {
		return nil, err
	}

	form, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed IPN body", apperr.ErrValidation)
	}
	if m := a.cli.MerchantID(); m != "" && form.Get("merchant") != m {
		return nil, fmt.Errorf("%w: IPN for foreign merchant", apperr.ErrAuthentication)
	}

	payload := map[string]any{}
	for k := range form {
		payload[k] = form.Get(k)
	}

	var amountCents int64
	if f, err := strconv.ParseFloat(form.Get("amount1"), 64); err == nil {
		amountCents = int64(f * 100)
	}

	return &Notification{
		Provider:       a.Provider(),
		Channel:        types.ChannelWebhook,
		NotificationID: form.Get("ipn_id"),
		RefKind:        RefKindTransactionID,
		Reference:      form.Get("custom"),
		ProviderStatus: form.Get("status"),
		AmountCents:    amountCents,
		Currency:       form.Get("currency1"),
		Payload:        payload,
	}, nil
}

// ParseRedirect handles the buyer returning from checkout. The redirect
// query is untrusted and carries no status, so the engine re-fetches the
// authoritative state from the provider via Poll.
func (a *CoinPaymentsAdapter) ParseRedirect(ctx context.Context, query url.Values) (*Notification, error) {
	txID := query.Get("tx")
	if txID == "" {
		return nil, fmt.Errorf("%w: missing tx parameter", apperr.ErrValidation)
	}
	return &Notification{
		Provider:  a.Provider(),
		Channel:   types.ChannelRedirect,
		RefKind:   RefKindTransactionID,
		Reference: txID,
		Payload:   map[string]any{"query": query.Encode()},
	}, nil
}

func (a *CoinPaymentsAdapter) Poll(ctx context.Context, tx *models.Transaction) (*Notification, error) {
	if tx.ExternalRef() == "" {
		return nil, fmt.Errorf("%w: transaction has no provider id yet", apperr.ErrValidation)
	}
	info, err := a.cli.GetTxInfo(ctx, tx.ExternalRef())
	if err != nil {
		return nil, err
	}
	return &Notification{
		Provider:       a.Provider(),
		Channel:        types.ChannelPoll,
		RefKind:        RefKindTransactionID,
		Reference:      tx.ID,
		ProviderStatus: strconv.Itoa(info.Status),
		Currency:       "USD",
		Payload:        map[string]any{"status": info.Status, "status_text": info.StatusText, "receivedf": info.ReceivedF},
	}, nil
}
