package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/topservers/credits/internal/models"
	mppkg "github.com/topservers/credits/internal/platform/providers/mercadopago"
	"github.com/topservers/credits/pkg/apperr"
	cfgpkg "github.com/topservers/credits/pkg/config"
	"github.com/topservers/credits/pkg/types"
)

// MercadoPagoAdapter joins notifications on the external_reference field,
// which carries our transaction id. Webhooks only deliver a payment id;
// the payment is always re-read through the authenticated API.
type MercadoPagoAdapter struct {
	cli *mppkg.Client
	cfg *cfgpkg.Config
}

func NewMercadoPagoAdapter(cfg *cfgpkg.Config) *MercadoPagoAdapter {
	return &MercadoPagoAdapter{
		cli: mppkg.NewClient(mppkg.Options{
			BaseURL:     cfg.Providers.MercadoPago.BaseURL,
			AccessToken: cfg.Providers.MercadoPago.AccessToken,
		}),
		cfg: cfg,
	}
}

func (a *MercadoPagoAdapter) Provider() types.PaymentProvider {
	return types.PaymentProviderMercadoPago
}

// FinalAmountCents inverts the percentage fee so the net amount received
// equals the base price.
func (a *MercadoPagoAdapter) FinalAmountCents(baseCents int64) int64 {
	return feeInvert(baseCents, 0, a.cfg.Providers.MercadoPago.FeePct)
}

func (a *MercadoPagoAdapter) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	base := a.cfg.Server.BaseURL
	pref, err := a.cli.CreatePreference(ctx, &mppkg.CreatePreferenceRequest{
		ExternalReference: req.TransactionID,
		Title:             fmt.Sprintf("%d credits", req.Credits),
		UnitPrice:         centsToDecimal(a.FinalAmountCents(req.BaseCents)),
		Currency:          "USD",
		SuccessURL:        base + "/payments/success/mercadopago",
		FailureURL:        base + "/payments/cancel/mercadopago",
		NotificationURL:   base + "/webhooks/mercadopago",
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{ExternalID: pref.ID, CheckoutURL: pref.InitPoint}, nil
}

// TranslateStatus: approved is the only success, rejected/cancelled are
// failures, everything else (in_process, pending, authorized, unknown
// future statuses) stays pending.
func (a *MercadoPagoAdapter) TranslateStatus(providerStatus string) types.Outcome {
	switch providerStatus {
	case "approved":
		return types.OutcomeCompleted
	case "rejected", "cancelled":
		return types.OutcomeFailed
	default:
		return types.OutcomePending
	}
}

type mercadoPagoWebhookEvent struct {
	ID   json.Number `json:"id"`
	Type string      `json:"type"`
	Data struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

func (a *MercadoPagoAdapter) ParseWebhook(ctx context.Context, rawBody []byte, header http.Header) (*Notification, error) {
	var evt mercadoPagoWebhookEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", apperr.ErrValidation)
	}
	if evt.Type != "payment" || evt.Data.ID.String() == "" {
		// merchant_order and test events carry nothing to reconcile
		return nil, fmt.Errorf("%w: unhandled webhook type %q", apperr.ErrValidation, evt.Type)
	}

	payment, err := a.cli.GetPayment(ctx, evt.Data.ID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: payment %s not verifiable: %v", apperr.ErrAuthentication, evt.Data.ID, err)
	}

	var payload map[string]any
	_ = json.Unmarshal(rawBody, &payload)

	return a.notificationFromPayment(payment, types.ChannelWebhook, evt.ID.String(), payload), nil
}

// ParseRedirect handles the buyer returning from checkout. The query
// carries payment_id; status always comes from the authenticated re-read,
// never from the query string.
func (a *MercadoPagoAdapter) ParseRedirect(ctx context.Context, query url.Values) (*Notification, error) {
	paymentID := query.Get("payment_id")
	if paymentID == "" {
		paymentID = query.Get("collection_id")
	}
	if paymentID == "" {
		return nil, fmt.Errorf("%w: missing payment_id parameter", apperr.ErrValidation)
	}
	payment, err := a.cli.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: payment %s not verifiable: %v", apperr.ErrAuthentication, paymentID, err)
	}
	return a.notificationFromPayment(payment, types.ChannelRedirect, "", map[string]any{"query": query.Encode()}), nil
}

func (a *MercadoPagoAdapter) Poll(ctx context.Context, tx *models.Transaction) (*Notification, error) {
	payments, err := a.cli.SearchPaymentsByReference(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		// No payment attempt yet; report pending.
		return &Notification{
			Provider:  a.Provider(),
			Channel:   types.ChannelPoll,
			RefKind:   RefKindTransactionID,
			Reference: tx.ID,
			Payload:   map[string]any{"search_results": 0},
		}, nil
	}
	return a.notificationFromPayment(payments[0], types.ChannelPoll, "", nil), nil
}

func (a *MercadoPagoAdapter) notificationFromPayment(p *mppkg.Payment, channel types.Channel, notificationID string, payload map[string]any) *Notification {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["payment_id"] = p.ID
	payload["status"] = p.Status
	payload["status_detail"] = p.StatusDetail
	if notificationID == "" {
		notificationID = strconv.FormatInt(p.ID, 10)
	}
	return &Notification{
		Provider:       a.Provider(),
		Channel:        channel,
		NotificationID: notificationID,
		RefKind:        RefKindTransactionID,
		Reference:      p.ExternalReference,
		ProviderStatus: p.Status,
		AmountCents:    int64(p.TransactionAmount * 100),
		Currency:       p.CurrencyID,
		Payload:        payload,
	}
}
