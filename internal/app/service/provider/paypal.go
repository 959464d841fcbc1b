package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/topservers/credits/internal/models"
	pppkg "github.com/topservers/credits/internal/platform/providers/paypal"
	"github.com/topservers/credits/pkg/apperr"
	cfgpkg "github.com/topservers/credits/pkg/config"
	"github.com/topservers/credits/pkg/types"
)

// PayPalAdapter joins notifications on the provider order id. Webhook
// payloads are never trusted: the order is always re-read through the
// authenticated REST API, so the provider itself is the source of truth.
type PayPalAdapter struct {
	cli *pppkg.Client
	cfg *cfgpkg.Config
}

func NewPayPalAdapter(cfg *cfgpkg.Config) *PayPalAdapter {
	return &PayPalAdapter{
		cli: pppkg.NewClient(pppkg.Options{
			BaseURL:      cfg.Providers.PayPal.BaseURL,
			ClientID:     cfg.Providers.PayPal.ClientID,
			ClientSecret: cfg.Providers.PayPal.ClientSecret,
		}),
		cfg: cfg,
	}
}

func (a *PayPalAdapter) Provider() types.PaymentProvider {
	return types.PaymentProviderPayPal
}

// FinalAmountCents inverts the percentage-plus-fixed fee so the net
// amount received equals the base price.
func (a *PayPalAdapter) FinalAmountCents(baseCents int64) int64 {
	return feeInvert(baseCents, a.cfg.Providers.PayPal.FeeFixedCents, a.cfg.Providers.PayPal.FeePct)
}

func (a *PayPalAdapter) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	base := a.cfg.Server.BaseURL
	order, err := a.cli.CreateOrder(ctx, &pppkg.CreateOrderRequest{
		ReferenceID: req.TransactionID,
		Value:       strconv.FormatFloat(centsToDecimal(a.FinalAmountCents(req.BaseCents)), 'f', 2, 64),
		Currency:    "USD",
		ReturnURL:   base + "/payments/success/paypal",
		CancelURL:   base + "/payments/cancel/paypal",
	})
	if err != nil {
		return nil, err
	}
	approve := order.ApproveURL()
	if approve == "" {
		return nil, fmt.Errorf("%w: paypal order %s has no approve link", apperr.ErrUpstream, order.ID)
	}
	return &CreateResult{ExternalID: order.ID, CheckoutURL: approve}, nil
}

// TranslateStatus maps capture/order statuses. COMPLETED is the only
// success; the explicit failure vocabulary maps to failed; everything
// else, including future statuses, stays pending.
func (a *PayPalAdapter) TranslateStatus(providerStatus string) types.Outcome {
	switch providerStatus {
	case "COMPLETED":
		return types.OutcomeCompleted
	case "DECLINED", "DENIED", "FAILED", "VOIDED":
		return types.OutcomeFailed
	default:
		return types.OutcomePending
	}
}

type paypalWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (a *PayPalAdapter) ParseWebhook(ctx context.Context, rawBody []byte, header http.Header) (*Notification, error) {
	var evt paypalWebhookEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", apperr.ErrValidation)
	}

	orderID := evt.Resource.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		orderID = evt.Resource.ID
	}
	if orderID == "" {
		return nil, fmt.Errorf("%w: webhook carries no order id", apperr.ErrValidation)
	}

	// Authenticity check: the order must exist when read back with our
	// API credentials. The webhook body itself decides nothing.
	order, err := a.cli.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s not verifiable: %v", apperr.ErrAuthentication, orderID, err)
	}

	var payload map[string]any
	_ = json.Unmarshal(rawBody, &payload)

	return &Notification{
		Provider:       a.Provider(),
		Channel:        types.ChannelWebhook,
		NotificationID: evt.ID,
		RefKind:        RefKindExternalID,
		Reference:      order.ID,
		ProviderStatus: order.Status,
		Currency:       "USD",
		Payload:        payload,
	}, nil
}

// ParseRedirect handles the buyer returning from PayPal approval. The
// redirect carries the order id as "token"; money only moves at capture,
// so approval is captured here and the capture status decides the
// outcome. A concurrent webhook may have captured first; that surfaces as
// an already-captured order and we fall back to reading it.
func (a *PayPalAdapter) ParseRedirect(ctx context.Context, query url.Values) (*Notification, error) {
	orderID := query.Get("token")
	if orderID == "" {
		return nil, fmt.Errorf("%w: missing token parameter", apperr.ErrValidation)
	}

	status := ""
	payload := map[string]any{"query": query.Encode()}
	if cap, err := a.cli.CaptureOrder(ctx, orderID); err == nil {
		status = cap.CaptureStatus()
		payload["capture_status"] = status
	} else {
		order, gerr := a.cli.GetOrder(ctx, orderID)
		if gerr != nil {
			return nil, fmt.Errorf("%w: order %s not verifiable: %v", apperr.ErrAuthentication, orderID, gerr)
		}
		status = order.Status
		payload["order_status"] = status
		payload["capture_error"] = err.Error()
	}

	return &Notification{
		Provider:       a.Provider(),
		Channel:        types.ChannelRedirect,
		RefKind:        RefKindExternalID,
		Reference:      orderID,
		ProviderStatus: status,
		Currency:       "USD",
		Payload:        payload,
	}, nil
}

func (a *PayPalAdapter) Poll(ctx context.Context, tx *models.Transaction) (*Notification, error) {
	if tx.ExternalRef() == "" {
		return nil, fmt.Errorf("%w: transaction has no provider id yet", apperr.ErrValidation)
	}
	order, err := a.cli.GetOrder(ctx, tx.ExternalRef())
	if err != nil {
		return nil, err
	}
	status := order.Status
	payload := map[string]any{"order_status": status}
	// An approved-but-uncaptured order means the buyer paid and we never
	// collected; capture now.
	if status == "APPROVED" {
		if cap, err := a.cli.CaptureOrder(ctx, tx.ExternalRef()); err == nil {
			status = cap.CaptureStatus()
			payload["capture_status"] = status
		}
	}
	return &Notification{
		Provider:       a.Provider(),
		Channel:        types.ChannelPoll,
		RefKind:        RefKindExternalID,
		Reference:      order.ID,
		ProviderStatus: status,
		Currency:       "USD",
		Payload:        payload,
	}, nil
}
