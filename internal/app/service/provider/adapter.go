package provider

import (
	"context"
	"math"
	"net/http"
	"net/url"

	"github.com/topservers/credits/internal/models"
	"github.com/topservers/credits/pkg/types"
)

// RefKind says which transaction field an inbound notification joins on.
// CoinPayments and MercadoPago echo back our transaction id in a custom
// field; PayPal notifications only carry the provider order id.
type RefKind string

const (
	RefKindTransactionID RefKind = "transaction_id"
	RefKindExternalID    RefKind = "external_id"
)

// Notification is the provider-agnostic form of one inbound payment
// status message, whichever channel delivered it. Adapters authenticate
// the raw payload before producing one; a Notification therefore always
// represents a verified message.
type Notification struct {
	Provider       types.PaymentProvider
	Channel        types.Channel
	NotificationID string // provider event/ipn id when present, used for advisory dedupe
	RefKind        RefKind
	Reference      string
	ProviderStatus string
	AmountCents    int64
	Currency       string
	Payload        map[string]any // raw payload for the audit trail
}

type CreateRequest struct {
	TransactionID string
	UserID        string
	Credits       int64
	BaseCents     int64
	Currency      string
	// PayCurrency is the buyer-side currency for providers that need one
	// (the crypto coin for CoinPayments).
	PayCurrency string
	BuyerEmail  string
}

type CreateResult struct {
	// ExternalID is the provider-assigned id for this payment.
	ExternalID string
	// CheckoutURL is where the buyer goes to approve/pay.
	CheckoutURL string
}

// Adapter hides one provider's request/response shapes behind a common
// contract. Implementations are stateless strategy objects registered in
// the Registry by provider name.
type Adapter interface {
	Provider() types.PaymentProvider

	// FinalAmountCents applies the provider's fee markup so the net amount
	// received after fees equals the base price.
	FinalAmountCents(baseCents int64) int64

	// CreatePayment creates the external payment. The local transaction
	// row already exists in pending state before this is called.
	CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error)

	// TranslateStatus maps a provider status to the generic outcome. Pure
	// and total: every input maps to exactly one outcome, unknown statuses
	// default to pending.
	TranslateStatus(providerStatus string) types.Outcome

	// ParseWebhook authenticates and normalizes an async push
	// notification. Returns apperr.ErrAuthentication before any state is
	// touched when the payload cannot be verified.
	ParseWebhook(ctx context.Context, rawBody []byte, header http.Header) (*Notification, error)

	// ParseRedirect normalizes the browser-redirect "success" callback.
	// Query parameters are untrusted; adapters re-verify against the
	// provider API where the scheme allows it.
	ParseRedirect(ctx context.Context, query url.Values) (*Notification, error)

	// Poll re-fetches the provider-side status of an existing
	// transaction (the manual status-check channel).
	Poll(ctx context.Context, tx *models.Transaction) (*Notification, error)
}

// feeInvert computes the gross charge such that gross*(1-pct)-fixed lands
// back on the base amount.
func feeInvert(baseCents, fixedCents int64, pct float64) int64 {
	gross := (float64(baseCents) + float64(fixedCents)) / (1 - pct)
	return int64(math.Round(gross))
}

func centsToDecimal(cents int64) float64 {
	return float64(cents) / 100
}
