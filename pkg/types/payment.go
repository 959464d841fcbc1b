package types

type PaymentProvider string

const (
	PaymentProviderCoinPayments PaymentProvider = "coinpayments"
	PaymentProviderPayPal       PaymentProvider = "paypal"
	PaymentProviderMercadoPago  PaymentProvider = "mercadopago"
)

func (p PaymentProvider) Valid() bool {
	switch p {
	case PaymentProviderCoinPayments, PaymentProviderPayPal, PaymentProviderMercadoPago:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Outcome is the normalized result of a provider status. Every
// provider-specific status maps to exactly one outcome; unknown statuses
// map to OutcomePending, never to success.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
)

// Channel identifies how a notification reached us. The reconcile engine
// is channel-agnostic; the channel is recorded for audit only.
type Channel string

const (
	ChannelWebhook  Channel = "webhook"
	ChannelRedirect Channel = "redirect"
	ChannelPoll     Channel = "poll"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusExpired   OrderStatus = "expired"
)

// CreditPackage is a purchasable bundle of credits, configured per deploy.
// BasePriceCents is the net amount we want to receive; the per-provider fee
// markup is applied on top at order time.
type CreditPackage struct {
	ID             string `json:"id" mapstructure:"id"`
	Credits        int64  `json:"credits" mapstructure:"credits"`
	BasePriceCents int64  `json:"base_price_cents" mapstructure:"base_price_cents"`
}
