package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/topservers/credits/pkg/config"
	"github.com/topservers/credits/pkg/types"
)

func testConfig() *cfgpkg.Config {
	cfg := &cfgpkg.Config{}
	cfg.Server.BaseURL = "http://localhost:8888"
	cfg.Providers.CoinPayments.IPNSecret = "ipn-secret"
	cfg.Providers.PayPal.FeePct = 0.034
	cfg.Providers.PayPal.FeeFixedCents = 30
	cfg.Providers.MercadoPago.FeePct = 0.0499
	return cfg
}

func TestFeeInvert_NetRoundTrips(t *testing.T) {
	// gross*(1-pct)-fixed must land back on the base, within a cent.
	cases := []struct {
		base  int64
		fixed int64
		pct   float64
	}{
		{1000, 30, 0.034},
		{1000, 0, 0.0499},
		{499, 30, 0.034},
		{100000, 0, 0.0499},
	}
	for _, c := range cases {
		gross := feeInvert(c.base, c.fixed, c.pct)
		net := int64(float64(gross)*(1-c.pct)) - c.fixed
		require.InDelta(t, c.base, net, 1, "base=%d fixed=%d pct=%f gross=%d", c.base, c.fixed, c.pct, gross)
	}
}

func TestFinalAmountCents_PerProvider(t *testing.T) {
	cfg := testConfig()

	// Crypto carries no markup.
	require.Equal(t, int64(1000), NewCoinPaymentsAdapter(cfg).FinalAmountCents(1000))

	// (1000+30)/(1-0.034) = 1066.25 -> 1066
	require.Equal(t, int64(1066), NewPayPalAdapter(cfg).FinalAmountCents(1000))

	// 1000/(1-0.0499) = 1052.52 -> 1053
	require.Equal(t, int64(1053), NewMercadoPagoAdapter(cfg).FinalAmountCents(1000))
}

func TestTranslateStatus_CoinPayments(t *testing.T) {
	a := NewCoinPaymentsAdapter(testConfig())

	require.Equal(t, types.OutcomeCompleted, a.TranslateStatus("100"))
	require.Equal(t, types.OutcomeCompleted, a.TranslateStatus("200"))
	require.Equal(t, types.OutcomeFailed, a.TranslateStatus("-1"))
	require.Equal(t, types.OutcomeFailed, a.TranslateStatus("-2"))
	require.Equal(t, types.OutcomePending, a.TranslateStatus("0"))
	require.Equal(t, types.OutcomePending, a.TranslateStatus("1"))
	require.Equal(t, types.OutcomePending, a.TranslateStatus("99"))
	// Non-numeric noise never completes a payment.
	require.Equal(t, types.OutcomePending, a.TranslateStatus(""))
	require.Equal(t, types.OutcomePending, a.TranslateStatus("confirmed"))
}

func TestTranslateStatus_PayPal(t *testing.T) {
	a := NewPayPalAdapter(testConfig())

	require.Equal(t, types.OutcomeCompleted, a.TranslateStatus("COMPLETED"))
	for _, s := range []string{"DECLINED", "DENIED", "FAILED", "VOIDED"} {
		require.Equal(t, types.OutcomeFailed, a.TranslateStatus(s), s)
	}
	for _, s := range []string{"", "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED", "SOMETHING_NEW"} {
		require.Equal(t, types.OutcomePending, a.TranslateStatus(s), s)
	}
}

func TestTranslateStatus_MercadoPago(t *testing.T) {
	a := NewMercadoPagoAdapter(testConfig())

	require.Equal(t, types.OutcomeCompleted, a.TranslateStatus("approved"))
	require.Equal(t, types.OutcomeFailed, a.TranslateStatus("rejected"))
	require.Equal(t, types.OutcomeFailed, a.TranslateStatus("cancelled"))
	for _, s := range []string{"", "pending", "in_process", "authorized", "refunded", "charged_back"} {
		require.Equal(t, types.OutcomePending, a.TranslateStatus(s), s)
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	r := NewRegistry(NewCoinPaymentsAdapter(cfg), NewPayPalAdapter(cfg), NewMercadoPagoAdapter(cfg))

	a, err := r.Get(types.PaymentProviderPayPal)
	require.NoError(t, err)
	require.Equal(t, types.PaymentProviderPayPal, a.Provider())

	_, err = r.Get("stripe")
	require.Error(t, err)
}
