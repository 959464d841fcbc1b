package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/topservers/credits/pkg/apperr"
	"github.com/topservers/credits/pkg/types"
)

func signIPN(body, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func ipnBody(values url.Values) string {
	return values.Encode()
}

func TestCoinPaymentsParseWebhook_ValidHMAC(t *testing.T) {
	cfg := testConfig()
	a := NewCoinPaymentsAdapter(cfg)

	body := ipnBody(url.Values{
		"ipn_id":    {"ipn-123"},
		"custom":    {"tx-1"},
		"status":    {"100"},
		"amount1":   {"10.50"},
		"currency1": {"USD"},
	})
	header := http.Header{}
	header.Set("HMAC", signIPN(body, "ipn-secret"))

	n, err := a.ParseWebhook(context.Background(), []byte(body), header)
	require.NoError(t, err)
	require.Equal(t, types.PaymentProviderCoinPayments, n.Provider)
	require.Equal(t, types.ChannelWebhook, n.Channel)
	require.Equal(t, RefKindTransactionID, n.RefKind)
	require.Equal(t, "tx-1", n.Reference)
	require.Equal(t, "100", n.ProviderStatus)
	require.Equal(t, "ipn-123", n.NotificationID)
	require.Equal(t, int64(1050), n.AmountCents)
}

func TestCoinPaymentsParseWebhook_BadHMACRejectedBeforeParsing(t *testing.T) {
	a := NewCoinPaymentsAdapter(testConfig())

	body := "custom=tx-1&status=100"
	header := http.Header{}
	header.Set("HMAC", signIPN(body, "wrong-secret"))

	_, err := a.ParseWebhook(context.Background(), []byte(body), header)
	require.Error(t, err)
	require.True(t, apperr.IsAuthentication(err))
}

func TestCoinPaymentsParseWebhook_MissingHMAC(t *testing.T) {
	a := NewCoinPaymentsAdapter(testConfig())

	_, err := a.ParseWebhook(context.Background(), []byte("custom=tx-1"), http.Header{})
	require.Error(t, err)
	require.True(t, apperr.IsAuthentication(err))
}

func TestCoinPaymentsParseWebhook_ForeignMerchant(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.CoinPayments.MerchantID = "merchant-a"
	a := NewCoinPaymentsAdapter(cfg)

	body := ipnBody(url.Values{
		"merchant": {"merchant-b"},
		"custom":   {"tx-1"},
		"status":   {"100"},
	})
	header := http.Header{}
	header.Set("HMAC", signIPN(body, "ipn-secret"))

	_, err := a.ParseWebhook(context.Background(), []byte(body), header)
	require.Error(t, err)
	require.True(t, apperr.IsAuthentication(err))
}

func TestCoinPaymentsParseRedirect(t *testing.T) {
	a := NewCoinPaymentsAdapter(testConfig())

	n, err := a.ParseRedirect(context.Background(), url.Values{"tx": {"tx-1"}})
	require.NoError(t, err)
	require.Equal(t, "tx-1", n.Reference)
	require.Equal(t, types.ChannelRedirect, n.Channel)
	// No trustable status in the query: the engine has to re-fetch it.
	require.Empty(t, n.ProviderStatus)

	_, err = a.ParseRedirect(context.Background(), url.Values{})
	require.Error(t, err)
	require.True(t, apperr.IsValidation(err))
}
