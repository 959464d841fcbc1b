package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/topservers/credits/internal/app/service/provider"
	cfgpkg "github.com/topservers/credits/pkg/config"
)

func testRegistry() *provider.Registry {
	cfg := &cfgpkg.Config{}
	cfg.Providers.CoinPayments.IPNSecret = "ipn-secret"
	return provider.NewRegistry(
		provider.NewCoinPaymentsAdapter(cfg),
		provider.NewPayPalAdapter(cfg),
		provider.NewMercadoPagoAdapter(cfg),
	)
}

func TestRegisterWebhookRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterWebhookRoutes(r, testRegistry(), nil)

	routes := r.Routes()
	contains := func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}

	require.True(t, contains("POST /webhooks/coinpayments"))
	require.True(t, contains("POST /webhooks/paypal"))
	require.True(t, contains("POST /webhooks/mercadopago"))
	require.True(t, contains("GET /payments/success/:provider"))
	require.True(t, contains("GET /payments/cancel/:provider"))
}

func TestCoinPaymentsWebhook_UnsignedRequestIs401(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// Engine stays nil: authentication must fail before any lookup happens.
	RegisterWebhookRoutes(r, testRegistry(), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/coinpayments", strings.NewReader("custom=tx-1&status=100"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaymentCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterWebhookRoutes(r, testRegistry(), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/cancel/paypal", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "cancelled")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/cancel/stripe", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "40000")
}
