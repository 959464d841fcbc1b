package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/topservers/credits/internal/app/service/provider"
	"github.com/topservers/credits/internal/app/service/reconcile"
	"github.com/topservers/credits/pkg/apperr"
	"github.com/topservers/credits/pkg/response"
	"github.com/topservers/credits/pkg/types"
)

// Each provider has its own webhook and redirect route; the adapter is
// looked up by the provider baked into the route, never inferred from the
// payload or headers.

// @Summary      CoinPayments IPN
// @Description  Receives a CoinPayments instant payment notification. The HMAC header is verified against the raw body before anything else happens.
// @Tags         Webhook
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /webhooks/coinpayments [post]
func ApiCoinPaymentsWebhook(reg *provider.Registry, engine *reconcile.Engine) gin.HandlerFunc {
	return webhookHandler(types.PaymentProviderCoinPayments, reg, engine)
}

// @Summary      PayPal webhook
// @Description  Receives a PayPal webhook event. The referenced order is re-fetched from the PayPal API; the pushed payload itself is never trusted.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /webhooks/paypal [post]
func ApiPayPalWebhook(reg *provider.Registry, engine *reconcile.Engine) gin.HandlerFunc {
	return webhookHandler(types.PaymentProviderPayPal, reg, engine)
}

// @Summary      MercadoPago webhook
// @Description  Receives a MercadoPago payment notification. The payment is re-fetched from the MercadoPago API by id; the pushed payload itself is never trusted.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /webhooks/mercadopago [post]
func ApiMercadoPagoWebhook(reg *provider.Registry, engine *reconcile.Engine) gin.HandlerFunc {
	return webhookHandler(types.PaymentProviderMercadoPago, reg, engine)
}

func webhookHandler(p types.PaymentProvider, reg *provider.Registry, engine *reconcile.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		adapter, err := reg.Get(p)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}

		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "unreadable body"))
			return
		}

		n, err := adapter.ParseWebhook(c.Request.Context(), rawBody, c.Request.Header)
		if err != nil {
			if errors.Is(err, apperr.ErrAuthentication) {
				c.JSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}

		res, err := engine.Reconcile(c.Request.Context(), n)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Payment return page
// @Description  Landing endpoint the provider redirects the buyer back to. Query parameters are untrusted and reconciled against provider-side state.
// @Tags         Webhook
// @Produce      json
// @Param        provider path string true "Payment provider" Enums(coinpayments, paypal, mercadopago)
// @Success      200  {object}  handlers.RespOK
// @Router       /payments/success/{provider} [get]
func ApiPaymentReturn(reg *provider.Registry, engine *reconcile.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := types.PaymentProvider(c.Param("provider"))
		adapter, err := reg.Get(p)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}

		n, err := adapter.ParseRedirect(c.Request.Context(), c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}

		res, err := engine.Reconcile(c.Request.Context(), n)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Payment cancel page
// @Description  Landing endpoint for buyers who abandon checkout. Nothing changes: the transaction stays pending and expires with its order.
// @Tags         Webhook
// @Produce      json
// @Param        provider path string true "Payment provider" Enums(coinpayments, paypal, mercadopago)
// @Success      200  {object}  handlers.RespOK
// @Router       /payments/cancel/{provider} [get]
func ApiPaymentCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := types.PaymentProvider(c.Param("provider"))
		if !p.Valid() {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "unknown provider"))
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "cancelled"}))
	}
}

// RegisterWebhookRoutes wires the unauthenticated provider-facing routes.
func RegisterWebhookRoutes(r gin.IRouter, reg *provider.Registry, engine *reconcile.Engine) {
	r.POST("/webhooks/coinpayments", ApiCoinPaymentsWebhook(reg, engine))
	r.POST("/webhooks/paypal", ApiPayPalWebhook(reg, engine))
	r.POST("/webhooks/mercadopago", ApiMercadoPagoWebhook(reg, engine))
	r.GET("/payments/success/:provider", ApiPaymentReturn(reg, engine))
	r.GET("/payments/cancel/:provider", ApiPaymentCancel())
}
