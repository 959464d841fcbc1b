package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mw "github.com/topservers/credits/internal/app/api/middleware"
	"github.com/topservers/credits/internal/app/service/order"
	"github.com/topservers/credits/internal/app/service/payment"
	"github.com/topservers/credits/internal/app/service/reconcile"
	"github.com/topservers/credits/internal/models"
	"github.com/topservers/credits/pkg/apperr"
	"github.com/topservers/credits/pkg/response"
)

type orderView struct {
	*models.Order
	DerivedStatus string `json:"derived_status"`
}

// @Summary      Create payment
// @Description  Creates an order and a pending transaction, then an external payment with the chosen provider. Returns the checkout URL.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body payment.CreatePaymentRequest true "Payment creation request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments [post]
func ApiCreatePayment(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.CreatePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := svc.CreatePayment(c.Request.Context(), mw.UserID(c), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Poll transaction status
// @Description  Re-fetches provider-side status for one of the caller's transactions and reconciles it.
// @Tags         Payment
// @Produce      json
// @Param        id path string true "Transaction ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/{id}/poll [post]
func ApiPollTransaction(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Poll(c.Request.Context(), mw.UserID(c), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Credit balance
// @Description  Returns the caller's credit balance.
// @Tags         Credits
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/credits/balance [get]
func ApiGetBalance(ledger reconcile.CreditLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		balance, err := ledger.GetBalance(c.Request.Context(), mw.UserID(c))
		if err != nil && !apperr.IsNotFound(err) {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}
		// A user without a credit profile simply has zero credits.
		c.JSON(http.StatusOK, response.OKT(map[string]int64{"credits": balance}))
	}
}

// @Summary      Get order
// @Description  Returns one of the caller's orders with its derived status.
// @Tags         Payment
// @Produce      json
// @Param        id path string true "Order ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/orders/{id} [get]
func ApiGetOrder(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := orders.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}
		if o.UserID != mw.UserID(c) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, "order not found"))
			return
		}
		view := orderView{Order: o, DerivedStatus: string(o.DerivedStatus(time.Now()))}
		c.JSON(http.StatusOK, response.OKT(view))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, svc *payment.Service, orders *order.Service, ledger reconcile.CreditLedger) {
	r.POST("/payments", ApiCreatePayment(svc))
	r.POST("/payments/:id/poll", ApiPollTransaction(svc))
	r.GET("/credits/balance", ApiGetBalance(ledger))
	r.GET("/orders/:id", ApiGetOrder(orders))
}
