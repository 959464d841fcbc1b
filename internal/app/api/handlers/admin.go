package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/topservers/credits/internal/app/service/notificationlog"
	"github.com/topservers/credits/internal/app/service/txstore"
	"github.com/topservers/credits/pkg/response"
)

// @Summary      List transactions
// @Description  Paginated transaction listing with filters, admin only.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body txstore.ScanRequest true "Scan request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/transactions/scan [post]
func ApiAdminScanTransactions(store *txstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req txstore.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := store.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List transactions needing manual review
// @Description  Completed transactions whose ledger credit failed; the buyer paid but has not been credited yet.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/transactions/needs-review [get]
func ApiAdminNeedsReview(store *txstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := store.ListNeedsReview(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

// @Summary      List notification logs
// @Description  Recent inbound payment notifications and how each was handled.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body notificationlog.ListRequest true "List request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/notification-logs [post]
func ApiAdminListNotificationLogs(logs *notificationlog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notificationlog.ListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		rows, err := logs.List(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

func RegisterAdminRoutes(r gin.IRouter, store *txstore.Store, logs *notificationlog.Service) {
	r.POST("/transactions/scan", ApiAdminScanTransactions(store))
	r.GET("/transactions/needs-review", ApiAdminNeedsReview(store))
	r.POST("/notification-logs", ApiAdminListNotificationLogs(logs))
}
