package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/topservers/credits/internal/app/api/server"
	"github.com/topservers/credits/internal/app/service/ledger"
	"github.com/topservers/credits/internal/app/service/notificationlog"
	"github.com/topservers/credits/internal/app/service/order"
	"github.com/topservers/credits/internal/app/service/payment"
	"github.com/topservers/credits/internal/app/service/provider"
	"github.com/topservers/credits/internal/app/service/reconcile"
	"github.com/topservers/credits/internal/app/service/txstore"
	"github.com/topservers/credits/internal/platform/cache"
	"github.com/topservers/credits/internal/platform/db"
	"github.com/topservers/credits/pkg/config"
	"github.com/topservers/credits/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	cache.Module,
	provider.Module,
	txstore.Module,
	ledger.Module,
	order.Module,
	notificationlog.Module,
	reconcile.Module,
	payment.Module,
	server.Module,
)
