package reconcile

import (
	"go.uber.org/fx"

	"github.com/topservers/credits/internal/app/service/ledger"
	"github.com/topservers/credits/internal/app/service/notificationlog"
	"github.com/topservers/credits/internal/app/service/order"
	"github.com/topservers/credits/internal/app/service/txstore"
	"github.com/topservers/credits/internal/platform/cache"
)

// Module binds the concrete stores to the engine's seams and exposes the
// engine via Fx.
var Module = fx.Options(
	fx.Provide(func(s *txstore.Store) TransactionStore { return s }),
	fx.Provide(func(s *ledger.Service) CreditLedger { return s }),
	fx.Provide(func(s *order.Service) OrderMarker { return s }),
	fx.Provide(func(d *cache.NotificationDeduper) Deduper { return d }),
	fx.Provide(func(s *notificationlog.Service) AuditLog { return s }),
	fx.Provide(NewEngine),
)
