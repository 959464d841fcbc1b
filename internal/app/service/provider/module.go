package provider

import "go.uber.org/fx"

// Module exposes the provider adapters and their registry via Fx.
var Module = fx.Options(
	fx.Provide(NewCoinPaymentsAdapter),
	fx.Provide(NewPayPalAdapter),
	fx.Provide(NewMercadoPagoAdapter),
	fx.Provide(NewRegistry),
)
