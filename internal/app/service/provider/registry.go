package provider

import (
	"fmt"

	"github.com/topservers/credits/pkg/apperr"
	"github.com/topservers/credits/pkg/types"
)

// Registry holds one adapter per provider. Endpoints are provider-specific
// and look their adapter up explicitly; nothing is guessed from headers.
type Registry struct {
	adapters map[types.PaymentProvider]Adapter
}

func NewRegistry(cp *CoinPaymentsAdapter, pp *PayPalAdapter, mp *MercadoPagoAdapter) *Registry {
	r := &Registry{adapters: map[types.PaymentProvider]Adapter{}}
	for _, a := range []Adapter{cp, pp, mp} {
		r.adapters[a.Provider()] = a
	}
	return r
}

func (r *Registry) Get(p types.PaymentProvider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", apperr.ErrValidation, p)
	}
	return a, nil
}
