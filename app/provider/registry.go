package provider

import (
	"errors"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

// Registry resolves gateways by payment mode. The first gateway passed to
// NewRegistry is the one new orders are created with.
type Registry struct {
	gateways map[entity.PaymentMode]Gateway
	primary  Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	items := make(map[entity.PaymentMode]Gateway, len(gateways))
	var primary Gateway
	for _, g := range gateways {
		if g == nil {
			continue
		}
		if primary == nil {
			primary = g
		}
		items[g.Mode()] = g
	}
	return &Registry{gateways: items, primary: primary}
}

func (r *Registry) Get(mode entity.PaymentMode) (Gateway, error) {
	gateway, ok := r.gateways[mode]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return gateway, nil
}

func (r *Registry) Primary() (Gateway, error) {
	if r.primary == nil {
		return nil, ErrProviderNotSupported
	}
	return r.primary, nil
}
