package payments

import (
	"fmt"
	"sort"
	"strings"
)

// SelectGateway picks a gateway for a payment method and currency.
//
//	mpesa / airtel_money / mobile_money + KES -> pesapal
//	mpesa / airtel_money / mobile_money + other currency -> flutterwave
//	card / bank / unspecified + KES -> pesapal
//	card / bank / unspecified + other currency -> flutterwave
//	anything else -> flutterwave
func SelectGateway(method, currency string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	kes := strings.EqualFold(strings.TrimSpace(currency), "KES")

	switch method {
	case "mpesa", "airtel_money", "mobile_money", "card", "bank", "":
		if kes {
			return Pesapal
		}
		return Flutterwave
	default:
		return Flutterwave
	}
}

// Router maps gateway names to configured adapters
type Router struct {
	gateways map[string]Gateway
}

// NewRouter creates a router over the given adapters
func NewRouter(gateways ...Gateway) *Router {
	r := &Router{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

// Get returns the adapter registered under name
func (r *Router) Get(name string) (Gateway, bool) {
	g, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

// Resolve returns the adapter for an explicit override, or the policy choice
// for method and currency when override is empty
func (r *Router) Resolve(method, currency, override string) (Gateway, error) {
	name := strings.ToLower(strings.TrimSpace(override))
	if name == "" {
		name = SelectGateway(method, currency)
	}

	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment gateway %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return g, nil
}

// Names lists the registered gateway names in sorted order
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
