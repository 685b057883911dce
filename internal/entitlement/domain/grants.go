package domain

import (
	"fmt"
	"sort"

	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
)

// Grants maps a paid product kind to the credits it adds.
type Grants map[orderdomain.ProductKind]map[Kind]int64

// NewGrants converts a catalog grant table keyed by product and credit kind
// names. A nil table yields no grants.
func NewGrants(table map[string]map[string]int64) (Grants, error) {
	grants := Grants{}
	for product, credits := range table {
		productKind, ok := orderdomain.ParseProductKind(product)
		if !ok {
			return nil, fmt.Errorf("%w: unknown product %q", ErrInvalidGrantConfig, product)
		}
		if _, dup := grants[productKind]; dup {
			return nil, fmt.Errorf("%w: product %q listed twice", ErrInvalidGrantConfig, productKind)
		}

		units := make(map[Kind]int64, len(credits))
		for name, n := range credits {
			kind, ok := ParseKind(name)
			if !ok {
				return nil, fmt.Errorf("%w: unknown entitlement %q", ErrInvalidGrantConfig, name)
			}
			if n <= 0 {
				return nil, fmt.Errorf("%w: %s.%s must be positive", ErrInvalidGrantConfig, productKind, kind)
			}
			units[kind] += n
		}
		grants[productKind] = units
	}
	return grants, nil
}

// For returns the credits granted by product in a stable order.
func (g Grants) For(product orderdomain.ProductKind) []Credit {
	credits := g[product]
	out := make([]Credit, 0, len(credits))
	for kind, units := range credits {
		out = append(out, Credit{Kind: kind, Units: units})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

type Credit struct {
	Kind  Kind
	Units int64
}

// GrantSource yields the grant table in effect right now.
type GrantSource interface {
	Grants() (Grants, error)
}

type GrantSourceFunc func() (Grants, error)

func (f GrantSourceFunc) Grants() (Grants, error) { return f() }

// StaticGrants is a GrantSource that never changes.
func StaticGrants(g Grants) GrantSource {
	return GrantSourceFunc(func() (Grants, error) { return g, nil })
}
