package service

import (
	"context"

	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/entitlement/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	paymentdomain "github.com/smallbiznis/orderdesk/internal/payment/domain"
	"gorm.io/gorm"
)

// GrantEffect credits the paying account when an order of a configured
// product kind is reconciled. It runs in the reconciliation transaction, so
// an error rolls the PAID transition back.
type GrantEffect struct {
	svc    domain.Service
	grants domain.GrantSource
}

func NewGrantEffect(svc domain.Service, grants domain.GrantSource) *GrantEffect {
	return &GrantEffect{svc: svc, grants: grants}
}

func (e *GrantEffect) Name() string { return "entitlement_grant" }

func (e *GrantEffect) Apply(ctx context.Context, tx *gorm.DB, order orderdomain.Order) error {
	grants, err := e.grants.Grants()
	if err != nil {
		return err
	}
	for _, credit := range grants.For(order.ProductKind) {
		if err := e.svc.Grant(ctx, tx, order.AccountID, credit.Kind, credit.Units); err != nil {
			return err
		}
	}
	return nil
}

// CatalogGrants reads the grant table from the live catalog on every call.
func CatalogGrants(holder *config.CatalogHolder) domain.GrantSource {
	return domain.GrantSourceFunc(func() (domain.Grants, error) {
		return domain.NewGrants(holder.Get().Grants)
	})
}

var _ paymentdomain.PaidEffect = (*GrantEffect)(nil)
