package entitlement

import (
	"github.com/smallbiznis/orderdesk/internal/entitlement/domain"
	"github.com/smallbiznis/orderdesk/internal/entitlement/repository"
	"github.com/smallbiznis/orderdesk/internal/entitlement/service"
	paymentdomain "github.com/smallbiznis/orderdesk/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.CatalogGrants),
	fx.Provide(
		fx.Annotate(
			func(svc domain.Service, grants domain.GrantSource) paymentdomain.PaidEffect {
				return service.NewGrantEffect(svc, grants)
			},
			fx.ResultTags(`group:"paid_effects"`),
		),
	),
)
