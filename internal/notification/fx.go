package notification

import (
	"context"

	"github.com/smallbiznis/orderdesk/internal/notification/domain"
	"github.com/smallbiznis/orderdesk/internal/notification/service"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(service.NewDispatcher),
	fx.Provide(func(d *service.Dispatcher) domain.Notifier { return d }),
	fx.Provide(
		fx.Annotate(
			func(n domain.Notifier) orderdomain.Observer { return service.NewOrderObserver(n) },
			fx.ResultTags(`group:"order_observers"`),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, d *service.Dispatcher) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				done := make(chan struct{})
				go func() {
					d.Wait()
					close(done)
				}()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}),
)
