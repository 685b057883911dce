package service

import (
	"context"

	"github.com/smallbiznis/orderdesk/internal/notification/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
)

var transitionKinds = map[orderdomain.Status]domain.Kind{
	orderdomain.StatusPaid:      domain.KindPaymentConfirmed,
	orderdomain.StatusCompleted: domain.KindOrderCompleted,
	orderdomain.StatusCancelled: domain.KindOrderCancelled,
}

// OrderObserver turns committed order transitions into customer
// notifications.
type OrderObserver struct {
	notifier domain.Notifier
}

func NewOrderObserver(notifier domain.Notifier) *OrderObserver {
	return &OrderObserver{notifier: notifier}
}

func (o *OrderObserver) OrderTransitioned(ctx context.Context, order orderdomain.Order, from orderdomain.Status) {
	kind, ok := transitionKinds[order.Status]
	if !ok || from == order.Status {
		return
	}
	o.notifier.Notify(ctx, domain.Notification{
		Kind:        kind,
		OrderID:     order.ID,
		Recipient:   order.CustomerEmail,
		Customer:    order.CustomerName,
		ProductKind: order.ProductKind.Label(),
	})
}

var _ orderdomain.Observer = (*OrderObserver)(nil)
