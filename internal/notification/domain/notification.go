package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Kind string

const (
	KindPaymentConfirmed              Kind = "payment_confirmed"
	KindOrderCompleted                Kind = "order_completed"
	KindOrderCancelled                Kind = "order_cancelled"
	KindCriticalReconciliationFailure Kind = "critical_reconciliation_failure"
	KindStalePayment                  Kind = "stale_payment"
)

// Operational kinds go to operators, the rest to the customer.
func (k Kind) Operational() bool {
	return k == KindCriticalReconciliationFailure || k == KindStalePayment
}

// Notification is a fire-and-forget trigger. OrderID is zero when the event
// could not be tied to an order.
type Notification struct {
	Kind        Kind
	OrderID     snowflake.ID
	EventID     string
	EventType   string
	Detail      string
	Recipient   string
	Customer    string
	ProductKind string
}

// Notifier never blocks the caller and never reports delivery failure back;
// a committed state change must not depend on it.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
