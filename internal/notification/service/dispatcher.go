package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/notification/domain"
	obscontext "github.com/smallbiznis/orderdesk/internal/observability/context"
	"github.com/smallbiznis/orderdesk/internal/observability/metrics"
	"github.com/smallbiznis/orderdesk/internal/providers/email"
	"github.com/smallbiznis/orderdesk/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const deliveryTimeout = 30 * time.Second

var errNoRecipient = errors.New("notification_no_recipient")

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Email   email.Provider
	Slack   slack.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

// Dispatcher delivers notifications in the background. Delivery runs on a
// context detached from the caller, so a finished HTTP request does not
// cancel it.
type Dispatcher struct {
	log      *zap.Logger
	email    email.Provider
	slack    slack.Provider
	opsEmail string
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		log:      p.Log.Named("notification.dispatcher"),
		email:    p.Email,
		slack:    p.Slack,
		opsEmail: strings.TrimSpace(p.Config.Alerts.OpsEmail),
		metrics:  p.Metrics,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) {
	ctx = context.WithoutCancel(ctx)
	correlationID := obscontext.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = ulid.Make().String()
		ctx = obscontext.WithCorrelationID(ctx, correlationID)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		defer cancel()

		err := d.deliver(ctx, n)
		d.metrics.RecordNotification(ctx, string(n.Kind), err)
		fields := []zap.Field{
			zap.String("kind", string(n.Kind)),
			zap.String("order_id", n.OrderID.String()),
			zap.String("correlation_id", correlationID),
		}
		if err != nil {
			d.log.Warn("notification delivery failed", append(fields, zap.Error(err))...)
			return
		}
		d.log.Debug("notification delivered", fields...)
	}()
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) error {
	if n.Kind.Operational() {
		return d.alert(ctx, n)
	}
	if strings.TrimSpace(n.Recipient) == "" {
		return errNoRecipient
	}
	if !d.email.Enabled() {
		d.log.Info("email disabled, customer notification dropped",
			zap.String("kind", string(n.Kind)),
			zap.String("order_id", n.OrderID.String()),
		)
		return nil
	}
	return d.email.SendTemplate(ctx, []string{n.Recipient}, string(n.Kind), map[string]any{
		"subject":  customerSubject(n),
		"customer": n.Customer,
		"order_id": n.OrderID.String(),
		"product":  n.ProductKind,
	})
}

// alert prefers Slack, then the ops mailbox. With neither configured the
// alert is logged at Error so it still reaches log-based alerting.
func (d *Dispatcher) alert(ctx context.Context, n domain.Notification) error {
	if d.slack.Enabled() {
		return d.slack.PostMessage(ctx, alertText(n))
	}
	if d.email.Enabled() && d.opsEmail != "" {
		return d.email.SendTemplate(ctx, []string{d.opsEmail}, "ops_alert", map[string]any{
			"subject":    fmt.Sprintf("[orderdesk] %s", n.Kind),
			"kind":       string(n.Kind),
			"order_id":   n.OrderID.String(),
			"event_id":   n.EventID,
			"event_type": n.EventType,
			"detail":     n.Detail,
		})
	}
	d.log.Error("operator alert",
		zap.String("kind", string(n.Kind)),
		zap.String("order_id", n.OrderID.String()),
		zap.String("event_id", n.EventID),
		zap.String("event_type", n.EventType),
		zap.String("detail", n.Detail),
	)
	return nil
}

func alertText(n domain.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: %s", n.Kind)
	if n.OrderID != 0 {
		fmt.Fprintf(&b, " order=%s", n.OrderID)
	}
	if n.EventID != "" {
		fmt.Fprintf(&b, " event=%s (%s)", n.EventID, n.EventType)
	}
	if n.Detail != "" {
		fmt.Fprintf(&b, "\n```%s```", n.Detail)
	}
	return b.String()
}

func customerSubject(n domain.Notification) string {
	switch n.Kind {
	case domain.KindPaymentConfirmed:
		return "Payment received for order #" + n.OrderID.String()
	case domain.KindOrderCompleted:
		return "Your order #" + n.OrderID.String() + " is ready"
	case domain.KindOrderCancelled:
		return "Order #" + n.OrderID.String() + " was cancelled"
	default:
		return "Update on order #" + n.OrderID.String()
	}
}

var _ domain.Notifier = (*Dispatcher)(nil)
