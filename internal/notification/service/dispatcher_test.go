package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/notification/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sentMail struct {
	to       []string
	template string
	data     map[string]any
}

type fakeEmail struct {
	mu      sync.Mutex
	enabled bool
	err     error
	sent    []sentMail
}

func (f *fakeEmail) Send(context.Context, []string, string, string) error { return nil }

func (f *fakeEmail) SendTemplate(_ context.Context, to []string, name string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, template: name, data: data.(map[string]any)})
	return f.err
}

func (f *fakeEmail) Enabled() bool { return f.enabled }

type fakeSlack struct {
	mu       sync.Mutex
	enabled  bool
	messages []string
}

func (f *fakeSlack) PostMessage(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeSlack) Enabled() bool { return f.enabled }

func newDispatcher(t *testing.T, mail *fakeEmail, chat *fakeSlack, opsEmail string) *Dispatcher {
	t.Helper()
	return NewDispatcher(Params{
		Log:    zaptest.NewLogger(t),
		Config: config.Config{Alerts: config.AlertConfig{OpsEmail: opsEmail}},
		Email:  mail,
		Slack:  chat,
	})
}

func TestCustomerNotificationUsesTemplate(t *testing.T) {
	mail := &fakeEmail{enabled: true}
	d := newDispatcher(t, mail, &fakeSlack{}, "")

	d.Notify(context.Background(), domain.Notification{
		Kind:        domain.KindPaymentConfirmed,
		OrderID:     42,
		Recipient:   "jane@example.com",
		Customer:    "Jane",
		ProductKind: "CV",
	})
	d.Wait()

	require.Len(t, mail.sent, 1)
	assert.Equal(t, []string{"jane@example.com"}, mail.sent[0].to)
	assert.Equal(t, "payment_confirmed", mail.sent[0].template)
	assert.Equal(t, "42", mail.sent[0].data["order_id"])
	assert.Equal(t, "Payment received for order #42", mail.sent[0].data["subject"])
}

func TestNotifySurvivesCancelledCaller(t *testing.T) {
	mail := &fakeEmail{enabled: true}
	d := newDispatcher(t, mail, &fakeSlack{}, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, domain.Notification{Kind: domain.KindOrderCompleted, OrderID: 1, Recipient: "a@example.com"})
	d.Wait()

	assert.Len(t, mail.sent, 1)
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	mail := &fakeEmail{enabled: true, err: errors.New("smtp down")}
	d := newDispatcher(t, mail, &fakeSlack{}, "")

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), domain.Notification{Kind: domain.KindOrderCancelled, OrderID: 1, Recipient: "a@example.com"})
		d.Wait()
	})
}

func TestAlertRouting(t *testing.T) {
	alert := domain.Notification{
		Kind:      domain.KindCriticalReconciliationFailure,
		OrderID:   42,
		EventID:   "evt_1",
		EventType: "checkout.session.completed",
		Detail:    "connection reset",
	}

	t.Run("slack first", func(t *testing.T) {
		mail, chat := &fakeEmail{enabled: true}, &fakeSlack{enabled: true}
		d := newDispatcher(t, mail, chat, "ops@example.com")
		d.Notify(context.Background(), alert)
		d.Wait()

		require.Len(t, chat.messages, 1)
		assert.Contains(t, chat.messages[0], "critical_reconciliation_failure")
		assert.Contains(t, chat.messages[0], "evt_1")
		assert.Empty(t, mail.sent)
	})

	t.Run("ops email fallback", func(t *testing.T) {
		mail, chat := &fakeEmail{enabled: true}, &fakeSlack{}
		d := newDispatcher(t, mail, chat, "ops@example.com")
		d.Notify(context.Background(), alert)
		d.Wait()

		require.Len(t, mail.sent, 1)
		assert.Equal(t, []string{"ops@example.com"}, mail.sent[0].to)
		assert.Equal(t, "ops_alert", mail.sent[0].template)
	})

	t.Run("log only", func(t *testing.T) {
		mail, chat := &fakeEmail{}, &fakeSlack{}
		d := newDispatcher(t, mail, chat, "")
		d.Notify(context.Background(), alert)
		d.Wait()

		assert.Empty(t, mail.sent)
		assert.Empty(t, chat.messages)
	})
}

type captureNotifier struct {
	sent []domain.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n domain.Notification) {
	c.sent = append(c.sent, n)
}

func TestOrderObserverMapsTransitions(t *testing.T) {
	notifier := &captureNotifier{}
	observer := NewOrderObserver(notifier)
	order := orderdomain.Order{ID: 42, ProductKind: orderdomain.ProductCV, CustomerEmail: "jane@example.com", CustomerName: "Jane"}
	ctx := context.Background()

	order.Status = orderdomain.StatusPaid
	observer.OrderTransitioned(ctx, order, orderdomain.StatusPendingPayment)
	order.Status = orderdomain.StatusReadyForProcessing
	observer.OrderTransitioned(ctx, order, orderdomain.StatusPaid)
	order.Status = orderdomain.StatusInProgress
	observer.OrderTransitioned(ctx, order, orderdomain.StatusReadyForProcessing)
	order.Status = orderdomain.StatusCompleted
	observer.OrderTransitioned(ctx, order, orderdomain.StatusInProgress)
	order.Status = orderdomain.StatusCancelled
	observer.OrderTransitioned(ctx, order, orderdomain.StatusPaid)

	require.Len(t, notifier.sent, 3)
	assert.Equal(t, domain.KindPaymentConfirmed, notifier.sent[0].Kind)
	assert.Equal(t, "jane@example.com", notifier.sent[0].Recipient)
	assert.Equal(t, domain.KindOrderCompleted, notifier.sent[1].Kind)
	assert.Equal(t, domain.KindOrderCancelled, notifier.sent[2].Kind)
}
