package metrics

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsHighCardinalityLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("order_id", "42"),
		attribute.String("event_type", "checkout.session.completed"),
		attribute.String("account_id", "7"),
		attribute.String("outcome", "applied"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "order_id" || attr.Key == "account_id" {
			t.Fatalf("unexpected label %s retained", attr.Key)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordWebhookOutcome(ctx, "checkout.session.completed", "applied")
	m.RecordOrderTransition(ctx, "PAID", "READY_FOR_PROCESSING")
	m.RecordEntitlementConsume(ctx, "cv", false)
	m.RecordNotification(ctx, "payment_confirmed", errors.New("smtp down"))
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "orderdesk-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordWebhookOutcome(context.Background(), "checkout.session.completed", "duplicate")
}
