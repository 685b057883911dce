package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/smallbiznis/orderdesk/internal/observability/metrics"
	"github.com/smallbiznis/orderdesk/internal/observability/tracing"
	notificationdomain "github.com/smallbiznis/orderdesk/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/orderdesk/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Verifiers  []paymentdomain.Verifier
	Parser     paymentdomain.EventParser
	Reconciler paymentdomain.Reconciler
	Notifier   notificationdomain.Notifier `optional:"true"`
	Metrics    *metrics.Metrics            `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	verifiers  []paymentdomain.Verifier
	parser     paymentdomain.EventParser
	reconciler paymentdomain.Reconciler
	notifier   notificationdomain.Notifier
	metrics    *metrics.Metrics

	unconfiguredAlert sync.Once
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		verifiers:  p.Verifiers,
		parser:     p.Parser,
		reconciler: p.Reconciler,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
	}
}

// Handle verifies, decodes and reconciles one delivery. A returned error
// means the provider should retry, except for ErrInvalidSignature and
// ErrInvalidPayload which will never succeed.
func (s *Service) Handle(ctx context.Context, payload []byte, headers http.Header) (result paymentdomain.Result, err error) {
	ctx, span := otel.Tracer("orderdesk/payment").Start(ctx, "payment.webhook")
	defer span.End()

	if len(s.verifiers) == 0 {
		s.log.Error("payment webhook received but no signing secret is configured",
			zap.String("severity", "critical"),
		)
		s.metrics.RecordWebhookOutcome(ctx, "unknown", "not_configured")
		s.alertUnconfigured(ctx)
		return result, paymentdomain.ErrWebhookNotConfigured
	}

	verifier, err := s.verify(payload, headers)
	if err != nil {
		s.log.Warn("payment webhook signature rejected", zap.Int("payload_bytes", len(payload)))
		s.metrics.RecordWebhookOutcome(ctx, "unknown", "invalid_signature")
		span.SetStatus(codes.Error, "invalid signature")
		return result, paymentdomain.ErrInvalidSignature
	}

	event, err := s.parser.Parse(payload)
	if errors.Is(err, paymentdomain.ErrEventIgnored) {
		s.log.Debug("payment webhook event ignored", zap.String("verifier", verifier))
		s.metrics.RecordWebhookOutcome(ctx, "unknown", string(paymentdomain.OutcomeIgnored))
		return paymentdomain.Result{Outcome: paymentdomain.OutcomeIgnored}, nil
	}
	if err != nil {
		s.log.Warn("payment webhook payload rejected", zap.String("verifier", verifier), zap.Error(err))
		s.metrics.RecordWebhookOutcome(ctx, "unknown", "invalid_payload")
		span.SetStatus(codes.Error, "invalid payload")
		return result, paymentdomain.ErrInvalidPayload
	}

	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("event_id", event.EventID),
		attribute.String("event_type", event.EventType),
		attribute.String("verifier", verifier),
	)...)

	result, err = s.reconcile(ctx, event)
	if err != nil {
		s.log.Error("payment reconciliation failed",
			zap.String("severity", "critical"),
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.String("session_ref", event.SessionRef),
			zap.Error(err),
		)
		s.metrics.RecordWebhookOutcome(ctx, event.EventType, "error")
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "reconciliation failed")
		if s.notifier != nil {
			n := notificationdomain.Notification{
				Kind:      notificationdomain.KindCriticalReconciliationFailure,
				EventID:   event.EventID,
				EventType: event.EventType,
				Detail:    err.Error(),
			}
			if event.OrderID != nil {
				n.OrderID = *event.OrderID
			}
			s.notifier.Notify(ctx, n)
		}
		return result, err
	}

	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	s.metrics.RecordWebhookOutcome(ctx, event.EventType, string(result.Outcome))
	return result, nil
}

// alertUnconfigured pages operators at most once per process.
func (s *Service) alertUnconfigured(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	s.unconfiguredAlert.Do(func() {
		s.notifier.Notify(ctx, notificationdomain.Notification{
			Kind:   notificationdomain.KindCriticalReconciliationFailure,
			Detail: paymentdomain.ErrWebhookNotConfigured.Error() + ": payment webhooks are being refused",
		})
	})
}

// verify walks the verifiers in order and returns the name of the first one
// that accepts the signature.
func (s *Service) verify(payload []byte, headers http.Header) (string, error) {
	for _, v := range s.verifiers {
		if err := v.Verify(payload, headers); err == nil {
			return v.Name(), nil
		}
	}
	return "", paymentdomain.ErrInvalidSignature
}

func (s *Service) reconcile(ctx context.Context, event *paymentdomain.CheckoutEvent) (result paymentdomain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(paymentdomain.ErrReconciliationPanic, fmt.Errorf("%v", r))
		}
	}()
	return s.reconciler.Reconcile(ctx, event)
}
