package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	paymentdomain "github.com/smallbiznis/orderdesk/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errAlreadyApplied = errors.New("already_applied")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      paymentdomain.Repository
	OrderRepo orderdomain.Repository
	Effects   []paymentdomain.PaidEffect `group:"paid_effects"`
	Observers []orderdomain.Observer     `group:"order_observers"`
	Metrics   *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      paymentdomain.Repository
	orderRepo orderdomain.Repository
	effects   []paymentdomain.PaidEffect
	observers []orderdomain.Observer
	metrics   *metrics.Metrics
}

func NewService(p Params) paymentdomain.Reconciler {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.reconciler"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		orderRepo: p.OrderRepo,
		effects:   p.Effects,
		observers: p.Observers,
		metrics:   p.Metrics,
	}
}

// Reconcile applies a verified checkout event at most once. Every data
// outcome resolves to a Result; only infrastructure failures return an error.
func (s *Service) Reconcile(ctx context.Context, event *paymentdomain.CheckoutEvent) (paymentdomain.Result, error) {
	if event == nil {
		return paymentdomain.Result{}, paymentdomain.ErrInvalidPayload
	}
	log := s.log.With(
		zap.String("provider", event.Provider),
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("session_ref", event.SessionRef),
	)
	result := paymentdomain.Result{EventID: event.EventID}

	existing, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.EventID, event.SessionRef)
	if err != nil {
		return result, err
	}
	if existing != nil {
		log.Info("payment event already reconciled", zap.String("order_id", existing.OrderID.String()))
		result.Outcome = paymentdomain.OutcomeDuplicate
		result.OrderID = existing.OrderID
		return result, nil
	}

	if !event.Paid() {
		log.Info("payment event skipped",
			zap.String("payment_status", event.PaymentStatus),
			zap.String("mode", event.Mode),
		)
		result.Outcome = paymentdomain.OutcomeSkipped
		result.Reason = "payment_not_captured"
		return result, nil
	}

	if event.OrderID == nil {
		log.Warn("payment event carries no order reference")
		result.Outcome = paymentdomain.OutcomeSkipped
		result.Reason = "missing_order_reference"
		return result, nil
	}
	result.OrderID = *event.OrderID
	log = log.With(zap.String("order_id", event.OrderID.String()))

	order, err := s.orderRepo.FindByID(ctx, s.db, *event.OrderID)
	if err != nil {
		return result, err
	}
	if reason := checkConsistency(order, event); reason != "" {
		fields := []zap.Field{zap.String("reason", reason)}
		if order != nil {
			fields = append(fields,
				zap.String("order_session_ref", order.SessionRef()),
				zap.String("order_account_id", order.AccountID.String()),
			)
		}
		if event.AccountID != nil {
			fields = append(fields, zap.String("event_account_id", event.AccountID.String()))
		}
		log.Error("payment event failed integrity check", fields...)
		result.Outcome = paymentdomain.OutcomeIntegrityViolation
		result.Reason = reason
		return result, nil
	}

	if order.Status != orderdomain.StatusPendingPayment {
		log.Info("order already past payment", zap.String("status", string(order.Status)))
		result.Outcome = paymentdomain.OutcomeAlreadyProcessed
		return result, nil
	}

	paid, err := s.commit(ctx, order, event)
	if errors.Is(err, errAlreadyApplied) {
		log.Info("concurrent reconciliation won the race")
		result.Outcome = paymentdomain.OutcomeAlreadyProcessed
		return result, nil
	}
	if err != nil {
		return result, err
	}

	log.Info("order paid",
		zap.String("product_kind", string(paid.ProductKind)),
		zap.String("charge_ref", event.ChargeRef),
	)
	s.metrics.RecordOrderTransition(ctx, string(orderdomain.StatusPendingPayment), string(paid.Status))
	orderdomain.NotifyObservers(ctx, s.observers, *paid, orderdomain.StatusPendingPayment, func(observer orderdomain.Observer, recovered any) {
		log.Error("order observer panicked",
			zap.String("observer", fmt.Sprintf("%T", observer)),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
	})

	result.Outcome = paymentdomain.OutcomeApplied
	return result, nil
}

// commit records the event and moves the order to PAID in one transaction.
// The conditional update is the final arbiter between racing deliveries.
func (s *Service) commit(ctx context.Context, order *orderdomain.Order, event *paymentdomain.CheckoutEvent) (*orderdomain.Order, error) {
	now := s.clock.Now()
	payload := datatypes.JSON(event.Raw)
	if len(payload) == 0 {
		payload = datatypes.JSON("{}")
	}
	accountID := order.AccountID
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.EventID,
		SessionRef:      event.SessionRef,
		EventType:       event.EventType,
		ProductKind:     string(order.ProductKind),
		AccountID:       &accountID,
		OrderID:         order.ID,
		Payload:         payload,
		ReceivedAt:      now,
	}

	var chargeRef *string
	if ref := strings.TrimSpace(event.ChargeRef); ref != "" {
		chargeRef = &ref
	}

	var paid *orderdomain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertEvent(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyApplied
		}

		applied, err := s.orderRepo.ApplyTransition(ctx, tx, orderdomain.Transition{
			OrderID:   order.ID,
			From:      orderdomain.RequiredFor(orderdomain.StatusPaid),
			To:        orderdomain.StatusPaid,
			ChargeRef: chargeRef,
			At:        now,
		})
		if err != nil {
			return err
		}
		if !applied {
			return errAlreadyApplied
		}

		paid, err = s.orderRepo.FindByID(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if paid == nil {
			return orderdomain.ErrNotFound
		}

		for _, effect := range s.effects {
			if err := effect.Apply(ctx, tx, *paid); err != nil {
				return errors.Join(errors.New("paid_effect_failed: "+effect.Name()), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// checkConsistency returns the integrity violation that blocks reconciling
// event against order, or "" when they agree.
func checkConsistency(order *orderdomain.Order, event *paymentdomain.CheckoutEvent) string {
	switch {
	case order == nil:
		return "order_not_found"
	case order.ExternalSessionRef == nil || *order.ExternalSessionRef == "":
		return "order_without_session"
	case *order.ExternalSessionRef != event.SessionRef:
		return "session_mismatch"
	case strings.TrimSpace(event.PayerEmail) != "" &&
		!strings.EqualFold(strings.TrimSpace(event.PayerEmail), strings.TrimSpace(order.CustomerEmail)):
		return "email_mismatch"
	case event.AccountID != nil && *event.AccountID != order.AccountID:
		return "account_mismatch"
	}
	return ""
}
