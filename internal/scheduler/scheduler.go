package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	notificationdomain "github.com/smallbiznis/orderdesk/internal/notification/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobStalePayment     = "stale_payment"
	stalePaymentLockKey = "orderdesk:scheduler:stale_payment"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Locker keeps a job to one replica per run. A nil implementation always
// acquires.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	OrderRepo orderdomain.Repository
	Notifier  notificationdomain.Notifier
	Locker    Locker `optional:"true"`
	Config    Config `optional:"true"`
}

// Scheduler runs the stale-payment monitor. It only reads orders and raises
// alerts; it never changes order state.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	orderRepo orderdomain.Repository
	notifier  notificationdomain.Notifier
	locker    Locker

	mu      sync.Mutex
	alerted map[snowflake.ID]struct{}
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.OrderRepo == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		orderRepo: p.OrderRepo,
		notifier:  p.Notifier,
		locker:    p.Locker,
		alerted:   map[snowflake.ID]struct{}{},
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context, run *jobRun) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name, s.cfg.BatchSize)
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, stalePaymentLockKey, s.cfg.RunInterval)
		if err != nil {
			return fmt.Errorf("%s: lock: %w", name, err)
		}
		if !ok {
			s.logger(ctx).Debug("scheduler.job.skipped", zap.String("job", name), zap.String("reason", "locked"))
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), stalePaymentLockKey, token); err != nil {
				s.logger(ctx).Warn("scheduler lock release failed", zap.Error(err))
			}
		}()
	}

	s.logJobStart(ctx, run)
	err := fn(ctx, run)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out", zap.String("job", name), zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobStalePayment, s.stalePayments)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// stalePayments alerts once per order that opened a checkout session but
// has not been paid within StaleAfter. Orders that leave the stale set are
// forgotten so a later regression alerts again.
func (s *Scheduler) stalePayments(ctx context.Context, run *jobRun) error {
	cutoff := s.clock.Now().Add(-s.cfg.StaleAfter)
	orders, err := s.orderRepo.ListStalePending(ctx, s.db, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[snowflake.ID]struct{}, len(orders))
	for _, order := range orders {
		seen[order.ID] = struct{}{}
		if _, done := s.alerted[order.ID]; done {
			continue
		}
		age := s.clock.Now().Sub(order.CreatedAt).Round(time.Minute)
		s.logger(ctx).Warn("order stuck in pending payment",
			zap.String("order_id", order.ID.String()),
			zap.String("session_ref", order.SessionRef()),
			zap.Duration("age", age),
		)
		s.notifier.Notify(ctx, notificationdomain.Notification{
			Kind:        notificationdomain.KindStalePayment,
			OrderID:     order.ID,
			ProductKind: string(order.ProductKind),
			Detail:      fmt.Sprintf("session %s pending for %s", order.SessionRef(), age),
		})
		s.alerted[order.ID] = struct{}{}
		run.AddProcessed(1)
	}
	if len(orders) < s.cfg.BatchSize {
		for id := range s.alerted {
			if _, ok := seen[id]; !ok {
				delete(s.alerted, id)
			}
		}
	}
	return nil
}
