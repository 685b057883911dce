package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/entitlement/domain"
	"github.com/smallbiznis/orderdesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("entitlement.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// TryConsume takes one credit or fails with ErrInsufficientEntitlement. The
// decrement is a single conditional UPDATE; concurrent callers can never
// drive a counter below zero.
func (s *Service) TryConsume(ctx context.Context, accountID snowflake.ID, kind domain.Kind) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	if _, ok := domain.ParseKind(string(kind)); !ok {
		return domain.ErrInvalidKind
	}

	consumed, err := s.repo.Consume(ctx, s.db, accountID, kind, s.clock.Now())
	if err != nil {
		return err
	}
	s.metrics.RecordEntitlementConsume(ctx, string(kind), consumed)
	if !consumed {
		s.log.Debug("entitlement exhausted",
			zap.String("account_id", accountID.String()),
			zap.String("kind", string(kind)),
		)
		return domain.ErrInsufficientEntitlement
	}
	return nil
}

func (s *Service) Grant(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind domain.Kind, units int64) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	if _, ok := domain.ParseKind(string(kind)); !ok {
		return domain.ErrInvalidKind
	}
	if units <= 0 {
		return domain.ErrInvalidUnits
	}
	if db == nil {
		db = s.db
	}

	if err := s.repo.Add(ctx, db, accountID, kind, units, s.clock.Now()); err != nil {
		return err
	}
	s.log.Info("entitlement granted",
		zap.String("account_id", accountID.String()),
		zap.String("kind", string(kind)),
		zap.Int64("units", units),
	)
	return nil
}

// Restore gives back a credit whose dependent record could not be created.
func (s *Service) Restore(ctx context.Context, accountID snowflake.ID, kind domain.Kind) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	if err := s.repo.Add(ctx, s.db, accountID, kind, 1, s.clock.Now()); err != nil {
		s.log.Error("entitlement restore failed",
			zap.String("account_id", accountID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return err
	}
	s.log.Warn("entitlement restored after failed creation",
		zap.String("account_id", accountID.String()),
		zap.String("kind", string(kind)),
	)
	return nil
}

func (s *Service) Balance(ctx context.Context, accountID snowflake.ID) (domain.Balance, error) {
	if accountID == 0 {
		return domain.Balance{}, domain.ErrInvalidAccount
	}
	balance, err := s.repo.Find(ctx, s.db, accountID)
	if err != nil {
		return domain.Balance{}, err
	}
	if balance == nil {
		return domain.Balance{AccountID: accountID}, nil
	}
	return *balance, nil
}
