package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	entitlementdomain "github.com/smallbiznis/orderdesk/internal/entitlement/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/submission/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const listLimit = 100

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Entitlement entitlementdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	entitlement entitlementdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("submission.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		entitlement: p.Entitlement,
	}
}

// Create validates the form, consumes one credit and then stores the request.
// Nothing is stored when the account has no credit left; a failed insert
// gives the credit back.
func (s *Service) Create(ctx context.Context, accountID snowflake.ID, kind entitlementdomain.Kind, form orderdomain.FormData) (domain.Request, error) {
	if accountID == 0 {
		return domain.Request{}, domain.ErrInvalidAccount
	}
	if _, ok := entitlementdomain.ParseKind(string(kind)); !ok {
		return domain.Request{}, entitlementdomain.ErrInvalidKind
	}
	encoded, err := form.Encode(domain.ProductKind(kind))
	if err != nil {
		return domain.Request{}, err
	}

	if err := s.entitlement.TryConsume(ctx, accountID, kind); err != nil {
		return domain.Request{}, err
	}

	req := domain.Request{
		ID:        s.genID.Generate(),
		AccountID: accountID,
		Kind:      kind,
		FormData:  datatypes.JSON(encoded),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &req); err != nil {
		s.log.Error("request insert failed after credit consumed",
			zap.String("account_id", accountID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		if restoreErr := s.entitlement.Restore(context.WithoutCancel(ctx), accountID, kind); restoreErr != nil {
			return domain.Request{}, errors.Join(err, restoreErr)
		}
		return domain.Request{}, err
	}

	s.log.Info("request created",
		zap.String("request_id", req.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("kind", string(kind)),
	)
	return req, nil
}

func (s *Service) List(ctx context.Context, accountID snowflake.ID) ([]domain.Request, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	return s.repo.ListByAccount(ctx, s.db, accountID, listLimit)
}
