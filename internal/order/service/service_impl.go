package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	obscontext "github.com/smallbiznis/orderdesk/internal/observability/context"
	"github.com/smallbiznis/orderdesk/internal/observability/metrics"
	"github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/pkg/db"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultQueueLimit = 50
	maxQueueLimit     = 200
	maxArtifactRefLen = 1024
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-]{6,32}$`)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Catalog   *config.CatalogHolder
	Repo      domain.Repository
	Gateway   domain.CheckoutGateway
	Limiter   domain.RateLimiter `optional:"true"`
	Metrics   *metrics.Metrics   `optional:"true"`
	Observers []domain.Observer  `group:"order_observers"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	gateway   domain.CheckoutGateway
	limiter   domain.RateLimiter
	metrics   *metrics.Metrics
	observers []domain.Observer
	catalog   *config.CatalogHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("order.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		gateway:   p.Gateway,
		limiter:   p.Limiter,
		metrics:   p.Metrics,
		observers: p.Observers,
		catalog:   p.Catalog,
	}
}

func (s *Service) CreateCheckout(ctx context.Context, accountID snowflake.ID, req domain.CreateCheckoutRequest) (domain.CheckoutResult, error) {
	if accountID == 0 {
		return domain.CheckoutResult{}, domain.ErrInvalidAccount
	}

	kind, ok := domain.ParseProductKind(req.ProductKind)
	if !ok {
		return domain.CheckoutResult{}, domain.ErrInvalidProductKind
	}
	// One snapshot per checkout so a catalog reload cannot mix prices.
	catalog := s.catalog.Get()
	amount := catalog.Price(string(kind))
	if amount <= 0 {
		return domain.CheckoutResult{}, domain.ErrInvalidProductKind
	}

	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return domain.CheckoutResult{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" || !strings.Contains(email, "@") {
		return domain.CheckoutResult{}, domain.ErrInvalidEmail
	}
	phone := strings.TrimSpace(req.CustomerPhone)
	if phone != "" && !phonePattern.MatchString(phone) {
		return domain.CheckoutResult{}, domain.ErrInvalidPhone
	}
	basicInfo, err := normalizeBasicInfo(req.BasicInfo)
	if err != nil {
		return domain.CheckoutResult{}, err
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.AllowCheckout(ctx, accountID)
		switch {
		case err != nil:
			s.log.Warn("checkout rate limiter unavailable, allowing request",
				zap.String("account_id", accountID.String()),
				zap.Error(err),
			)
		case !allowed:
			return domain.CheckoutResult{}, domain.ErrRateLimited
		}
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:            s.genID.Generate(),
		AccountID:     accountID,
		ProductKind:   kind,
		Status:        domain.StatusPendingPayment,
		CustomerName:  name,
		CustomerEmail: email,
		CustomerPhone: phone,
		BasicInfo:     basicInfo,
		Amount:        amount,
		Currency:      catalog.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		return domain.CheckoutResult{}, err
	}

	log := s.log.With(
		zap.String("order_id", order.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("product_kind", string(kind)),
	)

	session, err := s.gateway.CreateSession(ctx, domain.CheckoutSessionRequest{
		OrderID:       order.ID,
		AccountID:     accountID,
		ProductKind:   kind,
		Description:   kind.Label(),
		CustomerEmail: email,
		Amount:        amount,
		Currency:      catalog.Currency,
	})
	if err != nil {
		log.Error("checkout session creation failed", zap.Error(err))
		return domain.CheckoutResult{}, errors.Join(domain.ErrCheckoutUnavailable, err)
	}

	attached, err := s.repo.AttachSession(ctx, s.db, order.ID, session.SessionRef, s.clock.Now())
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			log.Error("checkout session reference already used by another order",
				zap.String("session_ref", session.SessionRef),
			)
			return domain.CheckoutResult{}, domain.ErrSessionConflict
		}
		return domain.CheckoutResult{}, err
	}
	if !attached {
		return domain.CheckoutResult{}, domain.ErrSessionConflict
	}

	log.Info("checkout session opened", zap.String("session_ref", session.SessionRef))

	return domain.CheckoutResult{
		OrderID:     order.ID,
		SessionRef:  session.SessionRef,
		RedirectURL: session.RedirectURL,
	}, nil
}

func (s *Service) Get(ctx context.Context, accountID, orderID snowflake.ID) (domain.Order, error) {
	if accountID == 0 {
		return domain.Order{}, domain.ErrInvalidAccount
	}
	order, err := s.load(ctx, orderID, &accountID)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// GetForStaff opens an order for staff. The first staff view of an order
// that is ready for processing moves it to IN_PROGRESS.
func (s *Service) GetForStaff(ctx context.Context, staffID string, orderID snowflake.ID) (domain.Order, error) {
	order, err := s.load(ctx, orderID, nil)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.StatusReadyForProcessing {
		return *order, nil
	}

	started, err := s.BeginProcessing(ctx, staffID, orderID)
	if err != nil {
		var conflict *domain.TransitionError
		if errors.As(err, &conflict) {
			// Cancelled between the read and the update; show what is there now.
			return s.Get(ctx, order.AccountID, orderID)
		}
		return domain.Order{}, err
	}
	return started, nil
}

func (s *Service) ListForAccount(ctx context.Context, accountID snowflake.ID, req domain.ListOrdersRequest) (domain.ListOrdersResponse, error) {
	if accountID == 0 {
		return domain.ListOrdersResponse{}, domain.ErrInvalidAccount
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}

	limit := req.Size()
	items, err := s.repo.ListByAccount(ctx, s.db, accountID, cursor, limit+1)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, limit, func(o *domain.Order) pagination.Cursor {
		return pagination.Cursor{ID: int64(o.ID), CreatedAt: o.CreatedAt}
	})

	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		orders = append(orders, *item)
	}
	return domain.ListOrdersResponse{PageInfo: pageInfo, Orders: orders}, nil
}

func (s *Service) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Order, error) {
	if status == "" {
		return nil, domain.ErrInvalidStatus
	}
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	if limit > maxQueueLimit {
		limit = maxQueueLimit
	}

	items, err := s.repo.ListByStatus(ctx, s.db, status, limit)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		if item != nil {
			orders = append(orders, *item)
		}
	}
	return orders, nil
}

func (s *Service) SubmitQuestionnaire(ctx context.Context, accountID, orderID snowflake.ID, form domain.FormData) (domain.Order, error) {
	if accountID == 0 {
		return domain.Order{}, domain.ErrInvalidAccount
	}
	current, err := s.load(ctx, orderID, &accountID)
	if err != nil {
		return domain.Order{}, err
	}
	blob, err := form.Encode(current.ProductKind)
	if err != nil {
		return domain.Order{}, err
	}

	ctx = obscontext.WithActor(ctx, "account", accountID.String())
	return s.transition(ctx, current, domain.Transition{
		OrderID:   orderID,
		AccountID: &accountID,
		To:        domain.StatusReadyForProcessing,
		FormData:  datatypes.JSON(blob),
	})
}

// BeginProcessing is idempotent: an order already IN_PROGRESS is returned
// unchanged.
func (s *Service) BeginProcessing(ctx context.Context, staffID string, orderID snowflake.ID) (domain.Order, error) {
	current, err := s.load(ctx, orderID, nil)
	if err != nil {
		return domain.Order{}, err
	}
	if current.Status == domain.StatusInProgress {
		return *current, nil
	}

	ctx = obscontext.WithActor(ctx, "staff", staffID)
	order, err := s.transition(ctx, current, domain.Transition{
		OrderID: orderID,
		To:      domain.StatusInProgress,
	})
	var conflict *domain.TransitionError
	if errors.As(err, &conflict) && conflict.AlreadyApplied() {
		return order, nil
	}
	return order, err
}

func (s *Service) UploadArtifact(ctx context.Context, staffID string, orderID snowflake.ID, artifactRef string) (domain.Order, error) {
	artifactRef = strings.TrimSpace(artifactRef)
	if artifactRef == "" || len(artifactRef) > maxArtifactRefLen {
		return domain.Order{}, domain.ErrInvalidArtifact
	}
	current, err := s.load(ctx, orderID, nil)
	if err != nil {
		return domain.Order{}, err
	}

	ctx = obscontext.WithActor(ctx, "staff", staffID)
	return s.transition(ctx, current, domain.Transition{
		OrderID:     orderID,
		To:          domain.StatusCompleted,
		ArtifactRef: &artifactRef,
	})
}

func (s *Service) Cancel(ctx context.Context, staffID string, orderID snowflake.ID, reason string) (domain.Order, error) {
	current, err := s.load(ctx, orderID, nil)
	if err != nil {
		return domain.Order{}, err
	}

	ctx = obscontext.WithActor(ctx, "staff", staffID)
	order, err := s.transition(ctx, current, domain.Transition{
		OrderID: orderID,
		To:      domain.StatusCancelled,
	})
	if err == nil {
		s.log.Info("order cancelled",
			zap.String("order_id", orderID.String()),
			zap.String("staff_id", staffID),
			zap.String("reason", strings.TrimSpace(reason)),
		)
	}
	return order, err
}

// transition applies t with the legal source statuses for t.To. On a lost
// race or an illegal source it returns the fresh order and a
// *domain.TransitionError.
func (s *Service) transition(ctx context.Context, current *domain.Order, t domain.Transition) (domain.Order, error) {
	t.From = domain.RequiredFor(t.To)
	t.At = s.clock.Now()

	applied, err := s.repo.ApplyTransition(ctx, s.db, t)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.load(ctx, t.OrderID, t.AccountID)
	if err != nil {
		return domain.Order{}, err
	}

	if !applied {
		return *order, &domain.TransitionError{
			OrderID:  t.OrderID,
			Current:  order.Status,
			Required: t.From,
			Target:   t.To,
		}
	}

	kind, actorID := obscontext.ActorFromContext(ctx)
	s.log.Info("order transitioned",
		zap.String("order_id", order.ID.String()),
		zap.String("from_status", string(current.Status)),
		zap.String("to_status", string(order.Status)),
		zap.String("actor_type", kind),
		zap.String("actor_id", actorID),
	)
	s.metrics.RecordOrderTransition(ctx, string(current.Status), string(order.Status))
	domain.NotifyObservers(ctx, s.observers, *order, current.Status, func(observer domain.Observer, recovered any) {
		s.log.Error("order observer panicked",
			zap.String("order_id", order.ID.String()),
			zap.String("observer", fmt.Sprintf("%T", observer)),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
	})
	return *order, nil
}

// load returns ErrNotFound both for a missing order and for one owned by a
// different account.
func (s *Service) load(ctx context.Context, orderID snowflake.ID, accountID *snowflake.ID) (*domain.Order, error) {
	if orderID == 0 {
		return nil, domain.ErrInvalidID
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	if accountID != nil && order.AccountID != *accountID {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func normalizeBasicInfo(raw json.RawMessage) (datatypes.JSON, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return datatypes.JSON("{}"), nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, domain.ErrInvalidBasicInfo
	}
	normalized, err := json.Marshal(fields)
	if err != nil {
		return nil, domain.ErrInvalidBasicInfo
	}
	return datatypes.JSON(normalized), nil
}
