package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/order/repository"
	"github.com/smallbiznis/orderdesk/pkg/db/dbtest"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []domain.CheckoutSessionRequest
	err      error
	ref      string
}

func (g *fakeGateway) CreateSession(_ context.Context, req domain.CheckoutSessionRequest) (domain.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return domain.CheckoutSession{}, g.err
	}
	ref := g.ref
	if ref == "" {
		ref = "cs_test_" + req.OrderID.String()
	}
	return domain.CheckoutSession{SessionRef: ref, RedirectURL: "https://checkout.example/" + ref}, nil
}

type denyLimiter struct{}

func (denyLimiter) AllowCheckout(context.Context, snowflake.ID) (bool, time.Duration, error) {
	return false, time.Minute, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) OrderTransitioned(_ context.Context, order domain.Order, from domain.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, string(from)+"->"+string(order.Status))
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

type panickingObserver struct{}

func (panickingObserver) OrderTransitioned(context.Context, domain.Order, domain.Status) {
	panic("observer failure")
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	repo     domain.Repository
	gateway  *fakeGateway
	observer *recordingObserver
	clock    *clock.FakeClock
}

func newFixture(t *testing.T, limiter domain.RateLimiter) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	catalog, err := config.NewStaticCatalogHolder(config.Catalog{
		Currency: "eur",
		Prices:   map[string]int64{"cv": 4900, "cover_letter": 2900, "bundle": 6900},
	})
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		repo:     repository.Provide(),
		gateway:  &fakeGateway{},
		observer: &recordingObserver{},
		clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.svc = New(Params{
		DB:        db,
		Log:       zaptest.NewLogger(t),
		GenID:     node,
		Clock:     f.clock,
		Catalog:   catalog,
		Repo:      f.repo,
		Gateway:   f.gateway,
		Limiter:   limiter,
		Observers: []domain.Observer{f.observer},
	})
	return f
}

func (f *fixture) seed(t *testing.T, id snowflake.ID, account snowflake.ID, kind domain.ProductKind, status domain.Status) {
	t.Helper()
	ref := "cs_seed_" + id.String()
	now := f.clock.Now()
	order := domain.Order{
		ID:                 id,
		AccountID:          account,
		ProductKind:        kind,
		Status:             status,
		CustomerName:       "Jane Doe",
		CustomerEmail:      "jane@example.com",
		BasicInfo:          datatypes.JSON(`{}`),
		Amount:             4900,
		Currency:           "eur",
		ExternalSessionRef: &ref,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, &order))
}

func validCheckout() domain.CreateCheckoutRequest {
	return domain.CreateCheckoutRequest{
		ProductKind:   "bundle",
		CustomerName:  " Jane Doe ",
		CustomerEmail: "Jane@Example.com",
		CustomerPhone: "+49 151 2345678",
		BasicInfo:     json.RawMessage(`{"city":"Berlin"}`),
	}
}

func TestCreateCheckoutStoresSessionAndPrice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.CreateCheckout(ctx, 7, validCheckout())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_"+res.OrderID.String(), res.SessionRef)
	assert.Contains(t, res.RedirectURL, res.SessionRef)

	require.Len(t, f.gateway.requests, 1)
	sent := f.gateway.requests[0]
	assert.Equal(t, res.OrderID, sent.OrderID)
	assert.Equal(t, snowflake.ID(7), sent.AccountID)
	assert.Equal(t, int64(6900), sent.Amount)

	order, err := f.svc.Get(ctx, 7, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingPayment, order.Status)
	assert.Equal(t, res.SessionRef, order.SessionRef())
	assert.Equal(t, "Jane Doe", order.CustomerName)
	assert.Equal(t, "eur", order.Currency)
	assert.False(t, order.HasFormData())
	assert.JSONEq(t, `{"city":"Berlin"}`, string(order.BasicInfo))
}

func TestCreateCheckoutValidation(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name   string
		mutate func(*domain.CreateCheckoutRequest)
		want   error
	}{
		{"unknown kind", func(r *domain.CreateCheckoutRequest) { r.ProductKind = "resume" }, domain.ErrInvalidProductKind},
		{"missing name", func(r *domain.CreateCheckoutRequest) { r.CustomerName = "  " }, domain.ErrInvalidName},
		{"bad email", func(r *domain.CreateCheckoutRequest) { r.CustomerEmail = "jane" }, domain.ErrInvalidEmail},
		{"bad phone", func(r *domain.CreateCheckoutRequest) { r.CustomerPhone = "call me" }, domain.ErrInvalidPhone},
		{"basic info not object", func(r *domain.CreateCheckoutRequest) { r.BasicInfo = json.RawMessage(`[1,2]`) }, domain.ErrInvalidBasicInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCheckout()
			tt.mutate(&req)
			_, err := f.svc.CreateCheckout(context.Background(), 7, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.svc.CreateCheckout(context.Background(), 0, validCheckout())
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
	assert.Empty(t, f.gateway.requests)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM orders`))
}

func TestCreateCheckoutGatewayFailureLeavesOrderWithoutSession(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.err = errors.New("provider down")

	_, err := f.svc.CreateCheckout(context.Background(), 7, validCheckout())
	require.ErrorIs(t, err, domain.ErrCheckoutUnavailable)

	assert.Equal(t, int64(1), dbtest.Count(t, f.db,
		`SELECT COUNT(1) FROM orders WHERE status = ? AND external_session_ref IS NULL`, domain.StatusPendingPayment))
}

func TestCreateCheckoutRejectsReusedSession(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.ref = "cs_same"

	_, err := f.svc.CreateCheckout(context.Background(), 7, validCheckout())
	require.NoError(t, err)
	_, err = f.svc.CreateCheckout(context.Background(), 7, validCheckout())
	assert.ErrorIs(t, err, domain.ErrSessionConflict)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM orders WHERE external_session_ref = ?`, "cs_same"))
}

func TestCreateCheckoutRateLimited(t *testing.T) {
	f := newFixture(t, denyLimiter{})
	_, err := f.svc.CreateCheckout(context.Background(), 7, validCheckout())
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Empty(t, f.gateway.requests)
}

func TestFulfillmentLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seed(t, 42, 7, domain.ProductCV, domain.StatusPaid)

	form := domain.FormData{CV: &domain.CVForm{FullName: "Jane Doe", TargetRole: "Staff Engineer"}}
	order, err := f.svc.SubmitQuestionnaire(ctx, 7, 42, form)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReadyForProcessing, order.Status)
	assert.True(t, order.HasFormData())

	order, err = f.svc.GetForStaff(ctx, "staff-1", 42)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, order.Status)

	order, err = f.svc.BeginProcessing(ctx, "staff-2", 42)
	require.NoError(t, err, "begin processing must be idempotent")
	assert.Equal(t, domain.StatusInProgress, order.Status)

	order, err = f.svc.UploadArtifact(ctx, "staff-1", 42, "s3://artifacts/42.pdf")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, order.Status)
	require.NotNil(t, order.ArtifactRef)
	assert.Equal(t, "s3://artifacts/42.pdf", *order.ArtifactRef)

	assert.Equal(t, []string{
		"PAID->READY_FOR_PROCESSING",
		"READY_FOR_PROCESSING->IN_PROGRESS",
		"IN_PROGRESS->COMPLETED",
	}, f.observer.snapshot())
}

func TestGuardedTransitions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	t.Run("ready cannot skip to completed", func(t *testing.T) {
		f.seed(t, 100, 7, domain.ProductCV, domain.StatusReadyForProcessing)
		_, err := f.svc.UploadArtifact(ctx, "staff-1", 100, "s3://a.pdf")
		var conflict *domain.TransitionError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, domain.StatusReadyForProcessing, conflict.Current)
		assert.Equal(t, []domain.Status{domain.StatusInProgress}, conflict.Required)
		assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM orders WHERE id = 100 AND artifact_ref IS NULL`))
	})

	t.Run("questionnaire requires paid", func(t *testing.T) {
		f.seed(t, 101, 7, domain.ProductCV, domain.StatusPendingPayment)
		form := domain.FormData{CV: &domain.CVForm{FullName: "Jane", TargetRole: "PM"}}
		_, err := f.svc.SubmitQuestionnaire(ctx, 7, 101, form)
		assert.ErrorIs(t, err, domain.ErrTransitionConflict)
		assert.Equal(t, int64(0), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM orders WHERE id = 101 AND form_data IS NOT NULL`))
	})

	for _, terminal := range []domain.Status{domain.StatusCompleted, domain.StatusCancelled} {
		id := snowflake.ID(200)
		if terminal == domain.StatusCancelled {
			id = 201
		}
		f.seed(t, id, 7, domain.ProductCV, terminal)

		t.Run(string(terminal)+" is terminal", func(t *testing.T) {
			_, err := f.svc.Cancel(ctx, "staff-1", id, "customer request")
			assert.ErrorIs(t, err, domain.ErrTransitionConflict)
			_, err = f.svc.BeginProcessing(ctx, "staff-1", id)
			assert.ErrorIs(t, err, domain.ErrTransitionConflict)
			_, err = f.svc.UploadArtifact(ctx, "staff-1", id, "s3://late.pdf")
			assert.ErrorIs(t, err, domain.ErrTransitionConflict)

			order, err := f.svc.Get(ctx, 7, id)
			require.NoError(t, err)
			assert.Equal(t, terminal, order.Status)
		})
	}

	assert.Empty(t, f.observer.snapshot())
}

func TestCancelFromAnyNonTerminalStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	statuses := []domain.Status{
		domain.StatusPendingPayment,
		domain.StatusPaid,
		domain.StatusReadyForProcessing,
		domain.StatusInProgress,
	}
	for i, status := range statuses {
		id := snowflake.ID(300 + i)
		f.seed(t, id, 7, domain.ProductBundle, status)
		order, err := f.svc.Cancel(ctx, "staff-1", id, "duplicate purchase")
		require.NoError(t, err, status)
		assert.Equal(t, domain.StatusCancelled, order.Status)
	}
}

func TestQuestionnaireScopedToOwner(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, 42, 7, domain.ProductCoverLetter, domain.StatusPaid)

	form := domain.FormData{CoverLetter: &domain.CoverLetterForm{Company: "Acme", Position: "SRE"}}
	_, err := f.svc.SubmitQuestionnaire(context.Background(), 8, 42, form)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.SubmitQuestionnaire(context.Background(), 7, 42, domain.FormData{CV: &domain.CVForm{FullName: "J", TargetRole: "X"}})
	assert.ErrorIs(t, err, domain.ErrInvalidFormData)

	_, err = f.svc.Get(context.Background(), 8, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentBeginProcessingTransitionsOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, 42, 7, domain.ProductCV, domain.StatusReadyForProcessing)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.BeginProcessing(context.Background(), "staff", 42)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{"READY_FOR_PROCESSING->IN_PROGRESS"}, f.observer.snapshot())
}

func TestListForAccountPaginates(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 5; i++ {
		f.seed(t, snowflake.ID(500+i), 7, domain.ProductCV, domain.StatusPaid)
		f.clock.Advance(time.Minute)
	}
	f.seed(t, 900, 8, domain.ProductCV, domain.StatusPaid)

	ctx := context.Background()
	first, err := f.svc.ListForAccount(ctx, 7, domain.ListOrdersRequest{Pagination: pagination.Pagination{PageSize: 3}})
	require.NoError(t, err)
	require.Len(t, first.Orders, 3)
	assert.True(t, first.HasMore)
	assert.Equal(t, snowflake.ID(504), first.Orders[0].ID)

	second, err := f.svc.ListForAccount(ctx, 7, domain.ListOrdersRequest{Pagination: pagination.Pagination{PageSize: 3, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Orders, 2)
	assert.False(t, second.HasMore)
	assert.Equal(t, snowflake.ID(501), second.Orders[0].ID)
	assert.Equal(t, snowflake.ID(500), second.Orders[1].ID)
}

func TestListByStatusQueue(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, 1, 7, domain.ProductCV, domain.StatusReadyForProcessing)
	f.seed(t, 2, 8, domain.ProductCV, domain.StatusReadyForProcessing)
	f.seed(t, 3, 8, domain.ProductCV, domain.StatusPaid)

	orders, err := f.svc.ListByStatus(context.Background(), domain.StatusReadyForProcessing, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	_, err = f.svc.ListByStatus(context.Background(), "", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestPanickingObserverDoesNotFailTransition(t *testing.T) {
	f := newFixture(t, nil)
	svc := f.svc.(*Service)
	svc.observers = []domain.Observer{panickingObserver{}, f.observer}
	f.seed(t, 42, 7, domain.ProductCV, domain.StatusReadyForProcessing)

	order, err := f.svc.BeginProcessing(context.Background(), "staff-1", 42)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, order.Status)
	assert.Equal(t, []string{"READY_FOR_PROCESSING->IN_PROGRESS"}, f.observer.snapshot())
}
