package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/clock"
	entitlementdomain "github.com/smallbiznis/orderdesk/internal/entitlement/domain"
	entitlementrepo "github.com/smallbiznis/orderdesk/internal/entitlement/repository"
	entitlementservice "github.com/smallbiznis/orderdesk/internal/entitlement/service"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/submission/domain"
	"github.com/smallbiznis/orderdesk/internal/submission/repository"
	"github.com/smallbiznis/orderdesk/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type failingRepo struct {
	domain.Repository
}

func (failingRepo) Insert(context.Context, *gorm.DB, *domain.Request) error {
	return errors.New("disk full")
}

// cancellingRepo fails the insert because the caller went away mid-request.
type cancellingRepo struct {
	domain.Repository
	cancel context.CancelFunc
}

func (r cancellingRepo) Insert(ctx context.Context, _ *gorm.DB, _ *domain.Request) error {
	r.cancel()
	return ctx.Err()
}

type fixture struct {
	db          *gorm.DB
	svc         domain.Service
	entitlement entitlementdomain.Service
}

func newFixture(t *testing.T, repo domain.Repository) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	ent := entitlementservice.New(entitlementservice.Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		Clock: clk,
		Repo:  entitlementrepo.Provide(),
	})
	if repo == nil {
		repo = repository.Provide()
	}
	return &fixture{
		db:          db,
		entitlement: ent,
		svc: New(Params{
			DB:          db,
			Log:         zaptest.NewLogger(t),
			GenID:       node,
			Clock:       clk,
			Repo:        repo,
			Entitlement: ent,
		}),
	}
}

func cvForm() orderdomain.FormData {
	return orderdomain.FormData{CV: &orderdomain.CVForm{FullName: "Jane Doe", TargetRole: "Backend Engineer"}}
}

func TestCreateConsumesCredit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.entitlement.Grant(ctx, nil, 7, entitlementdomain.KindCV, 2))

	req, err := f.svc.Create(ctx, 7, entitlementdomain.KindCV, cvForm())
	require.NoError(t, err)
	assert.NotZero(t, req.ID)
	assert.JSONEq(t, `{"kind":"cv","cv":{"full_name":"Jane Doe","target_role":"Backend Engineer"}}`, string(req.FormData))

	balance, err := f.entitlement.Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance.CVCredits)

	list, err := f.svc.List(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, req.ID, list[0].ID)
	assert.Equal(t, entitlementdomain.KindCV, list[0].Kind)
}

func TestCreateWithoutCreditStoresNothing(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Create(context.Background(), 7, entitlementdomain.KindCV, cvForm())
	assert.ErrorIs(t, err, entitlementdomain.ErrInsufficientEntitlement)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM document_requests`))
}

func TestCreateRejectsInvalidFormBeforeConsuming(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.entitlement.Grant(ctx, nil, 7, entitlementdomain.KindCoverLetter, 1))

	_, err := f.svc.Create(ctx, 7, entitlementdomain.KindCoverLetter, cvForm())
	assert.ErrorIs(t, err, orderdomain.ErrInvalidFormData)

	_, err = f.svc.Create(ctx, 7, entitlementdomain.Kind("poster"), cvForm())
	assert.ErrorIs(t, err, entitlementdomain.ErrInvalidKind)

	_, err = f.svc.Create(ctx, 0, entitlementdomain.KindCV, cvForm())
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	balance, err := f.entitlement.Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance.CoverLetterCredits)
}

func TestFailedInsertRestoresCredit(t *testing.T) {
	f := newFixture(t, failingRepo{})
	ctx := context.Background()
	require.NoError(t, f.entitlement.Grant(ctx, nil, 7, entitlementdomain.KindCV, 1))

	_, err := f.svc.Create(ctx, 7, entitlementdomain.KindCV, cvForm())
	require.Error(t, err)

	balance, err := f.entitlement.Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance.CVCredits)
}

func TestCancelledRequestStillRestoresCredit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, cancellingRepo{cancel: cancel})
	require.NoError(t, f.entitlement.Grant(context.Background(), nil, 7, entitlementdomain.KindCV, 1))

	_, err := f.svc.Create(ctx, 7, entitlementdomain.KindCV, cvForm())
	require.ErrorIs(t, err, context.Canceled)

	balance, err := f.entitlement.Balance(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance.CVCredits)
}

func TestOneCreditTwoSimultaneousRequests(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.entitlement.Grant(ctx, nil, 7, entitlementdomain.KindCV, 1))

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, 7, entitlementdomain.KindCV, cvForm())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var created, refused int
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, entitlementdomain.ErrInsufficientEntitlement):
			refused++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, refused)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM document_requests`))

	balance, err := f.entitlement.Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.CVCredits)
}
