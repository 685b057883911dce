package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*Order, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status, limit int) ([]*Order, error)
	ListStalePending(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Order, error)
	// AttachSession records the provider session on a fresh order. It
	// returns false when the order already has one or has left PENDING_PAYMENT.
	AttachSession(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionRef string, at time.Time) (bool, error)
	// ApplyTransition runs t as a single conditional UPDATE and reports
	// whether a row changed.
	ApplyTransition(ctx context.Context, db *gorm.DB, t Transition) (bool, error)
}
