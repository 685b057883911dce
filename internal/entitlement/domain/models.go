package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Kind names one consumable credit counter.
type Kind string

const (
	KindCV          Kind = "cv"
	KindCoverLetter Kind = "cover_letter"
)

func ParseKind(value string) (Kind, bool) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case KindCV, KindCoverLetter:
		return kind, true
	default:
		return "", false
	}
}

type Balance struct {
	AccountID          snowflake.ID `json:"account_id"`
	CVCredits          int64        `json:"cv_credits"`
	CoverLetterCredits int64        `json:"cover_letter_credits"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (b Balance) Of(kind Kind) int64 {
	switch kind {
	case KindCV:
		return b.CVCredits
	case KindCoverLetter:
		return b.CoverLetterCredits
	default:
		return 0
	}
}

type Repository interface {
	// Consume decrements one credit only while the counter is at least one.
	Consume(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind Kind, at time.Time) (bool, error)
	Add(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind Kind, units int64, at time.Time) error
	Find(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Balance, error)
}

type Service interface {
	TryConsume(ctx context.Context, accountID snowflake.ID, kind Kind) error
	// Grant credits units of kind. db lets the caller run it inside its own
	// transaction; it is never reachable from a client request.
	Grant(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind Kind, units int64) error
	Restore(ctx context.Context, accountID snowflake.ID, kind Kind) error
	Balance(ctx context.Context, accountID snowflake.ID) (Balance, error)
}

var (
	ErrInsufficientEntitlement = errors.New("insufficient_entitlement")
	ErrInvalidAccount          = errors.New("invalid_account")
	ErrInvalidKind             = errors.New("invalid_entitlement_kind")
	ErrInvalidUnits            = errors.New("invalid_units")
	ErrInvalidGrantConfig      = errors.New("invalid_entitlement_grants")
)
