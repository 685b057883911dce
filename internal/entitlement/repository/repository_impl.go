package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/entitlement/domain"
	"gorm.io/gorm"
)

var counterColumns = map[domain.Kind]string{
	domain.KindCV:          "cv_credits",
	domain.KindCoverLetter: "cover_letter_credits",
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Consume(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind domain.Kind, at time.Time) (bool, error) {
	column, ok := counterColumns[kind]
	if !ok {
		return false, domain.ErrInvalidKind
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE entitlement_balances SET `+column+` = `+column+` - 1, updated_at = ?
		 WHERE account_id = ? AND `+column+` >= 1`,
		at,
		accountID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Add(ctx context.Context, db *gorm.DB, accountID snowflake.ID, kind domain.Kind, units int64, at time.Time) error {
	var cv, letter int64
	switch kind {
	case domain.KindCV:
		cv = units
	case domain.KindCoverLetter:
		letter = units
	default:
		return domain.ErrInvalidKind
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO entitlement_balances (account_id, cv_credits, cover_letter_credits, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (account_id) DO UPDATE SET
		   cv_credits = entitlement_balances.cv_credits + excluded.cv_credits,
		   cover_letter_credits = entitlement_balances.cover_letter_credits + excluded.cover_letter_credits,
		   updated_at = excluded.updated_at`,
		accountID,
		cv,
		letter,
		at,
		at,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.Balance, error) {
	var balance domain.Balance
	err := db.WithContext(ctx).Raw(
		`SELECT account_id, cv_credits, cover_letter_credits, updated_at
		 FROM entitlement_balances WHERE account_id = ?`,
		accountID,
	).Scan(&balance).Error
	if err != nil {
		return nil, err
	}
	if balance.AccountID == 0 {
		return nil, nil
	}
	return &balance, nil
}
