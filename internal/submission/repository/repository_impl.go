package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/submission/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO document_requests (id, account_id, kind, form_data, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		req.ID,
		req.AccountID,
		req.Kind,
		req.FormData,
		req.CreatedAt,
	).Error
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]domain.Request, error) {
	var items []domain.Request
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, kind, form_data, created_at
		 FROM document_requests
		 WHERE account_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		accountID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
