package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

const orderColumns = `id, account_id, product_kind, status, customer_name, customer_email, customer_phone,
	basic_info, COALESCE(form_data, 'null') AS form_data, amount, currency,
	external_session_ref, external_charge_ref, artifact_ref, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, account_id, product_kind, status, customer_name, customer_email, customer_phone,
			basic_info, form_data, amount, currency, external_session_ref, external_charge_ref,
			artifact_ref, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.AccountID,
		order.ProductKind,
		order.Status,
		order.CustomerName,
		order.CustomerEmail,
		order.CustomerPhone,
		order.BasicInfo,
		order.FormData,
		order.Amount,
		order.Currency,
		order.ExternalSessionRef,
		order.ExternalChargeRef,
		order.ArtifactRef,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = ?`
	args := []any{accountID}
	if cursor != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var orders []*domain.Order
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status, limit int) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = ?
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ?`,
		status,
		limit,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListStalePending(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = ? AND external_session_ref IS NOT NULL AND created_at < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPendingPayment,
		before,
		limit,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) AttachSession(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionRef string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET external_session_ref = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND external_session_ref IS NULL`,
		sessionRef,
		at,
		id,
		domain.StatusPendingPayment,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ApplyTransition(ctx context.Context, db *gorm.DB, t domain.Transition) (bool, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{t.To, t.At}
	if t.ChargeRef != nil {
		sets = append(sets, "external_charge_ref = ?")
		args = append(args, *t.ChargeRef)
	}
	if t.ArtifactRef != nil {
		sets = append(sets, "artifact_ref = ?")
		args = append(args, *t.ArtifactRef)
	}
	if len(t.FormData) > 0 {
		sets = append(sets, "form_data = ?")
		args = append(args, t.FormData)
	}

	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}

	query := `UPDATE orders SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status IN ?`
	args = append(args, t.OrderID, from)
	if t.AccountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *t.AccountID)
	}

	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
