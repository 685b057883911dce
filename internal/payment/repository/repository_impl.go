package repository

import (
	"context"

	"github.com/smallbiznis/orderdesk/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID, sessionRef string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, session_ref, event_type, product_kind,
			account_id, order_id, payload, received_at
		 FROM payment_events
		 WHERE (provider = ? AND provider_event_id = ?) OR session_ref = ?
		 LIMIT 1`,
		provider,
		providerEventID,
		sessionRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	// No conflict target: a clash on either unique key means already applied.
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, session_ref, event_type, product_kind,
			account_id, order_id, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.SessionRef,
		event.EventType,
		event.ProductKind,
		event.AccountID,
		event.OrderID,
		event.Payload,
		event.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
