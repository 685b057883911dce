package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/smallbiznis/orderdesk/internal/entitlement/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Request is a document or letter request paid for with one credit.
type Request struct {
	ID        snowflake.ID           `json:"id" gorm:"primaryKey"`
	AccountID snowflake.ID           `json:"account_id" gorm:"not null"`
	Kind      entitlementdomain.Kind `json:"kind" gorm:"type:text;not null"`
	FormData  datatypes.JSON         `json:"form_data" gorm:"type:jsonb;not null"`
	CreatedAt time.Time              `json:"created_at" gorm:"not null"`
}

func (Request) TableName() string { return "document_requests" }

// ProductKind is the questionnaire shape a request of kind k must carry.
func ProductKind(k entitlementdomain.Kind) orderdomain.ProductKind {
	if k == entitlementdomain.KindCoverLetter {
		return orderdomain.ProductCoverLetter
	}
	return orderdomain.ProductCV
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *Request) error
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]Request, error)
}

type Service interface {
	Create(ctx context.Context, accountID snowflake.ID, kind entitlementdomain.Kind, form orderdomain.FormData) (Request, error)
	List(ctx context.Context, accountID snowflake.ID) ([]Request, error)
}

var ErrInvalidAccount = errors.New("invalid_account")
