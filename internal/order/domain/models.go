package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ProductKind string

const (
	ProductCV          ProductKind = "cv"
	ProductCoverLetter ProductKind = "cover_letter"
	ProductBundle      ProductKind = "bundle"
)

func ParseProductKind(value string) (ProductKind, bool) {
	kind := ProductKind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case ProductCV, ProductCoverLetter, ProductBundle:
		return kind, true
	default:
		return "", false
	}
}

func (k ProductKind) Label() string {
	switch k {
	case ProductCV:
		return "Curated CV"
	case ProductCoverLetter:
		return "Cover letter"
	case ProductBundle:
		return "CV and cover letter bundle"
	default:
		return string(k)
	}
}

// Order is a purchase moving from payment to fulfilment. The customer
// snapshot is captured at creation and never updated.
type Order struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	AccountID          snowflake.ID   `gorm:"not null;index" json:"account_id"`
	ProductKind        ProductKind    `gorm:"not null" json:"product_kind"`
	Status             Status         `gorm:"not null" json:"status"`
	CustomerName       string         `gorm:"not null" json:"customer_name"`
	CustomerEmail      string         `gorm:"not null" json:"customer_email"`
	CustomerPhone      string         `gorm:"not null" json:"customer_phone,omitempty"`
	BasicInfo          datatypes.JSON `gorm:"type:jsonb;not null" json:"basic_info"`
	FormData           datatypes.JSON `gorm:"type:jsonb" json:"form_data,omitempty"`
	Amount             int64          `gorm:"not null" json:"amount"`
	Currency           string         `gorm:"not null" json:"currency"`
	ExternalSessionRef *string        `gorm:"uniqueIndex" json:"external_session_ref,omitempty"`
	ExternalChargeRef  *string        `json:"external_charge_ref,omitempty"`
	ArtifactRef        *string        `json:"artifact_ref,omitempty"`
	CreatedAt          time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null" json:"updated_at"`
}

func (o Order) SessionRef() string {
	if o.ExternalSessionRef == nil {
		return ""
	}
	return *o.ExternalSessionRef
}

func (o Order) HasFormData() bool {
	raw := strings.TrimSpace(string(o.FormData))
	return raw != "" && raw != "null"
}

// Transition is a guarded status change. It is applied as one conditional
// UPDATE: the row changes only while its status is still one of From.
// Optional fields are written in the same statement.
type Transition struct {
	OrderID     snowflake.ID
	AccountID   *snowflake.ID
	From        []Status
	To          Status
	ChargeRef   *string
	ArtifactRef *string
	FormData    datatypes.JSON
	At          time.Time
}
