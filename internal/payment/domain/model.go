package domain

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const ProviderStripe = "stripe"

// EventRecord is an Event Ledger row. Both the provider event id and the
// session reference are unique; either one already present proves the
// event was applied.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	SessionRef      string         `json:"session_ref" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	ProductKind     string         `json:"product_kind" gorm:"type:text;not null"`
	AccountID       *snowflake.ID  `json:"account_id"`
	OrderID         snowflake.ID   `json:"order_id" gorm:"not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_events" }

// CheckoutEvent is a verified, decoded "checkout completed" notification.
type CheckoutEvent struct {
	Provider      string
	EventID       string
	EventType     string
	SessionRef    string
	Mode          string
	PaymentStatus string
	ChargeRef     string
	PayerEmail    string
	ProductKind   string
	OrderID       *snowflake.ID
	AccountID     *snowflake.ID
	Raw           []byte
}

// Paid reports a fully captured one-time payment.
func (e CheckoutEvent) Paid() bool {
	return strings.EqualFold(e.PaymentStatus, "paid") && strings.EqualFold(e.Mode, "payment")
}

// Verifier checks a payload signature against one signing secret.
type Verifier interface {
	Name() string
	Verify(payload []byte, headers http.Header) error
}

// EventParser decodes verified payloads. Kinds that do not drive order
// reconciliation return ErrEventIgnored.
type EventParser interface {
	Parse(payload []byte) (*CheckoutEvent, error)
}

// PaidEffect runs inside the reconciliation transaction after the order has
// been moved to PAID. An error rolls the whole reconciliation back, so the
// effect fires exactly once per paid order.
type PaidEffect interface {
	Name() string
	Apply(ctx context.Context, tx *gorm.DB, order orderdomain.Order) error
}

type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeAlreadyProcessed   Outcome = "already_processed"
	OutcomeSkipped            Outcome = "skipped"
	OutcomeIgnored            Outcome = "ignored"
	OutcomeIntegrityViolation Outcome = "integrity_violation"
)

// Result is the resolution of one delivery. Every Result is acknowledged
// with HTTP 200; only errors map to other statuses.
type Result struct {
	Outcome Outcome      `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
	EventID string       `json:"event_id,omitempty"`
	OrderID snowflake.ID `json:"order_id,omitempty"`
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID, sessionRef string) (*EventRecord, error)
	// InsertEvent returns false when either unique key already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, event *CheckoutEvent) (Result, error)
}

type WebhookService interface {
	Handle(ctx context.Context, payload []byte, headers http.Header) (Result, error)
}

var (
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrEventIgnored         = errors.New("event_ignored")
	ErrWebhookNotConfigured = errors.New("webhook_not_configured")
	ErrReconciliationPanic  = errors.New("reconciliation_panic")
)
