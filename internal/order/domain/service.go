package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/pkg/db/pagination"
)

type CreateCheckoutRequest struct {
	ProductKind   string          `json:"product_kind"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
	BasicInfo     json.RawMessage `json:"basic_info"`
}

type CheckoutResult struct {
	OrderID     snowflake.ID `json:"order_id"`
	SessionRef  string       `json:"session_ref"`
	RedirectURL string       `json:"redirect_url"`
}

type ListOrdersRequest struct {
	pagination.Pagination
}

type ListOrdersResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

// CheckoutSessionRequest is what the payment provider needs to open a
// hosted checkout for an order.
type CheckoutSessionRequest struct {
	OrderID       snowflake.ID
	AccountID     snowflake.ID
	ProductKind   ProductKind
	Description   string
	CustomerEmail string
	Amount        int64
	Currency      string
}

type CheckoutSession struct {
	SessionRef  string
	RedirectURL string
}

// CheckoutGateway opens a payment session at the external provider. The
// order id must travel in the session metadata so the webhook can find it.
type CheckoutGateway interface {
	CreateSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

type RateLimiter interface {
	AllowCheckout(ctx context.Context, accountID snowflake.ID) (bool, time.Duration, error)
}

// Observer is told about every committed transition. Implementations must not
// block; they run after the commit and cannot undo it.
type Observer interface {
	OrderTransitioned(ctx context.Context, order Order, from Status)
}

// NotifyObservers calls every observer in order. A panicking observer is
// reported through onPanic and does not stop the rest.
func NotifyObservers(ctx context.Context, observers []Observer, order Order, from Status, onPanic func(observer Observer, recovered any)) {
	for _, observer := range observers {
		notify(ctx, observer, order, from, onPanic)
	}
}

func notify(ctx context.Context, observer Observer, order Order, from Status, onPanic func(Observer, any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(observer, r)
		}
	}()
	observer.OrderTransitioned(ctx, order, from)
}

type Service interface {
	CreateCheckout(ctx context.Context, accountID snowflake.ID, req CreateCheckoutRequest) (CheckoutResult, error)
	Get(ctx context.Context, accountID, orderID snowflake.ID) (Order, error)
	GetForStaff(ctx context.Context, staffID string, orderID snowflake.ID) (Order, error)
	ListForAccount(ctx context.Context, accountID snowflake.ID, req ListOrdersRequest) (ListOrdersResponse, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Order, error)
	SubmitQuestionnaire(ctx context.Context, accountID, orderID snowflake.ID, form FormData) (Order, error)
	BeginProcessing(ctx context.Context, staffID string, orderID snowflake.ID) (Order, error)
	UploadArtifact(ctx context.Context, staffID string, orderID snowflake.ID, artifactRef string) (Order, error)
	Cancel(ctx context.Context, staffID string, orderID snowflake.ID, reason string) (Order, error)
}

var (
	ErrInvalidAccount      = errors.New("invalid_account")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidProductKind  = errors.New("invalid_product_kind")
	ErrInvalidName         = errors.New("invalid_customer_name")
	ErrInvalidEmail        = errors.New("invalid_customer_email")
	ErrInvalidPhone        = errors.New("invalid_customer_phone")
	ErrInvalidBasicInfo    = errors.New("invalid_basic_info")
	ErrInvalidFormData     = errors.New("invalid_form_data")
	ErrFormKindMismatch    = errors.New("form_kind_mismatch")
	ErrInvalidArtifact     = errors.New("invalid_artifact_ref")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrNotFound            = errors.New("order_not_found")
	ErrTransitionConflict  = errors.New("order_transition_conflict")
	ErrRateLimited         = errors.New("checkout_rate_limited")
	ErrCheckoutUnavailable = errors.New("checkout_unavailable")
	ErrSessionConflict     = errors.New("checkout_session_conflict")
)
