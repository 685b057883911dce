package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	paymentdomain "github.com/smallbiznis/orderdesk/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

func signedHeader(t *testing.T, secret string, payload []byte) http.Header {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	headers := http.Header{}
	headers.Set(SignatureHeader, signed.Header)
	return headers
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	verifier := NewVerifier("primary", "whsec_test")

	require.NoError(t, verifier.Verify(payload, signedHeader(t, "whsec_test", payload)))

	err := verifier.Verify(payload, signedHeader(t, "whsec_other", payload))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	err = verifier.Verify(payload, http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	tampered := []byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{}}}`)
	err = verifier.Verify(tampered, signedHeader(t, "whsec_test", payload))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestNewVerifiersSkipsBlankSecrets(t *testing.T) {
	verifiers := NewVerifiers([]string{"whsec_a", " ", "whsec_b"})
	require.Len(t, verifiers, 2)
	assert.Equal(t, "primary", verifiers[0].Name())
	assert.Equal(t, "additional", verifiers[1].Name())

	assert.Empty(t, NewVerifiers(nil))
}

func checkoutPayload(t *testing.T, eventType string, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   "evt_123",
		"type": eventType,
		"data": map[string]any{"object": object},
	})
	require.NoError(t, err)
	return payload
}

func TestParseCheckoutCompleted(t *testing.T) {
	payload := checkoutPayload(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_abc",
		"mode":           "payment",
		"payment_status": "paid",
		"payment_intent": "pi_123",
		"metadata": map[string]any{
			"order_id":     "42",
			"account_id":   "7",
			"product_kind": "cv",
		},
		"customer_details": map[string]any{"email": "payer@example.com"},
	})

	event, err := NewParser().Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.ProviderStripe, event.Provider)
	assert.Equal(t, "evt_123", event.EventID)
	assert.Equal(t, "cs_test_abc", event.SessionRef)
	assert.Equal(t, "pi_123", event.ChargeRef)
	assert.Equal(t, "payer@example.com", event.PayerEmail)
	assert.Equal(t, "cv", event.ProductKind)
	require.NotNil(t, event.OrderID)
	assert.Equal(t, snowflake.ID(42), *event.OrderID)
	require.NotNil(t, event.AccountID)
	assert.Equal(t, snowflake.ID(7), *event.AccountID)
	assert.True(t, event.Paid())
}

func TestParseFallsBackToClientReference(t *testing.T) {
	payload := checkoutPayload(t, "checkout.session.async_payment_succeeded", map[string]any{
		"id":                  "cs_test_ref",
		"mode":                "payment",
		"payment_status":      "paid",
		"payment_intent":      map[string]any{"id": "pi_expanded"},
		"client_reference_id": "99",
		"metadata":            map[string]any{"order_id": "not-a-number"},
	})

	event, err := NewParser().Parse(payload)
	require.NoError(t, err)
	require.NotNil(t, event.OrderID)
	assert.Equal(t, snowflake.ID(99), *event.OrderID)
	assert.Nil(t, event.AccountID)
	assert.Equal(t, "pi_expanded", event.ChargeRef)
}

func TestParseUnpaidSession(t *testing.T) {
	payload := checkoutPayload(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_unpaid",
		"mode":           "payment",
		"payment_status": "unpaid",
	})

	event, err := NewParser().Parse(payload)
	require.NoError(t, err)
	assert.False(t, event.Paid())
	assert.Nil(t, event.OrderID)
}

func TestParseRejectsAndIgnores(t *testing.T) {
	parser := NewParser()

	_, err := parser.Parse([]byte(`{"id":"evt_1","type":"charge.refunded","data":{"object":{}}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	_, err = parser.Parse([]byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = parser.Parse([]byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = parser.Parse([]byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestGatewayCreateSession(t *testing.T) {
	var captured *stripeapi.CheckoutSessionParams
	gateway := NewGateway("", "https://app.test/ok", "https://app.test/cancel",
		func(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
			captured = params
			return &stripeapi.CheckoutSession{ID: "cs_new", URL: "https://checkout.test/cs_new"}, nil
		},
	)

	session, err := gateway.CreateSession(context.Background(), orderdomain.CheckoutSessionRequest{
		OrderID:       42,
		AccountID:     7,
		ProductKind:   orderdomain.ProductCV,
		Description:   "CV",
		CustomerEmail: "ada@example.com",
		Amount:        4900,
		Currency:      "eur",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_new", session.SessionRef)
	assert.Equal(t, "https://checkout.test/cs_new", session.RedirectURL)

	require.NotNil(t, captured)
	assert.Equal(t, string(stripeapi.CheckoutSessionModePayment), *captured.Mode)
	assert.Equal(t, "42", *captured.ClientReferenceID)
	assert.Equal(t, "42", captured.Metadata["order_id"])
	assert.Equal(t, "7", captured.Metadata["account_id"])
	assert.Equal(t, "cv", captured.Metadata["product_kind"])
	require.Len(t, captured.LineItems, 1)
	assert.Equal(t, int64(4900), *captured.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "ada@example.com", *captured.CustomerEmail)
	assert.Equal(t, "checkout-42", *captured.IdempotencyKey)
}

func TestGatewayErrors(t *testing.T) {
	_, err := NewGateway("", "", "", nil).CreateSession(context.Background(), orderdomain.CheckoutSessionRequest{OrderID: 1})
	assert.Error(t, err)

	failing := NewGateway("", "", "", func(*stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
		return nil, errors.New("boom")
	})
	_, err = failing.CreateSession(context.Background(), orderdomain.CheckoutSessionRequest{OrderID: 1})
	assert.EqualError(t, err, "boom")

	empty := NewGateway("", "", "", func(*stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
		return &stripeapi.CheckoutSession{}, nil
	})
	_, err = empty.CreateSession(context.Background(), orderdomain.CheckoutSessionRequest{OrderID: 1})
	assert.Error(t, err)
}
