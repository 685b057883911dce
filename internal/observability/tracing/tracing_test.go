package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsCustomerData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/orders/:id"),
		attribute.String("customer_email", "jane@example.com"),
		attribute.String("stripe_signature", "t=1,v1=abc"),
		attribute.Int("http.status_code", 200),
	)
	assert.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorRedactsSensitiveMessages(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("invalid email address jane@example.com")), "redacted error")
	plain := errors.New("database unavailable")
	assert.Equal(t, plain, SafeError(plain))
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, float64(0), clampRatio(-1))
	assert.Equal(t, 0.25, clampRatio(0.25))
	assert.Equal(t, float64(1), clampRatio(3))
}
