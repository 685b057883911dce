package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/smallbiznis/orderdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplateBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	provider := NewSMTP(Config{Host: "smtp.test", Port: 2525, From: "desk@example.com"})
	provider.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := provider.SendTemplate(context.Background(), []string{"jane@example.com"}, "payment_confirmed", map[string]any{
		"subject":  "Payment received\r\nBcc: evil@example.com",
		"customer": "Jane <script>",
		"order_id": "42",
		"product":  "CV",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, "desk@example.com", gotFrom)
	assert.Equal(t, []string{"jane@example.com"}, gotTo)
	body := string(gotMsg)
	assert.Contains(t, body, "Subject: Payment received  Bcc: evil@example.com\r\n")
	assert.Contains(t, body, "order #42")
	assert.Contains(t, body, "Jane &lt;script&gt;")
}

func TestSendRequiresRecipients(t *testing.T) {
	err := NewSMTP(Config{Host: "smtp.test"}).Send(context.Background(), nil, "s", "b")
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("missing", nil)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	assert.False(t, NewFromConfig(config.Config{}).Enabled())
	assert.True(t, NewFromConfig(config.Config{Email: config.EmailConfig{SMTPHost: "smtp.test", SMTPPort: 25}}).Enabled())
}
