package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	paymentdomain "github.com/smallbiznis/orderdesk/internal/payment/domain"
	stripeapi "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	SignatureHeader = "Stripe-Signature"

	metadataOrderID     = "order_id"
	metadataAccountID   = "account_id"
	metadataProductKind = "product_kind"
)

var checkoutEventTypes = map[string]struct{}{
	"checkout.session.completed":                {},
	"checkout.session.async_payment_succeeded": {},
}

// Verifier validates the Stripe-Signature header against one endpoint secret.
type Verifier struct {
	name   string
	secret string
}

func NewVerifier(name, secret string) *Verifier {
	return &Verifier{name: name, secret: strings.TrimSpace(secret)}
}

// NewVerifiers returns one verifier per configured secret, in order.
func NewVerifiers(secrets []string) []paymentdomain.Verifier {
	names := []string{"primary", "secondary"}
	out := make([]paymentdomain.Verifier, 0, len(secrets))
	for i, secret := range secrets {
		if strings.TrimSpace(secret) == "" {
			continue
		}
		name := "additional"
		if i < len(names) {
			name = names[i]
		}
		out = append(out, NewVerifier(name, secret))
	}
	return out
}

func (v *Verifier) Name() string { return v.name }

func (v *Verifier) Verify(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" || v.secret == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, v.secret, webhook.DefaultTolerance); err != nil {
		return errors.Join(paymentdomain.ErrInvalidSignature, err)
	}
	return nil
}

type Parser struct{}

func NewParser() *Parser { return &Parser{} }

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     json.RawMessage   `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerEmail     string            `json:"customer_email"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// Parse decodes checkout-completion events. Association ids that are
// missing or malformed are left nil; the reconciler decides what that means.
func (p *Parser) Parse(payload []byte) (*paymentdomain.CheckoutEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if _, ok := checkoutEventTypes[strings.TrimSpace(event.Type)]; !ok {
		return nil, paymentdomain.ErrEventIgnored
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	session.ID = strings.TrimSpace(session.ID)
	if session.ID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	out := &paymentdomain.CheckoutEvent{
		Provider:      paymentdomain.ProviderStripe,
		EventID:       strings.TrimSpace(event.ID),
		EventType:     strings.TrimSpace(event.Type),
		SessionRef:    session.ID,
		Mode:          session.Mode,
		PaymentStatus: session.PaymentStatus,
		ChargeRef:     expandableID(session.PaymentIntent),
		PayerEmail:    session.CustomerEmail,
		ProductKind:   strings.TrimSpace(session.Metadata[metadataProductKind]),
		OrderID:       parseID(session.Metadata[metadataOrderID]),
		AccountID:     parseID(session.Metadata[metadataAccountID]),
		Raw:           payload,
	}
	if out.OrderID == nil {
		out.OrderID = parseID(session.ClientReferenceID)
	}
	if session.CustomerDetails != nil && strings.TrimSpace(session.CustomerDetails.Email) != "" {
		out.PayerEmail = session.CustomerDetails.Email
	}
	return out, nil
}

// expandableID handles payment_intent as either an id string or an
// expanded object.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

func parseID(value string) *snowflake.ID {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

type createSessionFunc func(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)

// Gateway opens hosted checkout sessions.
type Gateway struct {
	successURL    string
	cancelURL     string
	createSession createSessionFunc
}

func NewGateway(apiKey, successURL, cancelURL string, create createSessionFunc) *Gateway {
	if create == nil && strings.TrimSpace(apiKey) != "" {
		client := &stripesession.Client{B: stripeapi.GetBackend(stripeapi.APIBackend), Key: strings.TrimSpace(apiKey)}
		create = client.New
	}
	return &Gateway{
		successURL:    successURL,
		cancelURL:     cancelURL,
		createSession: create,
	}
}

func (g *Gateway) CreateSession(ctx context.Context, req orderdomain.CheckoutSessionRequest) (orderdomain.CheckoutSession, error) {
	if g.createSession == nil {
		return orderdomain.CheckoutSession{}, errors.New("stripe_api_key_missing")
	}

	metadata := map[string]string{
		metadataOrderID:     req.OrderID.String(),
		metadataAccountID:   req.AccountID.String(),
		metadataProductKind: string(req.ProductKind),
	}
	params := &stripeapi.CheckoutSessionParams{
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:        stripeapi.String(g.successURL),
		CancelURL:         stripeapi.String(g.cancelURL),
		ClientReferenceID: stripeapi.String(req.OrderID.String()),
		Metadata:          metadata,
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripeapi.String(req.Currency),
					UnitAmount: stripeapi.Int64(req.Amount),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripeapi.String(req.Description),
					},
				},
				Quantity: stripeapi.Int64(1),
			},
		},
		PaymentIntentData: &stripeapi.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.OrderID.String())

	session, err := g.createSession(params)
	if err != nil {
		return orderdomain.CheckoutSession{}, err
	}
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return orderdomain.CheckoutSession{}, errors.New("stripe_session_missing_id")
	}
	return orderdomain.CheckoutSession{
		SessionRef:  session.ID,
		RedirectURL: session.URL,
	}, nil
}

var (
	_ paymentdomain.Verifier      = (*Verifier)(nil)
	_ paymentdomain.EventParser   = (*Parser)(nil)
	_ orderdomain.CheckoutGateway = (*Gateway)(nil)
)
