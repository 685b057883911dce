package payment

import (
	"github.com/smallbiznis/orderdesk/internal/config"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"github.com/smallbiznis/orderdesk/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/orderdesk/internal/payment/domain"
	"github.com/smallbiznis/orderdesk/internal/payment/repository"
	paymentservice "github.com/smallbiznis/orderdesk/internal/payment/service"
	"github.com/smallbiznis/orderdesk/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) []paymentdomain.Verifier {
		return stripe.NewVerifiers(cfg.Payment.WebhookSecrets)
	}),
	fx.Provide(func() paymentdomain.EventParser {
		return stripe.NewParser()
	}),
	fx.Provide(func(cfg config.Config) orderdomain.CheckoutGateway {
		return stripe.NewGateway(cfg.Payment.APIKey, cfg.Payment.SuccessURL, cfg.Payment.CancelURL, nil)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
