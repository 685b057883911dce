package providers

import (
	"github.com/smallbiznis/orderdesk/internal/providers/email"
	"github.com/smallbiznis/orderdesk/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
)
