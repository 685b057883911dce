package submission

import (
	"github.com/smallbiznis/orderdesk/internal/submission/repository"
	"github.com/smallbiznis/orderdesk/internal/submission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("submission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
