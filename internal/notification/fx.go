package notification

import (
	"github.com/smallbiznis/coursepay/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(service.NewService),
)
