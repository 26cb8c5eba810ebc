package grace

import (
	"github.com/smallbiznis/coursepay/internal/grace/service"
	"go.uber.org/fx"
)

var Module = fx.Module("grace.service",
	fx.Provide(service.NewService),
)
