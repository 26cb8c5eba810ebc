package subscription

import (
	"github.com/smallbiznis/coursepay/internal/subscription/repository"
	"github.com/smallbiznis/coursepay/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.store",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
