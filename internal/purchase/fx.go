package purchase

import (
	"github.com/smallbiznis/coursepay/internal/purchase/repository"
	"github.com/smallbiznis/coursepay/internal/purchase/service"
	"go.uber.org/fx"
)

var Module = fx.Module("purchase.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
