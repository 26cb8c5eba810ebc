package productkey

import (
	"github.com/smallbiznis/coursepay/internal/productkey/generator"
	"github.com/smallbiznis/coursepay/internal/productkey/repository"
	"github.com/smallbiznis/coursepay/internal/productkey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("productkey.service",
	fx.Provide(repository.Provide),
	fx.Provide(generator.New),
	fx.Provide(service.NewService),
)
