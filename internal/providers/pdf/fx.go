package pdf

import (
	"github.com/smallbiznis/coursepay/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Renderer {
	return New(Config{
		SellerName:  cfg.AppName,
		SellerEmail: cfg.SMTP.From,
	})
}
