package rates

import (
	"go.uber.org/fx"

	"github.com/carebridge/billing/internal/rates/service"
)

var Module = fx.Module("rates.service",
	fx.Provide(service.NewService),
)
