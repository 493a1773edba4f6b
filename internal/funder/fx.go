package funder

import (
	"go.uber.org/fx"

	"github.com/carebridge/billing/internal/funder/service"
)

var Module = fx.Module("funder.service",
	fx.Provide(service.NewService),
)
