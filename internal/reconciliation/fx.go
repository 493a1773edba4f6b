package reconciliation

import (
	"go.uber.org/fx"

	"github.com/carebridge/billing/internal/reconciliation/service"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(service.NewService),
)
