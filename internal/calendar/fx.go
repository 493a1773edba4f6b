package calendar

import (
	"go.uber.org/fx"

	"github.com/carebridge/billing/internal/calendar/service"
)

var Module = fx.Module("calendar.service",
	fx.Provide(service.NewService),
)
