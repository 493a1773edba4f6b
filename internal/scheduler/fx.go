package scheduler

import (
	"context"

	"go.uber.org/fx"

	"github.com/carebridge/billing/internal/config"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(start),
)

func start(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.SchedulerEnabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
