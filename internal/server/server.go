// Package server exposes the billing engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/carebridge/billing/internal/clock"
	"github.com/carebridge/billing/internal/config"
	funderdomain "github.com/carebridge/billing/internal/funder/domain"
	invoicedomain "github.com/carebridge/billing/internal/invoice/domain"
	"github.com/carebridge/billing/internal/observability/metrics"
	"github.com/carebridge/billing/internal/providers/pdf"
	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	clock  clock.Clock

	reconciliationSvc recdomain.Service
	invoiceSvc        invoicedomain.Service
	funderSvc         funderdomain.Service
	pdfProvider       pdf.Provider
}

type ServerParams struct {
	fx.In

	Engine *gin.Engine
	Config config.Config
	Logger *zap.Logger
	Clock  clock.Clock

	ReconciliationSvc recdomain.Service
	InvoiceSvc        invoicedomain.Service
	FunderSvc         funderdomain.Service
	PDFProvider       pdf.Provider
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine: p.Engine,
		cfg:    p.Config,
		log:    p.Logger.Named("http.server"),
		clock:  p.Clock,

		reconciliationSvc: p.ReconciliationSvc,
		invoiceSvc:        p.InvoiceSvc,
		funderSvc:         p.FunderSvc,
		pdfProvider:       p.PDFProvider,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api/v1")

	rec := api.Group("/reconciliation")
	rec.POST("/generate", s.GenerateBillableVisits)
	rec.GET("/visits", s.ListBillableVisits)
	rec.POST("/visits/approve", s.BulkApproveVisits)
	rec.POST("/visits/:id/approve", s.ApproveVisit)
	rec.POST("/visits/:id/dispute", s.DisputeVisit)
	rec.POST("/visits/:id/override", s.OverrideVisit)
	rec.POST("/visits/:id/void", s.VoidVisit)
	rec.GET("/summary", s.GetReconciliationSummary)

	inv := api.Group("/invoices")
	inv.POST("/generate", s.GenerateInvoice)
	inv.GET("", s.ListInvoices)
	inv.GET("/:id", s.GetInvoiceByID)
	inv.GET("/:id/pdf", s.GetInvoicePDF)
	inv.POST("/:id/send", s.SendInvoice)
	inv.POST("/:id/payments", s.RecordInvoicePayment)
	inv.POST("/:id/void", s.VoidInvoice)
	inv.POST("/:id/write-off", s.WriteOffInvoice)

	funders := api.Group("/funders")
	funders.GET("", s.ListFunders)
	funders.GET("/:id/ratecards", s.ListFunderRateCards)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
