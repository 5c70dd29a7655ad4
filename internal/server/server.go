package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fuelledger/internal/authorization"
	"github.com/smallbiznis/fuelledger/internal/config"
	receiptdomain "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	"github.com/smallbiznis/fuelledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/fuelledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fuelledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/fuelledger/internal/observability/tracing"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	placementdomain "github.com/smallbiznis/fuelledger/internal/placement/domain"
	recalculationdomain "github.com/smallbiznis/fuelledger/internal/recalculation/domain"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
	volumedomain "github.com/smallbiznis/fuelledger/internal/volume/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", obsmetrics.Handler())

	return r
}

type Params struct {
	fx.In

	Engine        *gin.Engine
	Log           *zap.Logger
	OrderSlips    orderslipdomain.Service
	Receipts      receiptdomain.Service
	Volume        volumedomain.Service
	Ledger        ledgerdomain.Service
	Recalculation recalculationdomain.Service
	Placements    placementdomain.Service
	Sequence      sequencedomain.Service
	Authz         authorization.Service `optional:"true"`
}

type Server struct {
	engine        *gin.Engine
	log           *zap.Logger
	orderSlips    orderslipdomain.Service
	receipts      receiptdomain.Service
	volume        volumedomain.Service
	ledger        ledgerdomain.Service
	recalculation recalculationdomain.Service
	placements    placementdomain.Service
	sequence      sequencedomain.Service
	authz         authorization.Service
}

func NewServer(p Params) *Server {
	return &Server{
		engine:        p.Engine,
		log:           p.Log.Named("http.server"),
		orderSlips:    p.OrderSlips,
		receipts:      p.Receipts,
		volume:        p.Volume,
		ledger:        p.Ledger,
		recalculation: p.Recalculation,
		placements:    p.Placements,
		sequence:      p.Sequence,
		authz:         p.Authz,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

// RegisterAPIRoutes mounts every engine operation under /api/v1.
func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1", CompanyContext())

	slips := api.Group("/order-slips")
	slips.POST("", s.authorize(authorization.ObjectOrderSlip, authorization.ActionOrderSlipCreate), s.CreateOrderSlip)
	slips.GET("", s.authorize(authorization.ObjectOrderSlip, authorization.ActionOrderSlipView), s.ListOrderSlips)
	slips.GET("/:id", s.authorize(authorization.ObjectOrderSlip, authorization.ActionOrderSlipView), s.GetOrderSlip)
	slips.GET("/:id/transitions", s.authorize(authorization.ObjectOrderSlip, authorization.ActionOrderSlipView), s.ListOrderSlipTransitions)
	slips.POST("/:id/transitions", s.authorize(authorization.ObjectOrderSlip, authorization.ActionOrderSlipTransition), s.TransitionOrderSlip)
	slips.GET("/:id/balance", s.authorize(authorization.ObjectOrderSlip, authorization.ActionOrderSlipView), s.GetOrderSlipBalance)
	slips.POST("/:id/volume-checks", s.authorize(authorization.ObjectDeliveryReceipt, authorization.ActionReceiptCreate), s.CheckOrderSlipVolume)
	slips.POST("/:id/price-revisions", s.authorize(authorization.ObjectRecalculation, authorization.ActionRecalculationApply), s.RecalculateOrderSlip)

	receipts := api.Group("/delivery-receipts")
	receipts.POST("", s.authorize(authorization.ObjectDeliveryReceipt, authorization.ActionReceiptCreate), s.CreateDeliveryReceipt)
	receipts.GET("", s.authorize(authorization.ObjectDeliveryReceipt, authorization.ActionReceiptView), s.ListDeliveryReceipts)
	receipts.GET("/:id", s.authorize(authorization.ObjectDeliveryReceipt, authorization.ActionReceiptView), s.GetDeliveryReceipt)
	receipts.POST("/:id/transitions", s.TransitionDeliveryReceipt)
	receipts.DELETE("/:id", s.authorize(authorization.ObjectDeliveryReceipt, authorization.ActionReceiptDelete), s.DeleteDeliveryReceipt)
	receipts.POST("/:id/price-revisions", s.authorize(authorization.ObjectRecalculation, authorization.ActionRecalculationApply), s.RecalculateReceipt)
	receipts.GET("/:id/adjustments", s.authorize(authorization.ObjectRecalculation, authorization.ActionRecalculationView), s.ListReceiptAdjustments)
	receipts.GET("/:id/ledger-entries", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.ListReceiptLedgerEntries)

	revisions := api.Group("/price-revisions")
	revisions.GET("/:id/pending", s.authorize(authorization.ObjectRecalculation, authorization.ActionRecalculationView), s.ListPendingReceipts)
	revisions.POST("/:id/retry", s.authorize(authorization.ObjectRecalculation, authorization.ActionRecalculationApply), s.RetryRevision)

	placements := api.Group("/placements")
	placements.POST("", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementManage), s.CreatePlacement)
	placements.GET("/:id", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementView), s.GetPlacement)
	placements.PATCH("/:id", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementManage), s.UpdatePlacementTerms)
	placements.POST("/:id/post", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementManage), s.PostPlacement)
	placements.POST("/:id/lock", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementManage), s.LockPlacement)
	placements.POST("/:id/withdraw", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementDispose), s.WithdrawPlacement)
	placements.POST("/:id/rollover", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementDispose), s.RollOverPlacement)
	placements.POST("/:id/swap", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementManage), s.SwapPlacement)
	placements.GET("/:id/swaps", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementView), s.ListPlacementSwaps)
	placements.GET("/:id/ledger-entries", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.ListPlacementLedgerEntries)
	api.GET("/placement-batches/:batch_number", s.authorize(authorization.ObjectPlacement, authorization.ActionPlacementView), s.ListPlacementBatch)

	api.GET("/sequences/:document_type/next", s.authorize(authorization.ObjectSequence, authorization.ActionSequenceView), s.PreviewSequence)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
