// Package api serves the trader's status surface: a gin HTTP API with
// status, journal, and metrics endpoints, plus a gRPC health service.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tradebot/internal/domain"
	"tradebot/internal/engine"
	"tradebot/internal/metrics"
	"tradebot/internal/store"
)

// StatusSource exposes engine progress.
type StatusSource interface {
	Snapshot() engine.StatusSnapshot
}

// OpenOrderSource lists orders still working at the broker.
type OpenOrderSource interface {
	ListOpenOrders(ctx context.Context) ([]domain.Order, error)
}

// Options configures a Server. Empty addresses disable that listener.
type Options struct {
	HTTPAddr       string
	GRPCAddr       string
	Status         StatusSource
	Orders         store.OrderStore
	Signals        store.SignalStore
	Reports        store.ReportStore
	OpenOrders     OpenOrderSource
	HealthInterval time.Duration
}

// Server hosts the HTTP and gRPC endpoints.
type Server struct {
	httpAddr string
	grpcAddr string
	status   StatusSource
	orders   store.OrderStore
	signals  store.SignalStore
	reports  store.ReportStore
	open     OpenOrderSource
	router   *gin.Engine
	health   *Health
	log      *slog.Logger
}

// NewServer builds the router and health service. Journal routes are only
// mounted for the stores provided.
func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		httpAddr: opts.HTTPAddr,
		grpcAddr: opts.GRPCAddr,
		status:   opts.Status,
		orders:   opts.Orders,
		signals:  opts.Signals,
		reports:  opts.Reports,
		open:     opts.OpenOrders,
		health:   NewHealth(opts.Status, opts.HealthInterval),
		log:      slog.Default().With("component", "api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/healthz", s.handleHealth)
	r.GET("/status", s.handleStatus)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	if s.orders != nil {
		v1.GET("/orders", s.handleOrders)
		v1.GET("/orders/:id", s.handleOrder)
	}
	if s.open != nil {
		v1.GET("/open-orders", s.handleOpenOrders)
	}
	if s.signals != nil {
		v1.GET("/signals", s.handleSignals)
	}
	if s.reports != nil {
		v1.GET("/reports", s.handleReports)
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Health returns the gRPC health service.
func (s *Server) Health() *Health { return s.health }

// Run serves until ctx is cancelled or a listener fails, then shuts both
// servers down.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.httpAddr != "" {
		srv := &http.Server{Addr: s.httpAddr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			s.log.Info("http listening", "addr", s.httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shCtx)
		})
	}

	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			return err
		}
		gs := grpc.NewServer()
		healthpb.RegisterHealthServer(gs, s.health.Server())
		g.Go(func() error {
			s.log.Info("grpc listening", "addr", s.grpcAddr)
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			s.health.Shutdown()
			gs.GracefulStop()
			return nil
		})
		g.Go(func() error { return s.health.Watch(ctx) })
	}

	return g.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"duration", time.Since(start))
	}
}
