package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/observability"
	obslogger "github.com/smallbiznis/storepulse/internal/observability/logger"
	obstracing "github.com/smallbiznis/storepulse/internal/observability/tracing"
	scoring "github.com/smallbiznis/storepulse/internal/scoring/domain"
	"github.com/smallbiznis/storepulse/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("ops.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

const (
	headerTraceID = "X-Trace-Id"
	headerSpanID  = "X-Span-Id"
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: healtherr.Classify,
	}))
	r.Use(RemoteSpan())
	r.Use(obstracing.GinMiddleware(healtherr.Classify))
	r.Use(ErrorHandlingMiddleware())
	return r
}

// RemoteSpan adopts X-Trace-Id/X-Span-Id from callers that do not send
// W3C traceparent headers.
func RemoteSpan() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("traceparent") == "" {
			ctx := correlation.ContextWithRemoteSpan(c.Request.Context(), c.GetHeader(headerTraceID), c.GetHeader(headerSpanID))
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.OpsHTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("ops server stopped", zap.Error(err))
				}
			}()
			log.Info("ops server listening", zap.String("addr", cfg.OpsHTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine  *gin.Engine
	db      *gorm.DB
	scoring scoring.Service
	holder  *config.ScoringConfigHolder
}

type ServerParams struct {
	fx.In

	Gin     *gin.Engine
	DB      *gorm.DB
	Scoring scoring.Service
	Holder  *config.ScoringConfigHolder
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:  p.Gin,
		db:      p.DB,
		scoring: p.Scoring,
		holder:  p.Holder,
	}
	svc.RegisterRoutes()
	return svc
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", s.Healthz)
	s.engine.GET("/readyz", s.Readyz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ops := s.engine.Group("/ops")
	ops.GET("/scoring-config", s.ScoringConfig)
	ops.POST("/score", s.Score)
}
