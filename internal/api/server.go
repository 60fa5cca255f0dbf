// Package api exposes the management and query surface over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goatkit/funcflow/internal/detect"
	"github.com/goatkit/funcflow/internal/execlog"
	"github.com/goatkit/funcflow/internal/gateway"
	"github.com/goatkit/funcflow/internal/pipeline"
	"github.com/goatkit/funcflow/internal/registry"
)

// Server wires the HTTP surface onto the core components.
type Server struct {
	store    *registry.Store
	builder  *registry.Builder
	gateway  *gateway.Gateway
	engine   *detect.Engine
	pipeline *pipeline.Pipeline
	execs    *execlog.Store
	logger   *slog.Logger
}

// New creates the HTTP server facade. execs may be nil when no
// execution log store is configured.
func New(
	store *registry.Store,
	builder *registry.Builder,
	gw *gateway.Gateway,
	engine *detect.Engine,
	pl *pipeline.Pipeline,
	execs *execlog.Store,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		builder:  builder,
		gateway:  gw,
		engine:   engine,
		pipeline: pl,
		execs:    execs,
		logger:   logger,
	}
}

// Router builds the gin handler.
func (s *Server) Router() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/functions", s.handleListFunctions)
		v1.GET("/functions/*name", s.handleDescribeFunction)
		v1.POST("/rebuild", s.handleRebuild)
		v1.POST("/execute", s.handleExecute)
		v1.POST("/process", s.handleProcess)
		v1.POST("/suggest", s.handleSuggest)
		v1.GET("/executions", s.handleExecutions)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	reg := s.store.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"epoch":     reg.Epoch(),
		"functions": reg.Len(),
	})
}
