// Package server wires the HTTP surface: routing, middleware and the
// listener lifecycle.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/do"

	"ghiblify/internal/handler"
	"ghiblify/internal/identity"
	"ghiblify/internal/log"
)

type Server struct {
	httpServer *http.Server
}

func NewServer(i *do.Injector) (*Server, error) {
	h := do.MustInvoke[*handler.Handler](i)
	addr := do.MustInvokeNamed[string](i, "addr")
	secret := do.MustInvokeNamed[string](i, "identity_secret")
	generatedDir := do.MustInvokeNamed[string](i, "generated_dir")
	origins := do.MustInvokeNamed[[]string](i, "cors_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), corsMiddleware(origins))

	if generatedDir != "" {
		router.Static("/generated", generatedDir)
	}
	router.GET("/feed.xml", h.Feed)
	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := router.Group("/api", identity.Middleware(secret))
	{
		api.POST("/generate", h.Generate)
		api.GET("/quota", h.Quota)
		api.POST("/payments/confirm", h.ConfirmPayment)
		api.GET("/plans", h.Plans)
		api.GET("/history", h.History)
		api.DELETE("/history/:id", h.DeleteHistory)
		api.DELETE("/history", h.ClearHistory)
		api.POST("/export", h.Export)
		api.GET("/captions", h.Captions)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: router,
			// Generation responses are only written after a tens-of-seconds
			// inference call; the write timeout must cover it.
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return s.serve(ctx, ln)
}

// serve runs the listener off ctx. Request contexts inherit it, so handlers
// see the logger and in-flight work survives until ctx itself ends; Stop
// drains rather than cancels.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	log.FromContextOrDiscard(ctx).Info("starting http server", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	log.FromContextOrDiscard(ctx).Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger := log.FromContextOrDiscard(c.Request.Context())
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond).String(),
			"errors", strings.Join(c.Errors.Errors(), "; "),
		)
	}
}
