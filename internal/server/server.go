// Package server assembles the read-only status/control HTTP API
// described in SPEC_FULL.md's DOMAIN STACK around a gin.Engine, grounded
// on the teacher's internal/server/server.go.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"spatelier/internal/config"
	"spatelier/internal/endpoints"
	"spatelier/internal/ledger"
	"spatelier/internal/queue"

	"github.com/gin-gonic/gin"
)

// Server wraps the status API's HTTP server.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
}

// NewServer builds a Server over an already-open Ledger and Queue
// (cmd/http opens these once at startup and shares them with no other
// process — the status API is a read-mostly view onto the same ledger
// cmd/worker mutates).
func NewServer(port string, l *ledger.Ledger, q *queue.Queue, auth0 config.Auth0Config) *Server {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	endpoints.SetupRoutes(router, l, q, auth0)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: httpServer, router: router}
}

// Start runs the HTTP server until it's shut down.
func (s *Server) Start() error {
	slog.Info("starting status API", "address", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server. The Ledger/Queue passed to
// NewServer are owned by the caller and closed by it, not here.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down status API")
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware allows a browser-based dashboard to call the status
// API from a different origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
