// Package router wires the HTTP routes to their handlers.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/concert-ticketing/internal/config"
	"github.com/iliyamo/concert-ticketing/internal/handler"
	"github.com/iliyamo/concert-ticketing/internal/middleware"
)

// RegisterRoutes mounts the queue and payment endpoints.  The rate
// limiter guards only the queue-join endpoint: that is the one a
// refreshing crowd hammers.  Starting a payment additionally passes
// the admission guard, which verifies the signed token handed out on
// activation before the handler spends a store round trip on the
// authoritative check.
func RegisterRoutes(e *echo.Echo, qh *handler.QueueHandler, ph *handler.PaymentHandler, jwtSecret string, db *sql.DB, rdb *redis.Client) {
	e.GET("/healthz", handler.Health(db, rdb))

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	guard := middleware.AdmissionGuard(jwtSecret)

	v1 := e.Group("/v1")

	q := v1.Group("/queue")
	q.POST("/tokens", qh.Join, limiter)
	q.GET("/tokens/:id", qh.Status)
	q.POST("/tokens/:id/complete", qh.Complete)
	q.POST("/tokens/:id/expire", qh.Expire)

	p := v1.Group("/payments")
	p.POST("", ph.Start, guard)
	p.GET("/:id", ph.Get)
	p.DELETE("/:id", ph.Acknowledge)
}
