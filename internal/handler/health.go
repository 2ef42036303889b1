package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health reports liveness plus the reachability of the two stores the
// core cannot run without.  A degraded dependency turns the response
// into 503 so load balancers stop routing booking traffic here.
func Health(db *sql.DB, rdb *redis.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := echo.Map{}

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				deps["mysql"] = "down"
				status = http.StatusServiceUnavailable
			} else {
				deps["mysql"] = "up"
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				deps["redis"] = "down"
				status = http.StatusServiceUnavailable
			} else {
				deps["redis"] = "up"
			}
		}

		return c.JSON(status, echo.Map{"status": http.StatusText(status), "deps": deps})
	}
}
