package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/infra/logging"
	"brochure-pdf/internal/infra/ratelimit"
)

// Health paths served by the healthcheck middleware.
const (
	LivenessPath  = "/ops/health"
	ReadinessPath = "/ops/ready"
)

// Register attaches global middleware to the app. ready backs the readiness
// check; nil reports ready whenever the process is up.
func Register(app *fiber.App, cfg config.Config, ready healthcheck.HealthChecker) {
	app.Use(recover.New())

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	hc := healthcheck.Config{
		LivenessEndpoint:  LivenessPath,
		ReadinessEndpoint: ReadinessPath,
	}
	if ready != nil {
		hc.ReadinessProbe = ready
	}
	app.Use(healthcheck.New(hc))

	if cfg.RateLimiter.EnableUserLimiter {
		store := ratelimit.NewStore(ratelimit.RedisConfig{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.RateLimitDB,
		})
		app.Use(userRateLimitMiddleware(cfg, store))
	}

	app.Use(requestLogger)
}

// clientKey identifies a caller by address and user agent.
func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return hex.EncodeToString(sum[:])
}

// userRateLimitMiddleware limits conversion and populate requests per client.
// Operational endpoints are never limited.
func userRateLimitMiddleware(cfg config.Config, store fiber.Storage) fiber.Handler {
	if cfg.RateLimiter.UserLimit <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	return limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/ops/")
		},
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator:      clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "user", clientKey(c), "path", c.Path())
			return fiber.NewError(fiber.StatusTooManyRequests, "Too Many Requests")
		},
	})
}

// requestLogger resolves handler errors itself so the logged status is final.
func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			return herr
		}
	}

	requestID := c.Get(fiber.HeaderXRequestID)
	if requestID == "" {
		requestID = c.GetRespHeader(fiber.HeaderXRequestID)
	}
	logging.Info("Request handled",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)
	return nil
}
