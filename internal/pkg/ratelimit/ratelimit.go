package ratelimit

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstore "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/cache"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/env"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

// Budget is how many requests one principal may spend per window.
type Budget struct {
	Name   string
	Max    int
	Window time.Duration
}

// Budgets for the routes that move money.
var (
	Checkout = Budget{Name: "checkout", Max: 20, Window: time.Minute}
	Payout   = Budget{Name: "payout", Max: 5, Window: time.Minute}
	Refund   = Budget{Name: "refund", Max: 5, Window: time.Minute}
	API      = Budget{Name: "api", Max: 120, Window: time.Minute}
)

// FromEnv overrides Max with RATE_LIMIT_<NAME> when set.
func (b Budget) FromEnv() Budget {
	b.Max = env.GetEnvInt("RATE_LIMIT_"+strings.ToUpper(b.Name), b.Max)
	return b
}

// NewStorage shares rate-limit counters across instances through Redis.
// Database 2 keeps them apart from the cache (0).
func NewStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redisstore.New(redisstore.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("RATE_LIMIT_REDIS_DB", 2),
		Reset:    false,
	})
}

// Key identifies the caller: the authenticated user, else the client IP.
func Key(c *fiber.Ctx) string {
	if uc := usercontext.GetUserContext(c); uc.IsLoggedIn {
		return fmt.Sprintf("user:%d", uc.UserID)
	}
	return "ip:" + c.IP()
}

// New returns a limiter for budget b. A nil storage keeps counters in memory.
func New(storage fiber.Storage, b Budget) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        b.Max,
		Expiration: b.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return b.Name + ":" + Key(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":  "rate_limited",
				"budget": b.Name,
			})
		},
		Storage: storage,
	})
}
