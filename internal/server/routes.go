package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig, gatherer prometheus.Gatherer) {
	e.HTTPErrorHandler = NotFoundJSON()
	e.Use(SetNoCacheHeaders)

	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Skipper: func(c echo.Context) bool {
				p := c.Request().URL.Path
				return p == "/metrics" || strings.HasSuffix(p, "/health")
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)

	pools := v1.Group("/pools")
	pools.GET("", h.ListPools)
	pools.GET("/:mint", h.GetPool)
	pools.GET("/:mint/quote/:side", h.Quote)
	pools.GET("/:mint/trades", h.RecentTrades)

	// Mutating endpoints are rate limited per client IP.
	var limit []echo.MiddlewareFunc
	if cfg.TradeRate > 0 {
		limit = append(limit, middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      cfg.TradeRate,
			Burst:     cfg.TradeBurst,
			ExpiresIn: 2 * time.Minute,
		})))
	}
	pools.POST("", h.InitializePool, limit...)
	pools.POST("/:mint/buy", h.Buy, limit...)
	pools.POST("/:mint/sell", h.Sell, limit...)

	if h.Feed != nil {
		v1.GET("/stream/trades", h.StreamTrades)
	}

	if cfg.DevMode && h.Book != nil {
		v1.POST("/dev/airdrop", h.Airdrop)
	}

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
