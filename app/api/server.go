package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/url-harvest/app/metrics"
)

// NewServer creates the search HTTP server with all routes configured
func NewServer(handler *Handler, apiKey string, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	r.Use(gin.Recovery())

	// Search results and removals must never be served from a cache.
	r.Use(func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiKey, m)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiKey string, m *metrics.Metrics) {
	r.GET("/", handler.GetIndex)
	r.GET("/search", handler.GetSearch)

	removal := r.Group("/")
	if apiKey != "" {
		removal.Use(authMiddleware(apiKey))
		slog.Info("Removal endpoints require an API key")
	} else {
		slog.Warn("Removal endpoints are not protected (api_key not set)")
	}
	removal.GET("/remove_url", handler.GetRemoveURL)
	removal.GET("/remove_meta", handler.GetRemoveMeta)

	r.GET("/health", handler.GetHealth)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware accepts the key in X-API-Key or as a bearer token
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.String(http.StatusUnauthorized, "API key required\n")
			c.Abort()
			return
		}

		if providedKey != apiKey {
			c.String(http.StatusUnauthorized, "Invalid API key\n")
			c.Abort()
			return
		}

		c.Next()
	}
}
