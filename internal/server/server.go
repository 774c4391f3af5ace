// Package server builds the HTTP router of the relay.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"amocrm-relay/internal/common/logger"
)

// Registrar mounts a webhook handler on the router.
type Registrar interface {
	Register(router gin.IRoutes, path string)
}

type Options struct {
	Logger      logger.Logger
	Webhook     Registrar
	WebhookPath string
	// Ready reports whether the relay can serve webhooks. Nil means always.
	Ready func() map[string]bool
}

func New(opts Options) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	if opts.Logger != nil {
		engine.Use(RequestLogger(opts.Logger))
	}

	engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	engine.GET("/ready", readyHandler(opts.Ready))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if opts.Webhook != nil {
		opts.Webhook.Register(engine, opts.WebhookPath)
	}
	return engine
}

// readyHandler answers 200 with the integration status. The relay degrades
// instead of failing when an integration is not configured, so readiness
// never returns an error status.
func readyHandler(ready func() map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status": "ready",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}
		if ready != nil {
			body["integrations"] = ready()
		}
		c.JSON(http.StatusOK, body)
	}
}

// RequestLogger logs every request with its status and latency.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := map[string]interface{}{
			"method":    c.Request.Method,
			"path":      path,
			"status":    c.Writer.Status(),
			"latencyMs": time.Since(start).Milliseconds(),
			"clientIp":  c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("HTTP request", fields)
			return
		}
		log.Debug("HTTP request", fields)
	}
}
