package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine serving the execution contract.
// corsOrigins may contain "*" to allow any origin.
func NewRouter(h *Handler, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(h.log), gin.CustomRecovery(func(c *gin.Context, err any) {
		h.log.Error("handler panic", zap.Any("panic", err), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))
	r.Use(cors.New(corsConfig(corsOrigins)))

	RegisterRoutes(r, h)
	return r
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/health", h.Health)

	r.POST("/run-code", h.RunCode)
	r.GET("/get-output/:run_id", h.GetOutput)

	r.POST("/explain-code", h.ExplainCode)
	r.POST("/generate-code", h.GenerateCode)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		// pollers hit /get-output once a second; keep them out of info logs
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request", fields...)
		} else if c.FullPath() == "/get-output/:run_id" {
			log.Debug("request", fields...)
		} else {
			log.Info("request", fields...)
		}
	}
}
