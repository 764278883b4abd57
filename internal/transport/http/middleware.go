package transporthttp

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// withLogging tags every request with an ID and logs it once the handler returns.
func withLogging(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		duration := time.Since(start)
		if c.Request.Method == http.MethodOptions {
			logger.Printf("[CORS preflight] %s %s %s", c.Request.Method, c.Request.URL.Path, duration)
			return
		}
		logger.Printf("%s %s %d %s id=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), duration, requestID)
	}
}

// withCORS lets any origin read responses.
func withCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
		c.Header("Access-Control-Expose-Headers", requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
