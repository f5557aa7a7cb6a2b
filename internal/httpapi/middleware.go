package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/ratelimit"
)

const (
	rateLimitedMessage  = "Too many requests. Please try again later."
	uncaughtErrorSource = "uncaught"
)

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
			zap.String(logFieldRequestID, requestIDFor(context)),
		)
	}
}

// RecoverEnvelope turns a panic into the generic 500 failure envelope.
func RecoverEnvelope(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			requestID := requestIDFor(context)
			logger.Error(internalServerErrorMessage,
				zap.String(logFieldRequestID, requestID),
				zap.String(logFieldSource, uncaughtErrorSource),
				zap.String("method", context.Request.Method),
				zap.String("path", context.Request.URL.Path),
				zap.String("panic", fmt.Sprint(recovered)),
			)
			context.AbortWithStatusJSON(http.StatusInternalServerError, failureEnvelope(internalServerErrorMessage, requestID))
		}()
		context.Next()
	}
}

// RateLimit rejects clients over their per-window budget. Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		clientIP := context.ClientIP()
		allowed, limitErr := limiter.Allow(context.Request.Context(), clientIP)
		if limitErr != nil {
			logger.Warn("rate_limiter_unavailable", zap.String("ip", clientIP), zap.Error(limitErr))
			context.Next()
			return
		}
		if !allowed {
			context.AbortWithStatusJSON(http.StatusTooManyRequests, failureEnvelope(rateLimitedMessage, requestIDFor(context)))
			return
		}
		context.Next()
	}
}
