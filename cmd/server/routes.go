package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/httpapi"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/ratelimit"
	"github.com/MarkoPoloResearchLab/ezinfo/internal/store"
)

const (
	corsOriginWildcard = "*"
	corsMaxAge         = 12 * time.Hour
	healthRoutePath    = "/healthz"
	preflightRoutePath = httpapi.APIRoutePrefix + "/*path"
)

var (
	corsAllowedMethods = []string{http.MethodPost, http.MethodOptions}
	corsAllowedHeaders = []string{"Content-Type", "Accept", "Origin", "X-Request-Id"}
	corsExposedHeaders = []string{"Content-Type", "Content-Disposition"}
)

type routerDependencies struct {
	config  ServerConfig
	store   store.Store
	events  httpapi.EventSink
	limiter ratelimit.Limiter
	logger  *zap.Logger
}

func buildRouter(dependencies routerDependencies) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// ClientIP keys the visitor rate limit, so forwarded headers are only read from listed proxies.
	if proxyErr := router.SetTrustedProxies(dependencies.config.TrustedProxies); proxyErr != nil {
		return nil, proxyErr
	}
	router.Use(
		httpapi.RequestID(),
		httpapi.RecoverEnvelope(dependencies.logger),
		httpapi.RequestLogger(dependencies.logger),
	)
	router.GET(healthRoutePath, func(context *gin.Context) {
		context.JSON(http.StatusOK, gin.H{"ok": true, "serve_mode": string(dependencies.config.ServeMode)})
	})

	visitorRateLimit := httpapi.RateLimit(dependencies.limiter, dependencies.logger)

	if dependencies.config.ServeMode.ServesPages() {
		pageHandlers, pageErr := httpapi.NewPageHandlers(dependencies.store, dependencies.events, dependencies.logger)
		if pageErr != nil {
			return nil, pageErr
		}
		httpapi.RegisterPageRoutes(router, pageHandlers, visitorRateLimit)
	}

	if dependencies.config.ServeMode.ServesAPI() {
		apiCORS := newAPICORS(dependencies.config.AllowedOrigins)
		registerAPIPreflightRoutes(router, apiCORS)

		apiGroup := router.Group(httpapi.APIRoutePrefix)
		apiGroup.Use(apiCORS)
		httpapi.RegisterAPIRoutes(apiGroup, httpapi.NewAPIHandlers(dependencies.store, dependencies.logger), visitorRateLimit)
	}

	return router, nil
}

func newAPICORS(allowedOrigins []string) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: false,
		MaxAge:           corsMaxAge,
	}
	if len(allowedOrigins) == 1 && allowedOrigins[0] == corsOriginWildcard {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	return cors.New(corsConfig)
}

// registerAPIPreflightRoutes answers OPTIONS for every API path so browsers can post cross-origin.
func registerAPIPreflightRoutes(router *gin.Engine, apiCORS gin.HandlerFunc) {
	router.OPTIONS(preflightRoutePath, apiCORS, func(context *gin.Context) {
		context.Status(http.StatusNoContent)
	})
}
