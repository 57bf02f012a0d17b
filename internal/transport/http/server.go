package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/service/messages"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// NewServer builds an HTTP server with the REST API and the watch stream.
func NewServer(
	st store.Store,
	msgs *messages.Service,
	authService *auth.Service,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", gin.WrapF(healthHandler))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	messageHandlers := NewMessageHandlers(msgs, cfg.SendRatePerMinute, logger)
	watchHandler := NewWatchHandler(msgs, logger)
	requireAuth := AuthMiddleware(authService, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", requireAuth)
	authed.GET("/users", userHandlers.ListUsers)
	authed.PUT("/users/me/token", userHandlers.UpdatePushToken)
	authed.DELETE("/users/me/token", userHandlers.ClearPushToken)
	authed.POST("/messages", messageHandlers.PostMessage)
	authed.GET("/messages", messageHandlers.ListMessages)

	router.GET("/ws/watch", requireAuth, watchHandler.Watch)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
	_, _ = fmt.Fprint(w, "ok")
}
