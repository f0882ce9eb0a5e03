package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pairchat/pairchat-server/internal/auth"
	"github.com/pairchat/pairchat-server/internal/config"
	"github.com/pairchat/pairchat-server/internal/core"
	"github.com/pairchat/pairchat-server/internal/store"
)

// NewServer builds the HTTP server with all routes wired. The websocket
// endpoint lives on a ServeMux in front of the API engine: the upgrade
// hijacks the connection and needs the raw ResponseWriter.
func NewServer(
	cfg *config.Config,
	st store.Store,
	resolver *auth.Resolver,
	registry *core.Registry,
	admitter *core.Admitter,
	broadcaster *core.Broadcaster,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	r.GET("/health", healthHandler)

	userHandlers := NewUserHandlers(st, logger)
	convHandlers := NewConversationHandlers(st, logger)
	msgHandlers := NewMessageHandlers(st, broadcaster, logger)

	api := r.Group("/api", AuthMiddleware(resolver, logger))
	api.GET("/users/me", userHandlers.Me)
	api.GET("/users", userHandlers.Search)
	api.POST("/conversations", convHandlers.Create)
	api.GET("/conversations", convHandlers.List)
	api.GET("/conversations/:id/messages", msgHandlers.List)
	api.POST("/conversations/:id/messages", msgHandlers.Create)
	api.PATCH("/messages/:id", msgHandlers.Update)
	api.DELETE("/messages/:id", msgHandlers.Delete)

	sessionOpts := core.SessionOptions{
		KeepaliveInterval: cfg.KeepaliveInterval,
		WriteTimeout:      cfg.WriteTimeout,
		EventBuffer:       cfg.SessionBuffer,
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(registry, admitter, sessionOpts, logger))
	mux.Handle("/", r)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
