package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/groupchat/internal/adapters/signal"
	"github.com/dkeye/groupchat/internal/app"
	"github.com/dkeye/groupchat/internal/app/orch"
	"github.com/dkeye/groupchat/internal/config"
	"github.com/dkeye/groupchat/internal/core"
)

// API bundles what the REST handlers pass through to.
type API struct {
	Orch     *orch.Orchestrator
	Store    core.MessageStore
	Notifier *app.Notifier
	Auth     core.Verifier
}

func SetupRouter(ctx context.Context, cfg *config.Config, api *API) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	ctrl := signal.NewSignalWSController(api.Orch, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})

	rest := r.Group("/api")
	rest.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})
	// authentication happens over the socket with the authenticate event
	rest.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	authed := rest.Group("", BearerAuth(api.Auth))
	authed.GET("/users/:userId/presence", api.getPresence)
	if api.Store != nil {
		authed.GET("/groups/:groupId/messages", api.groupMessages)
		authed.POST("/groups/:groupId/messages", api.sendMessage)
		authed.GET("/groups/:groupId/presence", api.groupPresence)
		authed.POST("/messages/:messageId/read", api.markRead)
		authed.POST("/messages/:messageId/reactions", api.addReaction)
		authed.DELETE("/messages/:messageId/reactions", api.removeReaction)
		authed.PUT("/users/me/push-token", api.savePushToken)
	}

	return r
}
