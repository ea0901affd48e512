package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/chatter/internal/adapters/signal"
	"github.com/avolkov/chatter/internal/app"
	"github.com/avolkov/chatter/internal/config"
	"github.com/avolkov/chatter/internal/store"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// API exposes the REST surface that feeds server-to-client hints into the
// relay and reads presence back out of it.
type API struct {
	Registry *app.Registry
	Store    *store.Memory
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctrl *signal.Controller, api *API) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ChatterSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	g := r.Group("/api")
	g.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("token", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	g.POST("/conversations/:id/read", api.handleMessagesRead)
	g.GET("/presence/:userId", api.handlePresence)
	g.POST("/contacts", api.handleAddContact)

	return r
}
