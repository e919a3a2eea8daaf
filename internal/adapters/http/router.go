package http

import (
	"context"

	"github.com/dkeye/Stream/internal/adapters/signal"
	"github.com/dkeye/Stream/internal/config"
	handlers "github.com/dkeye/Stream/internal/transport/http"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

// ClientTokenMiddleware tags every request with a token kept in the cookie
// session, so broker logs can tie reconnects of one browser together.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Str("module", "adapters.http").Msg("no secret configured, cookies will not survive a restart")
	}
	store := cookie.NewStore([]byte(secret))
	r.Use(sessions.Sessions("StreamSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/health", handlers.HealthHandler)

	api := r.Group("/api")
	api.GET("/ws/peer", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("peer", c.Query("id")).Msg("ws peer endpoint hit")
		ctl.HandleSignal(ctx, c)
	})
	api.GET("/peers/:id", handlers.PeerHandler(ctl.Presence))

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
