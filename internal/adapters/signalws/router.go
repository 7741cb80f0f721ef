package signalws

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/config"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/domain"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/relay"
)

// ClientTokenMiddleware tags every browser with a stable opaque token.
// The token is not a session id; it only ties log lines from the same client
// together across reconnects.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires the websocket signaling endpoint and the room inspection
// API.
func SetupRouter(ctx context.Context, cfg *config.Config, broker *relay.Broker) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ChatBoxSessions", store))
	r.Use(ClientTokenMiddleware())

	ctl := NewController(broker, cfg.ReadLimit, cfg.PingPeriod)

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	// Occupancy snapshots. No room bodies exist server-side, only membership.
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": broker.Rooms()})
	})

	api.GET("/rooms/:id", func(c *gin.Context) {
		info := broker.RoomInfo(domain.RoomID(c.Param("id")))
		c.JSON(http.StatusOK, info)
	})

	log.Info().Str("module", "signalws").Msg("router setup")
	return r
}
