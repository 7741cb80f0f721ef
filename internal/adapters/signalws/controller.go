package signalws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/core"
	"github.com/DhrubaAgarwalla/private-chat-box/internal/relay"
)

var upgrader = websocket.Upgrader{
	// TODO: restrict origins once the deployment host is known.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller upgrades HTTP requests to signaling sessions and pumps frames
// between the socket and the broker.
type Controller struct {
	Broker     *relay.Broker
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(broker *relay.Broker, readLimit int64, pingPeriod time.Duration) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Controller{Broker: broker, ReadLimit: readLimit, PingPeriod: pingPeriod}
}

// HandleSignal accepts one transport connection and allocates a session
// identifier. Each connection is its own session even when a browser opens
// several tabs under the same client token.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	clientToken := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signalws").Msg("ws upgrade failed")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	log.Info().Str("module", "signalws").Str("sid", string(sid)).Str("client", clientToken).Msg("new signaling connection")

	conn := newSignalConn(ws)
	ctl.Broker.Connect(sid, conn)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		conn.writePump(ctx, ctl.PingPeriod)
		conn.Close()
	}()
	go ctl.readPump(ctx, cancel, sid, conn)
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *wsSignalConn) {
	defer func() {
		cancel()
		ctl.Broker.Disconnect(sid)
		log.Info().Str("module", "signalws").Str("sid", string(sid)).Msg("readPump closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signalws").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			ctl.Broker.HandleEnvelope(sid, data)
		}
	}
}
