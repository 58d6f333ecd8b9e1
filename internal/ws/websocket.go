package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kiliankoe/chainrelay/internal/game"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrChannelBusy   = errors.New("channel send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Envelope is the frame format of the plain WebSocket endpoint in both
// directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsChannel struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *wsChannel) Emit(event string, payload any) error {
	env := Envelope{Event: event}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Payload = b
	}
	msg, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return ErrChannelClosed
	default:
		return ErrChannelBusy
	}
}

func (c *wsChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "replaced"),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) writePump() {
	defer c.Close()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// ServeWS upgrades the request and binds the connection to the participant
// named by the token query parameter.
func (srv *Server) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ch := newWSChannel(conn)
	replaced := srv.Registry.Bind(token, ch)
	go ch.writePump()
	_ = ch.Emit(game.EventConnected, map[string]any{"participantId": token})
	log.Info().Str("participant", token).Bool("replaced", replaced).Msg("websocket connected")

	srv.readPump(token, ch)
}

func (srv *Server) readPump(token string, ch *wsChannel) {
	defer func() {
		srv.Registry.Release(token, ch)
		_ = ch.Close()
		log.Info().Str("participant", token).Msg("websocket disconnected")
	}()

	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = ch.Emit("error", map[string]any{"code": "bad_request", "message": "malformed envelope"})
			continue
		}
		switch env.Event {
		case "session:submit":
			var p submitPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				_ = ch.Emit("error", map[string]any{"code": "bad_request", "message": "malformed payload"})
				continue
			}
			if err := srv.Games.SubmitLink(p.SessionCode, token, p.link()); err != nil {
				_ = ch.Emit("error", map[string]any{"code": game.ErrorCode(err), "message": err.Error()})
			}
		default:
			// ignore unknown events
		}
	}
}
