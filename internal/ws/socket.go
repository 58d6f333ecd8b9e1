package ws

import (
    "errors"
    "net/http"

    "github.com/gin-gonic/gin"
    socketio "github.com/googollee/go-socket.io"
    "github.com/kiliankoe/chainrelay/internal/game"
    "github.com/rs/zerolog/log"
)

// ConnCtx is stored on every socket; Token is the participant identity the
// client supplied when connecting.
type ConnCtx struct {
    Token   string
    Channel *socketChannel
}

type socketChannel struct {
    conn socketio.Conn
}

func (c *socketChannel) Emit(event string, payload any) error {
    if payload == nil {
        c.conn.Emit(event)
        return nil
    }
    c.conn.Emit(event, payload)
    return nil
}

func (c *socketChannel) Close() error { return c.conn.Close() }

type Server struct {
    Games    *game.Manager
    Registry *Registry
}

func New(gm *game.Manager, reg *Registry) *Server {
    return &Server{Games: gm, Registry: reg}
}

type submitPayload struct {
    SessionCode string `json:"sessionCode"`
    Kind        string `json:"kind"`
    Text        string `json:"text"`
    ImageURL    string `json:"imageUrl"`
}

// Mount attaches the Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
    io := socketio.NewServer(nil)

    io.OnConnect("/", func(s socketio.Conn) error {
        u := s.URL()
        token := u.Query().Get("token")
        if token == "" {
            log.Warn().Str("sid", s.ID()).Msg("socket without token")
            return errors.New("missing token")
        }
        ch := &socketChannel{conn: s}
        s.SetContext(&ConnCtx{Token: token, Channel: ch})
        replaced := srv.Registry.Bind(token, ch)
        s.Emit(game.EventConnected, map[string]any{"participantId": token})
        log.Info().Str("sid", s.ID()).Str("participant", token).Bool("replaced", replaced).Msg("socket connected")
        return nil
    })

    // session:create
    io.OnEvent("/", "session:create", func(s socketio.Conn, payload struct {
        Name string `json:"name"`
    }) map[string]any {
        ctx, ok := connCtx(s)
        if !ok {
            return srv.err(s, "unauthorized", "Not connected")
        }
        code, err := srv.Games.CreateSession(ctx.Token, payload.Name)
        if err != nil {
            return srv.fail(s, err)
        }
        log.Info().Str("sid", s.ID()).Str("code", code).Msg("session:create")
        return map[string]any{"sessionCode": code}
    })

    // session:join
    io.OnEvent("/", "session:join", func(s socketio.Conn, payload struct {
        SessionCode string `json:"sessionCode"`
        Name        string `json:"name"`
    }) map[string]any {
        ctx, ok := connCtx(s)
        if !ok {
            return srv.err(s, "unauthorized", "Not connected")
        }
        if err := srv.Games.JoinSession(payload.SessionCode, ctx.Token, payload.Name); err != nil {
            return srv.fail(s, err)
        }
        log.Info().Str("sid", s.ID()).Str("code", payload.SessionCode).Str("participant", ctx.Token).Msg("session:join")
        return map[string]any{"ok": true}
    })

    // session:start (owner)
    io.OnEvent("/", "session:start", func(s socketio.Conn, payload struct {
        SessionCode string `json:"sessionCode"`
    }) map[string]any {
        ctx, ok := connCtx(s)
        if !ok {
            return srv.err(s, "unauthorized", "Not connected")
        }
        if err := srv.Games.StartSession(payload.SessionCode, ctx.Token); err != nil {
            return srv.fail(s, err)
        }
        log.Info().Str("code", payload.SessionCode).Msg("session:start")
        return map[string]any{"ok": true}
    })

    // session:submit
    io.OnEvent("/", "session:submit", func(s socketio.Conn, payload submitPayload) map[string]any {
        ctx, ok := connCtx(s)
        if !ok {
            return srv.err(s, "unauthorized", "Not connected")
        }
        if err := srv.Games.SubmitLink(payload.SessionCode, ctx.Token, payload.link()); err != nil {
            return srv.fail(s, err)
        }
        return map[string]any{"ok": true}
    })

    io.OnError("/", func(s socketio.Conn, e error) {
        log.Error().Err(e).Msg("socket error")
    })
    io.OnDisconnect("/", func(s socketio.Conn, reason string) {
        if ctx, ok := connCtx(s); ok {
            srv.Registry.Release(ctx.Token, ctx.Channel)
        }
        log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
    })

    go io.Serve()

    // Mount to router
    r.GET("/socket.io/*any", gin.WrapH(io))
    r.POST("/socket.io/*any", gin.WrapH(io))

    // Basic CORS preflight for Socket.IO POST
    r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
        c.Header("Access-Control-Allow-Origin", "*")
        c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
        c.Header("Access-Control-Allow-Headers", "Content-Type")
        c.Status(http.StatusNoContent)
    })

    return io
}

func (p submitPayload) link() game.Link {
    switch game.LinkKind(p.Kind) {
    case game.LinkPrompt:
        return game.PromptLink(p.Text)
    case game.LinkDrawing:
        return game.DrawingLink(p.ImageURL)
    default:
        return game.Link{Kind: game.LinkKind(p.Kind)}
    }
}

func connCtx(s socketio.Conn) (*ConnCtx, bool) {
    ctx, ok := s.Context().(*ConnCtx)
    return ctx, ok && ctx != nil
}

func (srv *Server) fail(s socketio.Conn, err error) map[string]any {
    return srv.err(s, game.ErrorCode(err), err.Error())
}

func (srv *Server) err(s socketio.Conn, code, message string) map[string]any {
    s.Emit("error", map[string]any{"code": code, "message": message})
    return map[string]any{"error": message}
}
