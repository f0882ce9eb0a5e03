package http

import (
	"context"
	"errors"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pairchat/pairchat-server/internal/core"
)

// WSHandler upgrades HTTP connections, admits them, and hands them to a
// core.Session for the life of the connection. It is a plain stdhttp.Handler
// mounted outside the API engine: the upgrade hijacks the connection, so it
// must receive the raw ResponseWriter, not a framework wrapper.
type WSHandler struct {
	registry *core.Registry
	admitter *core.Admitter
	opts     core.SessionOptions
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *core.Registry, admitter *core.Admitter, opts core.SessionOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		admitter: admitter,
		opts:     opts,
		log:      logger,
	}
}

// ServeHTTP serves GET /ws?token=...&conversation_id=...
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	query := r.URL.Query()
	token := query.Get("token")
	conversationID := uuid.Nil
	if raw := query.Get("conversation_id"); raw != "" {
		if parsed, parseErr := uuid.Parse(raw); parseErr == nil {
			conversationID = parsed
		}
	}

	session := core.NewSession(&wsConn{conn: conn}, h.registry, h.opts, h.log.With().
		Str("conversation_id", conversationID.String()).
		Logger())

	ctx := r.Context()
	if err := session.Admit(ctx, h.admitter, token, conversationID); err != nil {
		h.log.Debug().Err(err).Msg("ws admission rejected")
		return
	}

	if err := session.Run(ctx); err != nil {
		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
			return
		}
		h.log.Warn().Err(err).
			Str("user_id", session.UserID().String()).
			Msg("ws connection closed with error")
	}
}

// wsConn adapts a coder/websocket connection to core.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadFrame(ctx context.Context) error {
	// Inbound frames are drained, never interpreted.
	_, _, err := w.conn.Read(ctx)
	return err
}

func (w *wsConn) WriteEvent(ctx context.Context, event *core.Event) error {
	return wsjson.Write(ctx, w.conn, event)
}

func (w *wsConn) Close(code core.CloseCode, reason string) error {
	return w.conn.Close(websocket.StatusCode(code), reason)
}
