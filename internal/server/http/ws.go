package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/goph-talk/internal/api"
	"github.com/and161185/goph-talk/internal/auth"
	"github.com/and161185/goph-talk/internal/convert"
	"github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/presence"
	"github.com/and161185/goph-talk/internal/session"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	maxFrameBytes = 64 << 10
	defaultQueue  = 256
)

// Browsers connect from any origin, as the JSON API does.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn adapts a websocket to presence.Conn.
type wsConn struct {
	id uuid.UUID
	mb *presence.Mailbox[*api.Frame]
}

func newWSConn(queue int) *wsConn {
	if queue <= 0 {
		queue = defaultQueue
	}
	return &wsConn{id: uuid.Must(uuid.NewV4()), mb: presence.NewMailbox[*api.Frame](queue)}
}

func (c *wsConn) ID() uuid.UUID { return c.id }

func (c *wsConn) Push(m model.Message) error { return c.mb.Put(convert.MessageFrame(m)) }

// wsToken reads the credential from the Authorization header or the token query parameter.
func wsToken(r *http.Request) string {
	if t, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return t
	}
	return r.URL.Query().Get("token")
}

// handleWS authenticates before upgrading, so a bad credential gets a plain 401.
func (s *Server) handleWS(c *gin.Context) {
	conn := newWSConn(s.cfg.SendQueue)
	log := s.log.With(zap.Stringer("conn_id", conn.ID()), zap.String("peer", c.ClientIP()))
	sess := session.New(conn, s.cfg.Chat, log)

	id, err := sess.Authenticate(s.cfg.Tokens, wsToken(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "Invalid token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already answered the client.
		log.Info("websocket upgrade failed", zap.Error(err))
		sess.Close()
		return
	}
	defer ws.Close()

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(convert.ReadyFrame(convert.IdentityUser(id))); err != nil {
		sess.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writePump(ws, conn.mb, log)
	}()

	readDone := make(chan struct{})
	go func() {
		select {
		case <-s.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			// unblocks readPump
			_ = ws.Close()
		case <-readDone:
		}
	}()

	readPump(c, ws, sess, conn, log)
	close(readDone)

	sess.Close()
	conn.mb.Close()
	<-writerDone
}

// readPump handles inbound frames until the socket fails or the peer closes it.
func readPump(c *gin.Context, ws *websocket.Conn, sess *session.Session, conn *wsConn, log *zap.Logger) {
	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := c.Request.Context()
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Info("websocket read failed", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var in api.Frame
		if err := json.Unmarshal(data, &in); err != nil {
			reply(conn, log, convert.ErrorFrame("malformed frame"))
			continue
		}
		to, content, err := convert.FromAPISend(&in)
		if err == nil {
			_, err = sess.Send(ctx, to, content)
		}
		if err != nil {
			log.Debug("send rejected", zap.Int64("to", to), zap.Error(err))
			reply(conn, log, convert.SendErrorFrame(err))
		}
	}
}

// writePump is the only writer on ws. It exits when the mailbox closes or a write fails.
func writePump(ws *websocket.Conn, mb *presence.Mailbox[*api.Frame], log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-mb.C():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteJSON(f); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				// unblocks readPump
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}

func reply(conn *wsConn, log *zap.Logger, f *api.Frame) {
	if err := conn.mb.Put(f); err != nil {
		log.Warn("error frame dropped", zap.Error(err))
	}
}
