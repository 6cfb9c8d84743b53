package grpcserver

import (
	"context"
	"errors"
	"io"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/goph-talk/internal/api"
	"github.com/and161185/goph-talk/internal/convert"
	"github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/presence"
	"github.com/and161185/goph-talk/internal/session"
)

const defaultSendQueue = 256

// streamConn adapts a Connect stream to presence.Conn. Pushes are queued and
// written by a single writer goroutine.
type streamConn struct {
	id uuid.UUID
	mb *presence.Mailbox[*api.Frame]
}

func newStreamConn(queue int) *streamConn {
	if queue <= 0 {
		queue = defaultSendQueue
	}
	return &streamConn{id: uuid.Must(uuid.NewV4()), mb: presence.NewMailbox[*api.Frame](queue)}
}

func (c *streamConn) ID() uuid.UUID { return c.id }

func (c *streamConn) Push(m model.Message) error { return c.mb.Put(convert.MessageFrame(m)) }

func (c *streamConn) writeLoop(stream ConnectServer) error {
	for f := range c.mb.C() {
		if err := stream.Send(f); err != nil {
			return err
		}
	}
	return nil
}

// Connect binds the stream to the caller's identity and relays frames both ways
// until the client half-closes, the stream breaks or the server shuts down.
func (s *Server) Connect(stream ConnectServer) error {
	ctx := stream.Context()
	conn := newStreamConn(s.sendQueue)
	log := s.log.With(zap.Stringer("conn_id", conn.ID()), zap.String("peer", peerAddr(ctx)))
	sess := session.New(conn, s.chat, log)

	tok, _ := bearerTokenFromMD(ctx)
	id, err := sess.Authenticate(s.tokens, tok)
	if err != nil {
		sess.Close()
		return toStatus(err)
	}

	// Nothing drains the mailbox yet, so ready is the first frame on the wire.
	if err := stream.Send(convert.ReadyFrame(convert.IdentityUser(id))); err != nil {
		sess.Close()
		return err
	}

	writerDone := make(chan error, 1)
	go func() { writerDone <- conn.writeLoop(stream) }()
	defer func() {
		sess.Close()
		conn.mb.Close()
		if werr := <-writerDone; werr != nil {
			log.Debug("writer stopped", zap.Error(werr))
		}
	}()

	recvDone := make(chan error, 1)
	go func() { recvDone <- s.recvLoop(ctx, stream, sess, conn, log) }()

	select {
	case err := <-recvDone:
		return err
	case <-s.closing:
		log.Info("closing stream: server shutting down")
		return status.Error(codes.Unavailable, "server shutting down")
	}
}

// recvLoop relays inbound frames into the session until the client half-closes
// or the stream breaks.
func (s *Server) recvLoop(ctx context.Context, stream ConnectServer, sess *session.Session, conn *streamConn, log *zap.Logger) error {
	for {
		in, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if c := status.Code(err); c == codes.Canceled || c == codes.DeadlineExceeded {
				return nil
			}
			return err
		}

		to, content, err := convert.FromAPISend(in)
		if err == nil {
			_, err = sess.Send(ctx, to, content)
		}
		if err != nil {
			log.Debug("send rejected", zap.Int64("to", to), zap.Error(err))
			if perr := conn.mb.Put(convert.SendErrorFrame(err)); perr != nil {
				log.Warn("error frame dropped", zap.Error(perr))
			}
		}
	}
}
