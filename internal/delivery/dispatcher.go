// Package delivery fans persisted messages out to the recipient's live connections.
package delivery

import (
	"go.uber.org/zap"

	"github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/presence"
)

// Directory resolves a user's live connections.
type Directory interface {
	LiveConnections(userID int64) []presence.Conn
}

// Report summarizes one dispatch. It is informational; delivery is best effort.
type Report struct {
	Recipients int  // recipient connections found
	Delivered  int  // pushes accepted by recipient connections
	Failed     int  // pushes rejected by recipient connections
	Echoed     bool // origin received its copy
}

// Dispatcher pushes messages to recipients and echoes them to the sender's connection.
type Dispatcher struct {
	dir Directory
	log *zap.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(dir Directory, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{dir: dir, log: log}
}

// Dispatch must only be called for a message that is already stored.
// Each push is independent: a failing connection never prevents the others from receiving msg.
// origin may be nil when the message did not come from a live connection.
func (d *Dispatcher) Dispatch(msg model.Message, origin presence.Conn) Report {
	conns := d.dir.LiveConnections(msg.ToID)
	rep := Report{Recipients: len(conns)}

	if len(conns) == 0 {
		d.log.Debug("recipient offline", zap.Int64("msg_id", msg.ID), zap.Int64("to", msg.ToID))
	}

	covered := false
	for _, c := range conns {
		self := origin != nil && c.ID() == origin.ID()
		covered = covered || self
		if err := c.Push(msg); err != nil {
			rep.Failed++
			d.log.Warn("push failed",
				zap.Int64("msg_id", msg.ID),
				zap.Int64("to", msg.ToID),
				zap.Stringer("conn_id", c.ID()),
				zap.Error(err),
			)
			continue
		}
		rep.Delivered++
		rep.Echoed = rep.Echoed || self
	}

	// A self-message already reached origin as a recipient connection.
	if origin != nil && !covered {
		if err := origin.Push(msg); err != nil {
			d.log.Warn("echo failed",
				zap.Int64("msg_id", msg.ID),
				zap.Stringer("conn_id", origin.ID()),
				zap.Error(err),
			)
		} else {
			rep.Echoed = true
		}
	}
	return rep
}
