package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/goph-talk/internal/api"
)

// frameSource is the receive half of a live stream.
type frameSource interface {
	Recv() (*api.Frame, error)
}

// awaitReady reads the first frame, which must announce the bound identity.
func awaitReady(st frameSource) (api.User, error) {
	f, err := st.Recv()
	if err != nil {
		return api.User{}, err
	}
	if f.Type != api.FrameReady || f.User == nil {
		return api.User{}, fmt.Errorf("unexpected first frame %q", f.Type)
	}
	return *f.User, nil
}

// awaitEcho waits for the copy of our own message to `to`. Messages from other
// users that arrive meanwhile are skipped. An error frame fails the send.
func awaitEcho(st frameSource, me, to int64) (api.Message, error) {
	for {
		f, err := st.Recv()
		if err != nil {
			return api.Message{}, err
		}
		switch f.Type {
		case api.FrameError:
			return api.Message{}, errors.New(f.Error)
		case api.FramePrivateMessage:
			if f.Message != nil && f.Message.FromID == me && f.Message.ToID == to {
				return *f.Message, nil
			}
		}
	}
}

// listen prints every message and error frame until the stream ends or ctx is cancelled.
func listen(ctx context.Context, st frameSource, w io.Writer) error {
	for {
		f, err := st.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		switch f.Type {
		case api.FramePrivateMessage:
			if f.Message != nil {
				fmt.Fprintln(w, formatMessage(*f.Message))
			}
		case api.FrameError:
			fmt.Fprintf(w, "error: %s\n", f.Error)
		}
	}
}

func formatMessage(m api.Message) string {
	at := time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339)
	return fmt.Sprintf("[%s] #%d %d -> %d: %s", at, m.ID, m.FromID, m.ToID, m.Content)
}
