package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/radiusdt/vector-adplayer/internal/session"
	"go.uber.org/zap"
)

const (
	streamSubprotocol     = "vector-adplayer.v1"
	streamReadLimit       = 4096
	streamSendQueueSize   = 32
	streamWriteWait       = 10 * time.Second
	streamDefaultPeriod   = time.Second
	streamSnapshotTimeout = 5 * time.Second
)

var errBadCommand = errors.New("bad command")

// streamCommand is a player action sent by the client over the socket.
type streamCommand struct {
	Type    string   `json:"type"`
	Visible *bool    `json:"visible,omitempty"`
	Volume  *float64 `json:"volume,omitempty"`
	Muted   *bool    `json:"muted,omitempty"`
}

type streamMessage struct {
	Type         string            `json:"type"`
	Snapshot     *session.Snapshot `json:"snapshot,omitempty"`
	ClickThrough string            `json:"click_through,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func newUpgrader(origins []string) *websocket.Upgrader {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{streamSubprotocol},
		CheckOrigin:     originChecker(origins),
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// handleStream pushes session snapshots every stream period and applies
// player commands read from the socket. The stream ends when the client
// goes away or the session is closed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.logger.Debug("stream upgrade failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.logger.Info("stream opened", zap.String("session_id", sess.ID), zap.String("remote_addr", r.RemoteAddr))

	send := make(chan streamMessage, streamSendQueueSize)
	go s.streamRecv(ctx, cancel, conn, sess, send)
	s.streamSend(ctx, conn, sess, send)

	s.logger.Info("stream closed", zap.String("session_id", sess.ID))
}

// streamRecv is the only reader of conn.
func (s *Server) streamRecv(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session.Session, send chan<- streamMessage) {
	defer cancel()

	conn.SetReadLimit(streamReadLimit)
	for {
		var cmd streamCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("stream read failed", zap.String("session_id", sess.ID), zap.Error(err))
			}
			return
		}

		msg := s.applyCommand(ctx, sess, cmd)
		select {
		case send <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// streamSend is the only writer of conn.
func (s *Server) streamSend(ctx context.Context, conn *websocket.Conn, sess *session.Session, send <-chan streamMessage) {
	period := s.config.Server.StreamInterval
	if period <= 0 {
		period = streamDefaultPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	write := func(msg streamMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(msg) == nil
	}
	closeWith := func(code int, text string) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text), time.Now().Add(streamWriteWait))
	}

	msg, err := s.snapshotMessage(ctx, sess)
	if err != nil || !write(msg) {
		closeWith(websocket.CloseGoingAway, "session closed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-send:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			msg, err := s.snapshotMessage(ctx, sess)
			if err != nil {
				closeWith(websocket.CloseGoingAway, "session closed")
				return
			}
			if !write(msg) {
				return
			}
		}
	}
}

func (s *Server) snapshotMessage(ctx context.Context, sess *session.Session) (streamMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, streamSnapshotTimeout)
	defer cancel()

	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return streamMessage{}, err
	}
	return streamMessage{Type: "snapshot", Snapshot: snap}, nil
}

func (s *Server) applyCommand(ctx context.Context, sess *session.Session, cmd streamCommand) streamMessage {
	var (
		landing string
		err     error
	)
	switch cmd.Type {
	case "play":
		err = sess.Play(ctx)
	case "pause":
		err = sess.Pause(ctx)
	case "close_floating":
		err = sess.CloseFloating(ctx)
	case "visibility":
		if cmd.Visible == nil {
			err = errBadCommand
			break
		}
		err = sess.SetVisible(ctx, *cmd.Visible)
	case "volume":
		if cmd.Volume == nil && cmd.Muted == nil {
			err = errBadCommand
			break
		}
		if cmd.Volume != nil {
			if *cmd.Volume < 0 || *cmd.Volume > 1 {
				err = errBadCommand
				break
			}
			err = sess.SetVolume(ctx, *cmd.Volume)
		}
		if err == nil && cmd.Muted != nil {
			err = sess.SetMuted(ctx, *cmd.Muted)
		}
	case "click":
		landing, err = sess.Click(ctx)
		if err == nil {
			return streamMessage{Type: "click", ClickThrough: landing}
		}
	default:
		err = errBadCommand
	}

	if err != nil {
		return streamMessage{Type: "error", Error: err.Error()}
	}
	msg, err := s.snapshotMessage(ctx, sess)
	if err != nil {
		return streamMessage{Type: "error", Error: err.Error()}
	}
	return msg
}
