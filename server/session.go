package server

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/watchgate/watchgate/metrics"
	"github.com/watchgate/watchgate/protocol"
	"github.com/watchgate/watchgate/server/registry"
	"github.com/watchgate/watchgate/storage"
)

// Session owns one watch connection: the read loop, the per-connection
// login state and the serialized write path.
type Session struct {
	conn       net.Conn
	dispatcher *Dispatcher
	registry   *registry.Registry
	maxFrame   int
	logger     zerolog.Logger

	// writeMu serializes frames from the read loop and the push notifier.
	writeMu sync.Mutex

	// device is set once a login succeeds and only read by the session's
	// own goroutine.
	device *storage.Device
}

func NewSession(conn net.Conn, dispatcher *Dispatcher, reg *registry.Registry, maxFrame int, logger zerolog.Logger) *Session {
	return &Session{
		conn:       conn,
		dispatcher: dispatcher,
		registry:   reg,
		maxFrame:   maxFrame,
		logger:     logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// WriteFrame sends one prebuilt frame. Safe for concurrent use.
func (s *Session) WriteFrame(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(frame)
	return err
}

// Run reads frames until the peer disconnects, a frame exceeds the length
// cap, or ctx is cancelled. It always closes the connection and unbinds the
// session on return.
func (s *Session) Run(ctx context.Context) {
	metrics.ConnOpened()
	s.logger.Info().Msg("new connection")

	defer func() {
		if s.device != nil {
			s.registry.Unbind(s.device.UDID, s)
		}
		_ = s.conn.Close()
		metrics.ConnClosed()
		s.logger.Info().Msg("connection closed")
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.Close()
	})
	defer stop()

	chunk := protocol.GetReadChunk()
	defer protocol.PutReadChunk(chunk)

	var buf []byte
	for {
		n, err := s.conn.Read(*chunk)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug().Err(err).Msg("read ended")
			}
			return
		}
		buf = append(buf, (*chunk)[:n]...)

		for {
			frame, rest, err := protocol.ExtractFrame(buf, s.maxFrame)
			if err != nil {
				s.logger.Error().Err(err).Msg("framing failed, dropping connection")
				return
			}
			buf = rest
			if frame == nil {
				break
			}
			s.handleFrame(ctx, frame)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, frame []byte) {
	msgType := protocol.Type(frame)

	e, ok := s.dispatcher.Lookup(msgType)
	if !ok {
		// Unknown types are skipped without a reply; the connection lives on.
		s.logger.Warn().Uint8("msg_type", msgType).Msg("unknown message type")
		metrics.FrameProcessed("unknown", "unknown_type")
		return
	}

	res := s.dispatcher.Dispatch(ctx, e, s.device, frame)
	switch res.kind {
	case kindAuthenticated:
		s.device = res.device
		s.registry.Bind(s.device.UDID, s)
		s.logger = s.logger.With().Str("udid", s.device.UDID).Logger()
		s.reply(e.label, res.frame)
	case kindReply:
		s.reply(e.label, res.frame)
	case kindNoReply:
		metrics.FrameProcessed(e.label, "silence")
	default:
		metrics.FrameProcessed(e.label, "error")
		if err := s.WriteFrame(protocol.BuildErrorFrame()); err != nil {
			s.logger.Debug().Err(err).Msg("error frame write failed")
		}
	}
}

func (s *Session) reply(label string, frame []byte) {
	metrics.FrameProcessed(label, "reply")
	if err := s.WriteFrame(frame); err != nil {
		s.logger.Debug().Err(err).Str("handler", label).Msg("reply write failed")
	}
}
