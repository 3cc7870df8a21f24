package server

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/watchgate/watchgate/protocol"
	"github.com/watchgate/watchgate/storage"
)

// HandlerFunc processes one parsed message. device is nil until the session
// has completed a login.
type HandlerFunc func(ctx context.Context, device *storage.Device, msg protocol.ParsedMessage) Result

type entry struct {
	label  string
	parse  protocol.ParseFunc
	handle HandlerFunc
}

// Dispatcher routes inbound frames to their handler by message type.
type Dispatcher struct {
	table  map[byte]entry
	logger zerolog.Logger
}

func NewDispatcher(h *Handlers, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		logger: logger.With().Str("com", "dispatch").Logger(),
	}
	d.table = map[byte]entry{
		protocol.MsgTypePing:         {"ping", protocol.ParseJSON, h.Ping},
		protocol.MsgTypeLocation:     {"location", protocol.ParseJSON, h.Location},
		protocol.MsgTypeLogin:        {"login", protocol.ParseJSON, h.Login},
		protocol.MsgTypeStatus:       {"status", protocol.ParseJSON, h.Status},
		protocol.MsgTypeCallRecord:   {"call_record", protocol.ParseJSON, h.CallRecord},
		protocol.MsgTypeSms:          {"sms", protocol.ParseJSON, h.Sms},
		protocol.MsgTypeChat:         {"chat", protocol.ParseChat, h.Chat},
		protocol.MsgTypeGeneral:      {"general", protocol.ParseJSON, h.General},
		protocol.MsgTypeLocationZlib: {"location_zlib", protocol.ParseZlibJSON, h.Location},
	}
	return d
}

// Lookup returns the dispatch entry for msgType. Unknown types are not an
// error at this layer, the session decides to stay silent.
func (d *Dispatcher) Lookup(msgType byte) (entry, bool) {
	e, ok := d.table[msgType]
	return e, ok
}

// Dispatch parses the frame and runs the handler, converting panics into the
// generic error answer so one bad message cannot tear down the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, e entry, device *storage.Device, frame []byte) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("handler", e.label).
				Interface("panic", r).
				Msg("handler panicked")
			res = Failure()
		}
	}()

	msg, err := e.parse(frame)
	if err != nil {
		d.logger.Debug().Err(err).Str("handler", e.label).Msg("payload parse degraded")
	}
	return e.handle(ctx, device, msg)
}
