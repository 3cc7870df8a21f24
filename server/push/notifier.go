// Package push delivers out-of-band commands to live watch sessions. The
// HTTP API publishes contact-change events on a NATS subject; the notifier
// subscribes, looks up the target session in the registry and writes the
// corresponding frame. Delivery is at-most-once: a watch with no live
// session simply misses the push and catches up on its next full sync.
package push

import (
	"context"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watchgate/watchgate/config"
	"github.com/watchgate/watchgate/metrics"
	"github.com/watchgate/watchgate/protocol"
	"github.com/watchgate/watchgate/server/registry"
	"github.com/watchgate/watchgate/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CommandAddContact pushes one new contact to a live session.
const CommandAddContact = "add_contact"

// Event is the message shape carried on the NATS subject.
type Event struct {
	Command   string              `json:"command"`
	UDID      string              `json:"udid"`
	ContactID jsoniter.RawMessage `json:"contact_id"`
}

// Connect dials NATS with infinite reconnects so a broker restart never
// takes the notifier down with it.
func Connect(conf *config.Nats, logger zerolog.Logger) (*nats.Conn, error) {
	logger = logger.With().Str("com", "nats").Logger()

	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(conf.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected")
		}),
	}

	nc, err := nats.Connect(conf.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", conf.URL, err)
	}
	return nc, nil
}

// Notifier subscribes to the command subject and pushes frames to sessions.
type Notifier struct {
	conn     *nats.Conn
	subject  string
	registry *registry.Registry
	store    storage.Store
	logger   zerolog.Logger
}

func New(conn *nats.Conn, conf *config.Nats, reg *registry.Registry, store storage.Store) *Notifier {
	return &Notifier{
		conn:     conn,
		subject:  conf.Subject,
		registry: reg,
		store:    store,
		logger:   log.With().Str("com", "push").Logger(),
	}
}

// Run subscribes and blocks until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	sub, err := n.conn.Subscribe(n.subject, func(m *nats.Msg) {
		n.handleEvent(ctx, m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.subject, err)
	}

	n.logger.Info().Str("subject", n.subject).Msg("push notifier started")

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		n.logger.Warn().Err(err).Msg("subscription drain failed")
	}
	return nil
}

// handleEvent processes one published event. Malformed events and delivery
// failures are logged and dropped; the subscription stays up.
func (n *Notifier) handleEvent(ctx context.Context, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		n.logger.Error().Err(err).Msg("malformed push event")
		metrics.PushEvent("bad_event")
		return
	}
	if ev.Command != CommandAddContact || ev.UDID == "" {
		n.logger.Warn().Str("command", ev.Command).Msg("unsupported push event")
		metrics.PushEvent("bad_event")
		return
	}
	contactID, ok := coerceID(ev.ContactID)
	if !ok {
		n.logger.Warn().Str("contact_id", string(ev.ContactID)).Msg("push event with malformed contact_id")
		metrics.PushEvent("bad_event")
		return
	}

	w, ok := n.registry.Get(ev.UDID)
	if !ok {
		n.logger.Debug().Str("udid", ev.UDID).Msg("no live session, push skipped")
		metrics.PushEvent("no_session")
		return
	}

	frame, err := n.buildContactAdd(ctx, ev.UDID, contactID)
	if err != nil {
		n.logger.Error().Err(err).Str("udid", ev.UDID).Msg("push frame build failed")
		metrics.PushEvent("bad_event")
		return
	}

	if err := w.WriteFrame(frame); err != nil {
		n.logger.Warn().Err(err).Str("udid", ev.UDID).Msg("push write failed")
		metrics.PushEvent("write_failed")
		return
	}

	n.logger.Info().
		Str("udid", ev.UDID).
		Int64("contact_id", contactID).
		Msg("contact push delivered")
	metrics.PushEvent("delivered")
}

// buildContactAdd assembles an incremental "add" sync carrying exactly the
// new contact in its group. Unlike the full sync no profile keys are sent.
func (n *Notifier) buildContactAdd(ctx context.Context, udid string, contactID int64) ([]byte, error) {
	contact, err := n.store.ContactByUserID(ctx, udid, contactID)
	if err != nil {
		return nil, fmt.Errorf("contact %d: %w", contactID, err)
	}

	data := protocol.ContactSyncData{
		contact.Group(): {
			ToVersion: time.Now().Unix(),
			Data: []protocol.ContactOp{{
				Type:   protocol.ContactOpAdd,
				Person: []protocol.ContactPerson{contact.WirePerson()},
			}},
		},
	}

	return protocol.BuildFrame(protocol.MsgTypeGeneral, protocol.ContactPush{
		SubType: protocol.SubTypeContacts,
		Data:    data,
	})
}

// coerceID reads a contact id sent either as a JSON number or a numeric
// string.
func coerceID(raw jsoniter.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
