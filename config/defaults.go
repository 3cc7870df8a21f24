package config

import "time"

// Default values applied by ApplyDefaults
const (
	// DefaultTCPPort is the port the device firmware dials.
	DefaultTCPPort = 59093

	// DefaultHTTPPort serves the auxiliary HTTP API.
	DefaultHTTPPort = 8000

	// DefaultMaxFrameLength caps the declared body length of inbound frames.
	DefaultMaxFrameLength = 1 << 20

	// DefaultServiceNumber is the carrier service number handed to watches.
	DefaultServiceNumber = "10086"

	// DefaultPingInterval is the heartbeat period in seconds handed to
	// watches at login.
	DefaultPingInterval = 300

	// DefaultNatsURL points at a local NATS server.
	DefaultNatsURL = "nats://127.0.0.1:4222"

	// DefaultNatsSubject carries contact-change commands to the push
	// notifier. The name predates the NATS transport.
	DefaultNatsSubject = "contacts_notify"

	// DefaultNatsReconnectWait is the backoff between subscription
	// reconnect attempts.
	DefaultNatsReconnectWait = 5 * time.Second

	// DefaultMediaDir stores uploaded voice clips and chat images.
	DefaultMediaDir = "./media"
)
