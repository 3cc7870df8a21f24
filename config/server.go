package config

import (
	"crypto/tls"
	"fmt"
	"time"
)

// Server is the full configuration of a watchgate process.
type Server struct {
	TCP    TCP    `yaml:"tcp"`
	Device Device `yaml:"device"`
	HTTP   HTTP   `yaml:"http"`
	Nats   Nats   `yaml:"nats"`
	Media  Media  `yaml:"media"`
}

// TCP configures the device-facing TLS listener.
type TCP struct {
	Listen `yaml:",inline"`
	TLS    ServerTLS `yaml:"tls"`

	// MaxFrameLength caps the 24-bit declared body length of inbound
	// frames; a frame above the cap fails the connection.
	MaxFrameLength int `yaml:"max_frame_length"`
}

// ServerTLS carries the server certificate pair.
type ServerTLS struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	cert tls.Certificate
}

// LoadCertificate loads and caches the certificate pair from disk.
func (t *ServerTLS) LoadCertificate() error {
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	t.cert = cert
	return nil
}

// Certificate returns the loaded certificate.
func (t *ServerTLS) Certificate() tls.Certificate {
	return t.cert
}

// Device holds the knobs echoed to watches in login responses.
type Device struct {
	// QRURL and QRCodeBase form the binding QR code shown on unbound
	// watches: the code content is QRCodeBase?u=<udid>&i=<imei>, displayed
	// under QRURL.
	QRURL      string `yaml:"qr_url"`
	QRCodeBase string `yaml:"qr_code_base"`

	ServiceNumber string `yaml:"service_number"`

	// PingInterval is the heartbeat period in seconds handed to the watch.
	PingInterval int `yaml:"ping_interval"`
}

// HTTP configures the auxiliary HTTP API.
type HTTP struct {
	Listen      `yaml:",inline"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Nats configures the pub/sub transport carrying out-of-band commands.
type Nats struct {
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// Media configures where uploaded voice clips and images land.
type Media struct {
	Dir string `yaml:"dir"`
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Server) ApplyDefaults() {
	if c.TCP.IP == "" {
		c.TCP.IP = "0.0.0.0"
	}
	if c.TCP.Port == 0 {
		c.TCP.Port = DefaultTCPPort
	}
	if c.TCP.MaxFrameLength == 0 {
		c.TCP.MaxFrameLength = DefaultMaxFrameLength
	}
	if c.Device.ServiceNumber == "" {
		c.Device.ServiceNumber = DefaultServiceNumber
	}
	if c.Device.PingInterval == 0 {
		c.Device.PingInterval = DefaultPingInterval
	}
	if c.HTTP.IP == "" {
		c.HTTP.IP = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.Nats.URL == "" {
		c.Nats.URL = DefaultNatsURL
	}
	if c.Nats.Subject == "" {
		c.Nats.Subject = DefaultNatsSubject
	}
	if c.Nats.ReconnectWait == 0 {
		c.Nats.ReconnectWait = DefaultNatsReconnectWait
	}
	if c.Media.Dir == "" {
		c.Media.Dir = DefaultMediaDir
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Server) Validate() error {
	if err := c.TCP.Listen.Validate(); err != nil {
		return fmt.Errorf("tcp listen: %w", err)
	}
	if err := c.HTTP.Listen.Validate(); err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	if c.TCP.TLS.CertFile == "" || c.TCP.TLS.KeyFile == "" {
		return fmt.Errorf("tcp tls: cert_file and key_file are required")
	}
	if c.TCP.MaxFrameLength < 2 {
		return fmt.Errorf("tcp: max_frame_length must be at least 2")
	}
	return nil
}
