package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watchgate/watchgate/config"
	"github.com/watchgate/watchgate/server/registry"
	"github.com/watchgate/watchgate/storage"
)

// Server is the device-facing TLS listener.
type Server struct {
	config     *config.Server
	registry   *registry.Registry
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// New creates a new server. The registry is shared with the push notifier so
// out-of-band commands reach live sessions.
func New(conf *config.Server, store storage.Store, geo GeoDecrypter, reg *registry.Registry) (*Server, error) {
	conf.ApplyDefaults()

	logger := log.With().Str("com", "server").Logger()

	if err := conf.TCP.TLS.LoadCertificate(); err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	handlers := NewHandlers(store, geo, conf, logger)

	return &Server{
		config:     conf,
		registry:   reg,
		dispatcher: NewDispatcher(handlers, logger),
		logger:     logger,
	}, nil
}

// Run listens until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	// The watch fleet negotiates down to TLS 1.0 with legacy cipher suites;
	// raising the floor locks old firmware out.
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{s.config.TCP.TLS.Certificate()},
		MinVersion:   tls.VersionTLS10,
	}

	addr := s.config.TCP.Addr()
	ln, err := tls.Listen("tcp", addr, tlsConf)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	s.logger.Info().Str("addr", addr).Msg("TCP listener started")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info().Msg("listener shutting down")
				return nil
			}
			s.logger.Error().Err(err).Msg("accept failed")
			continue
		}

		sess := NewSession(conn, s.dispatcher, s.registry, s.config.TCP.MaxFrameLength, s.logger)
		go sess.Run(ctx)
	}
}
