// Package httpapi serves the auxiliary HTTP surface the watch and the
// companion phone app call outside the TCP channel: contact management,
// resource-version probes and chat image upload. Contact additions are
// published to the push subject so live TCP sessions learn about them
// immediately.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watchgate/watchgate/config"
	"github.com/watchgate/watchgate/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher is how contact-change events reach the push notifier. A
// *nats.Conn satisfies it directly.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Server is the auxiliary HTTP API.
type Server struct {
	config    *config.Server
	store     storage.Store
	publisher Publisher
	router    *gin.Engine
	logger    zerolog.Logger
	startedAt time.Time
}

func New(conf *config.Server, store storage.Store, publisher Publisher) *Server {
	logger := log.With().Str("com", "httpapi").Logger()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	if len(conf.HTTP.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: conf.HTTP.CORSOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies(nil)

	s := &Server{
		config:    conf,
		store:     store,
		publisher: publisher,
		router:    r,
		logger:    logger,
		startedAt: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.router

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.startedAt).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Watch-facing resource probes.
	r.GET("/timo/apps/get.do", s.getApps)
	r.GET("/theme/package/info.do", s.getThemeInfo)
	r.GET("/dial/package/info.do", s.getDialInfo)
	r.GET("/timo/version/get.do", s.getVersion)
	r.GET("/emoticon/package/info.do", s.getEmoticonInfo)

	// Phone-app contact management.
	r.POST("/commoncontact/e1/add.do", s.addContact)
	r.POST("/commoncontact/e1/update.do", s.updateContact)
	r.POST("/commoncontact/e1/del.do", s.deleteContact)

	// Chat media.
	r.POST("/chat/image/upload.do", s.chatImageUpload)

	// Phone-app passport stubs.
	r.GET("/login/passport/login.do", s.passportLogin)
	r.GET("/user/info/get.do", s.passportLogin)

	// The firmware treats any non-200 on unimplemented endpoints as a hard
	// failure, so unknown paths answer 200 with an empty body.
	r.NoRoute(func(c *gin.Context) {
		s.logger.Debug().Str("path", c.Request.URL.Path).Msg("unhandled endpoint")
		c.String(http.StatusOK, "")
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.HTTP.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("addr", srv.Addr).Msg("HTTP API started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// param reads a request value from the POST form first, then the query
// string. The watch and the phone app are inconsistent about where they put
// parameters.
func param(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}
