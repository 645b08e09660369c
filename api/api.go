// Package api exposes a running session over a small local HTTP API.
//
// Reads are served from a view.Model; writes are turned into engine commands.
// The API never talks to the engine directly, so it is exactly as non-blocking as the terminal UI.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rflandau/arpchat/engine"
	"github.com/rflandau/arpchat/internal/queue"
	"github.com/rflandau/arpchat/view"
	"github.com/rs/zerolog"
)

const (
	apiName    = "arpchat"
	apiVersion = "1.0.0"

	// ContentType is the content type of every response body.
	ContentType = "application/json"
	// shutdownGrace bounds how long Stop waits on in-flight requests.
	shutdownGrace = 2 * time.Second
)

// Routes.
const (
	EPPeers     = "/peers"
	EPMessages  = "/messages"
	EPUsername  = "/username"
	EPHeartbeat = "/heartbeat"
)

// ErrNotStarted is returned by Stop if the server was never started.
var ErrNotStarted = errors.New("api server is not running")

// A Server serves the API for a single session.
type Server struct {
	log   *zerolog.Logger
	model *view.Model
	cmds  *queue.Queue[engine.Command]

	mux  *http.ServeMux
	api  huma.API
	http *http.Server
}

// Option function to set various options on the server.
type Option func(*Server)

// WithLogger replaces the server's default logger with the given logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New builds the API over model, sending commands to cmds.
func New(model *view.Model, cmds *queue.Queue[engine.Command], opts ...Option) *Server {
	s := &Server{model: model, cmds: cmds, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		}).With().
			Str("sublogger", "api").
			Timestamp().
			Caller().
			Logger().Level(zerolog.WarnLevel)
		s.log = &l
	}

	s.api = humago.New(s.mux, huma.DefaultConfig(apiName, apiVersion))
	s.buildEndpoints()
	return s
}

// Handler returns the http.Handler serving the API, for embedding or testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving on addr in a new goroutine.
// Returns once the listener is bound.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	s.log.Info().Str("address", ln.Addr().String()).Msg("listening...")
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("api server died")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.http == nil {
		return ErrNotStarted
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := s.http.Shutdown(ctx)
	s.log.Info().AnErr("shutdown error", err).Msg("api server stopped")
	return err
}

// enqueue hands cmd to the engine.
func (s *Server) enqueue(cmd engine.Command) error {
	if err := s.cmds.Push(cmd); err != nil {
		s.log.Warn().Err(err).Type("command", cmd).Msg("engine is gone")
		return huma.Error503ServiceUnavailable("session has ended", err)
	}
	return nil
}
