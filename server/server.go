// Package server exposes the runtime's control surface: Connect
// handlers for actor lifecycle and extension delivery, plus the
// Prometheus scrape endpoint, all on one HTTP mux.
package server

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tliron/commonlog"

	"github.com/beyond-immersion/bannou-service-sub001/runtime"
)

var log = commonlog.GetLogger("bannou.server")

// Procedure paths. Connect routes one handler per procedure, so these
// are the full wire contract together with the types in types.go.
const (
	ProcSpawn     = "/bannou.v1.ActorService/Spawn"
	ProcStop      = "/bannou.v1.ActorService/Stop"
	ProcSend      = "/bannou.v1.ActorService/Send"
	ProcGetStatus = "/bannou.v1.ActorService/GetStatus"
	ProcList      = "/bannou.v1.ActorService/List"

	ProcAttach      = "/bannou.v1.ExtensionService/Attach"
	ProcListPending = "/bannou.v1.ExtensionService/ListPending"
)

const defaultStopTimeout = 10 * time.Second

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	stopTimeout time.Duration
	metricsPath string
}

// WithStopTimeout bounds graceful stops issued through the control
// surface when the request carries no deadline of its own.
func WithStopTimeout(d time.Duration) Option {
	return func(c *serverConfig) { c.stopTimeout = d }
}

// WithMetricsPath moves the Prometheus scrape endpoint. Default is
// "/metrics".
func WithMetricsPath(path string) Option {
	return func(c *serverConfig) { c.metricsPath = path }
}

// Server wraps a runtime with its HTTP control surface.
type Server struct {
	rt         *runtime.Runtime
	mux        *http.ServeMux
	httpServer *http.Server
}

// New builds the handler tree for rt.
func New(rt *runtime.Runtime, opts ...Option) *Server {
	cfg := &serverConfig{
		stopTimeout: defaultStopTimeout,
		metricsPath: "/metrics",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{rt: rt, mux: http.NewServeMux()}
	s.httpServer = &http.Server{Handler: s.mux}

	actors := NewActorService(rt, cfg.stopTimeout)
	extensions := NewExtensionService(rt)
	codec := connect.WithCodec(jsonCodec{})

	s.mux.Handle(ProcSpawn, connect.NewUnaryHandler(ProcSpawn, actors.Spawn, codec))
	s.mux.Handle(ProcStop, connect.NewUnaryHandler(ProcStop, actors.Stop, codec))
	s.mux.Handle(ProcSend, connect.NewUnaryHandler(ProcSend, actors.Send, codec))
	s.mux.Handle(ProcGetStatus, connect.NewUnaryHandler(ProcGetStatus, actors.GetStatus, codec))
	s.mux.Handle(ProcList, connect.NewUnaryHandler(ProcList, actors.List, codec))
	s.mux.Handle(ProcAttach, connect.NewUnaryHandler(ProcAttach, extensions.Attach, codec))
	s.mux.Handle(ProcListPending, connect.NewUnaryHandler(ProcListPending, extensions.ListPending, codec))

	s.mux.Handle(cfg.metricsPath, promhttp.Handler())

	return s
}

// Handler returns the mux, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves the control surface on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer.Addr = addr
	log.Infof("control surface listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
