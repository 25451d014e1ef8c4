package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tunebot/pkg/logx"
)

// Server exposes /metrics and /health over HTTP.
type Server struct {
	addr     string
	log      logx.Logger
	registry *prometheus.Registry
	http     *http.Server
	profiler bool
}

type ServerOption func(*Server)

// WithProfiler mounts net/http/pprof under /debug. Bind addr to loopback
// when enabling it.
func WithProfiler(enabled bool) ServerOption { return func(s *Server) { s.profiler = enabled } }

// NewServer builds a registry holding the counters plus the Go runtime
// collectors.
func NewServer(addr string, c *Counters, log logx.Logger, opts ...ServerOption) (*Server, error) {
	if addr == "" {
		addr = ":9090"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := c.Register(reg); err != nil {
		return nil, err
	}
	s := &Server{addr: addr, log: log.With(logx.String("comp", "metrics")), registry: reg}
	for _, o := range opts {
		o(s)
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) Registry() *prometheus.Registry { return s.registry }

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if s.profiler {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Info("metrics server listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.http.Shutdown(sctx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
