package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/cinder-go/cinder"
	"github.com/cinder-go/cinder/internal/config"
	"github.com/cinder-go/cinder/internal/demo"
	cerrors "github.com/cinder-go/cinder/internal/errors"
	"github.com/cinder-go/cinder/internal/logging"
	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/gateway"
	"github.com/cinder-go/cinder/pkg/middleware"
	"github.com/cinder-go/cinder/pkg/session"
)

// shutdownTimeout bounds draining connections and the lifespan shutdown.
const shutdownTimeout = 15 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo application",
		Long: `Serve the demo application over HTTP/1.1 and cleartext HTTP/2.

The server runs the startup callbacks before accepting connections and
the shutdown callbacks after draining them on SIGINT or SIGTERM.

Examples:
  cinder serve
  cinder serve --port=8080
  cinder serve --config=cinder.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Resolve(*configPath), slog.Default())
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Port = port
			}
			if host != "" {
				cfg.Host = host
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, closer, err := logging.New(cfg)
	if err != nil {
		return cerrors.New("E103").WithDetail(err.Error())
	}
	defer closer.Close()
	slog.SetDefault(logger)

	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	defer srv.app.Close()

	if err := srv.bridge.Startup(ctx); err != nil {
		return cerrors.New("E142").Wrap(err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Address(),
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	success("Serving on http://%s", cfg.Address())
	if cfg.Metrics.Enabled {
		info("Metrics at http://%s%s", cfg.Address(), cfg.Metrics.Path)
	}

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = cerrors.New("E141").Wrap(err)
		}
	case <-ctx.Done():
		info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := srv.bridge.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = cerrors.New("E143").Wrap(err)
	}
	return serveErr
}

// server is the demo application wired behind chi.
type server struct {
	app      *cinder.App
	bridge   *gateway.Bridge
	handler  http.Handler
	registry *prometheus.Registry
}

func newServer(cfg *config.Config, logger *slog.Logger) (*server, error) {
	store, err := openStore(cfg.Session)
	if err != nil {
		return nil, err
	}

	s := &server{}
	var mw []dispatch.Middleware
	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mw = append(mw, middleware.Prometheus(
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(s.registry),
		))
	}
	if cfg.Tracing.Enabled {
		mw = append(mw, middleware.OpenTelemetry(middleware.WithTracerName(cfg.Tracing.Name)))
	}
	if cfg.Compression.Enabled {
		mw = append(mw, middleware.Compress(middleware.WithLevel(cfg.Compression.Level)))
	}

	s.app = cinder.New(cinder.Config{
		Session: cinder.SessionConfig{
			Store:      store,
			CookieName: cfg.Session.Cookie,
		},
		Static: cinder.StaticConfig{
			Dir:    cfg.Static.Dir,
			Prefix: cfg.Static.Prefix,
		},
		ResponseTimeout: time.Duration(cfg.ResponseTimeout),
		ChunkSize:       cfg.ChunkSize,
		Middleware:      mw,
		Logger:          logger,
		AccessLogger:    logging.Access(logger, cfg.AccessLogging),
	})

	demo.Register(s.app.Routes())
	if err := s.app.Mount(demo.Spec()); err != nil {
		s.app.Close()
		return nil, cerrors.New("E140").Wrap(err)
	}
	s.app.OnStartup(func(ctx context.Context) error {
		logger.Info("application started", "store", cfg.Session.Store)
		return nil
	})
	s.app.OnShutdown(func(ctx context.Context) error {
		logger.Info("application stopping")
		return nil
	})

	s.bridge = s.app.Handler()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if s.registry != nil {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	r.Handle("/*", s.bridge)

	s.handler = h2c.NewHandler(r, &http2.Server{})
	return s, nil
}

// openStore opens the session store cfg names.
func openStore(cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return session.NewMemoryStore(), nil

	case config.StoreRedis:
		store, err := session.DialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			session.WithRedisPrefix(cfg.RedisPrefix))
		if err != nil {
			return nil, cerrors.New("E121").
				WithDetail("Cannot reach Redis at " + cfg.RedisAddr).
				Wrap(err)
		}
		return store, nil

	case config.StoreBolt:
		store, err := session.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, cerrors.New("E121").
				WithDetail("Cannot open " + cfg.BoltPath).
				Wrap(err)
		}
		return store, nil

	default:
		return nil, cerrors.New("E120").WithDetail("Got " + cfg.Store)
	}
}
