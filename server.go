package symd

import (
	"context"
	"net/http"
	"time"

	"github.com/coresymbols/symd/api"
	"github.com/coresymbols/symd/internal/config"
	"github.com/coresymbols/symd/internal/interfaces"
	"github.com/coresymbols/symd/internal/logging"
	"github.com/coresymbols/symd/internal/objectstore"
	"github.com/coresymbols/symd/stash"
	"github.com/coresymbols/symd/syncloop"
)

// Server wires the stash, background sync loop, and HTTP API surface
// into one runnable unit, the way the upstream pack's device type wires
// a backend, a queue runner, and its control plane.
type Server struct {
	Config  config.Config
	Metrics *Metrics

	stash *stash.Stash
	loop  *syncloop.Loop
	api   *api.Server
	addr  string
}

// NewServer loads the stash directory and constructs the collaborators;
// it does not start the background loop or bind a listener — call Run
// for that.
func NewServer(cfg config.Config, addr string) (*Server, error) {
	logger := logging.NewLogger(&logging.Config{Level: parseLevel(cfg.LogLevel)})

	store, err := objectstore.New(context.Background(), objectstore.Params{
		BucketURL: cfg.BucketURL,
		Region:    cfg.BucketRegion,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
	})
	if err != nil {
		return nil, err
	}

	st, err := stash.Open(cfg.SymbolDir, store, logger)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	observer := NewMetricsSyncObserver(metrics)
	st.SetCacheObserver(metrics)

	loop := syncloop.New(syncloop.Config{
		Syncer:              st,
		Observer:            observer,
		Logger:              logger,
		SyncInterval:        cfg.SyncInterval,
		HealthcheckInterval: cfg.HealthcheckInterval,
	})

	apiServer := api.New(api.Config{
		Stash:          st,
		Logger:         logger,
		Lookups:        metrics,
		HealthcheckTTL: cfg.HealthcheckTTL,
	})

	return &Server{Config: cfg, Metrics: metrics, stash: st, loop: loop, api: apiServer, addr: addr}, nil
}

var _ interfaces.SyncObserver = (*MetricsSyncObserver)(nil)

// Run starts the background sync loop and serves HTTP until ctx is
// canceled, then stops both in turn.
func (s *Server) Run(ctx context.Context) error {
	s.loop.Start(ctx)
	defer s.loop.Close()

	httpServer := &http.Server{Addr: s.addr, Handler: s.api.Handler()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func parseLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
