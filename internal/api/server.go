package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"visitplan/internal/config"
	"visitplan/internal/distance"
	"visitplan/internal/metrics"
	"visitplan/internal/opt"
	"visitplan/internal/store"
	"visitplan/internal/webhooks"
)

const jobQueueSize = 256

type Server struct {
	Store    store.Store
	Pub      *webhooks.Publisher
	Broker   EventBroker
	Solver   *opt.Solver
	Distance distance.Provider
	Config   config.Config
	Log      log.FieldLogger

	limiter *rate.Limiter
	queue   chan string
	wg      sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]struct{} // ids sitting in queue
}

// NewServer wires the server from cfg. Without a database URL jobs live
// in memory; without a Redis URL events stay in process.
func NewServer(ctx context.Context, cfg config.Config, logger log.FieldLogger) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(ctx); err != nil {
			_ = sp.Close()
			return nil, err
		}
		s = sp
	}
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(ctx, cfg.RedisURL, logger.WithField("component", "broker"))
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, using in-process broker")
		} else {
			broker = rb
		}
	}
	srv := &Server{
		Store:    s,
		Pub:      webhooks.NewPublisher(s, cfg.Webhook.Secret),
		Broker:   broker,
		Solver:   opt.NewSolver(cfg.Solver, opt.WithLogger(logger), opt.WithObserver(metrics.SolveObserver{})),
		Distance: distance.NewGoogleProvider(cfg.Distance.APIKey, cfg.Distance.BaseURL, cfg.Distance.Timeout),
		Config:   cfg,
		Log:      logger,
		queue:    make(chan string, jobQueueSize),
		pending:  make(map[string]struct{}),
	}
	if cfg.Rate.RPS > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(cfg.Rate.RPS), cfg.Rate.Burst)
	}
	return srv, nil
}

// Routes returns the HTTP handler serving the whole API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Optimization
	mux.Handle("/v1/optimize", s.rateLimit(http.HandlerFunc(s.OptimizeHandler)))
	mux.Handle("/v1/jobs", s.rateLimit(http.HandlerFunc(s.JobsHandler)))
	mux.HandleFunc("/v1/jobs/", s.JobByIDHandler) // includes /events/stream, /ws, /deliveries
	mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)

	// Ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/debug/info", s.DebugJSON)
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIHandler)
	mux.HandleFunc("/docs", s.DocsHandler)

	return s.logMiddleware(metricsMiddleware(mux))
}

// Start recovers jobs left unfinished by a previous process, then runs
// the job workers until ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.recoverJobs(ctx)
	for i := 0; i < s.Config.JobWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.jobWorker(ctx)
		}()
	}
}

// Wait blocks until the job workers started by Start have returned.
func (s *Server) Wait() { s.wg.Wait() }

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	w := webhooks.NewWorker(s.Store, s.Config.Webhook.MaxAttempts)
	w.Log = s.Log.WithField("component", "webhooks")
	w.OnResult = metrics.ObserveWebhook
	return w
}

// Close releases the store and broker connections.
func (s *Server) Close() error {
	var errs []error
	for _, c := range []any{s.Broker, s.Store} {
		if cl, ok := c.(io.Closer); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}
