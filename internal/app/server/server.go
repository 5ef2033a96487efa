package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/chess-vn/slduel/internal/auth"
	"github.com/chess-vn/slduel/internal/aws/compute"
	"github.com/chess-vn/slduel/internal/aws/notification"
	"github.com/chess-vn/slduel/internal/aws/storage"
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/chess-vn/slduel/internal/duel"
	"github.com/chess-vn/slduel/internal/hub"
	"github.com/chess-vn/slduel/internal/notify"
	"github.com/chess-vn/slduel/internal/offline"
	"github.com/chess-vn/slduel/pkg/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Store is everything the server persists. Both storage.Client and
// storage.MemoryStore satisfy it.
type Store interface {
	duel.Repository
	duel.UserDirectory
	notify.EndpointStore
	notify.StatsStore
	GetUserDuelStats(ctx context.Context, userId string) (entities.UserDuelStats, error)
	PutApplicationEndpoint(ctx context.Context, endpoint entities.ApplicationEndpoint) error
}

// Deps are the collaborators that depend on the environment. Nil optional
// fields disable the matching feature.
type Deps struct {
	Store    Store
	Queue    offline.Queue
	Verifier bearerVerifier
	Pusher   notify.Pusher
	Recorder notify.ResultRecorder
	// Closers run on shutdown after the dispatcher drains.
	Closers []func() error
}

type server struct {
	config   Config
	upgrader websocket.Upgrader
	router   chi.Router
	http     *http.Server

	issuer   *auth.Issuer
	verifier bearerVerifier
	store    Store

	registry   *hub.Registry
	rooms      *hub.Rooms
	duels      *duel.Service
	sweeper    *duel.Sweeper
	dispatcher *notify.Dispatcher
	metrics    *prometheus.Registry
	limiter    *ipRateLimiter

	background context.Context
	stop       context.CancelFunc
	closers    []func() error
}

// NewServer builds the server from configuration, connecting to AWS and Redis
// when they are configured.
func NewServer(ctx context.Context, cfg Config) (*server, error) {
	deps, err := loadDeps(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newServer(cfg, deps)
}

func loadDeps(ctx context.Context, cfg Config) (Deps, error) {
	var deps Deps

	if cfg.RedisAddr != "" {
		rdb, err := offline.NewRedisClient(ctx, offline.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return Deps{}, err
		}
		deps.Queue = offline.NewRedisQueue(rdb, cfg.queueOptions())
		deps.Closers = append(deps.Closers, rdb.Close)
	} else {
		deps.Queue = offline.NewMemoryQueue(cfg.queueOptions())
	}

	if cfg.CognitoUserPoolId != "" {
		verifier := auth.NewCognitoVerifier(cfg.AwsRegion, cfg.CognitoUserPoolId)
		if err := verifier.LoadKeys(ctx); err != nil {
			return Deps{}, err
		}
		deps.Verifier = verifier
	}

	if cfg.StorageBackend == BackendMemory {
		store := storage.NewMemoryStore()
		deps.Store = store
		deps.Recorder = notify.NewLocalRecorder(store)
		return deps, nil
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.AwsRegion))
	if err != nil {
		return Deps{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	deps.Store = storage.NewClient(dynamodb.NewFromConfig(awsCfg))
	deps.Recorder = compute.NewClient(lambda.NewFromConfig(awsCfg))
	if cfg.PushEnabled {
		deps.Pusher = notification.NewClient(sns.NewFromConfig(awsCfg))
	}
	return deps, nil
}

func newServer(cfg Config, deps Deps) (*server, error) {
	if deps.Store == nil {
		return nil, errors.New("server needs a store")
	}
	issuer, err := auth.NewIssuer(cfg.JwtSecret, cfg.JwtIssuer)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := hub.NewRegistry(deps.Queue, hub.NewMetrics(reg))
	var notifyOpts []notify.Option
	if deps.Pusher != nil {
		notifyOpts = append(notifyOpts, notify.WithPush(deps.Pusher, deps.Store))
	}
	if deps.Recorder != nil {
		notifyOpts = append(notifyOpts, notify.WithResultRecorder(deps.Recorder))
	}
	dispatcher := notify.NewDispatcher(registry, notify.Options{
		Async:   cfg.AsyncDispatch,
		Workers: cfg.DispatchWorkers,
	}, notifyOpts...)
	duels := duel.NewService(
		deps.Store,
		deps.Store,
		dispatcher,
		cfg.duelConfig(),
		duel.WithMetrics(duel.NewMetrics(reg)),
	)

	rateLimit := rate.Limit(cfg.TokenRateLimit)
	if cfg.TokenRateLimit <= 0 {
		rateLimit = rate.Inf
	}

	s := &server{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		issuer:     issuer,
		verifier:   deps.Verifier,
		store:      deps.Store,
		registry:   registry,
		rooms:      hub.NewRooms(registry, cfg.RoomHistorySize),
		duels:      duels,
		sweeper:    duel.NewSweeper(duels, cfg.SweepInterval),
		dispatcher: dispatcher,
		metrics:    reg,
		limiter:    newIPRateLimiter(rateLimit, cfg.TokenRateBurst),
		closers:    deps.Closers,
	}
	s.background, s.stop = context.WithCancel(context.Background())
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           s.router,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s, nil
}

func (s *server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	r.Get("/ws", s.handleSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/duels", func(r chi.Router) {
			r.Post("/", s.handleCreateDuel)
			r.Get("/waiting", s.handleWaitingDuels)
			r.Route("/{duelId}", func(r chi.Router) {
				r.Get("/", s.handleGetDuel)
				r.Post("/accept", s.handleDuelAction(acceptDuel))
				r.Post("/start", s.handleDuelAction(startDuel))
				r.Post("/submit", s.handleDuelAction(submitSolution))
				r.Post("/forfeit", s.handleDuelAction(forfeitDuel))
				r.Post("/cancel", s.handleDuelAction(cancelDuel))
			})
		})
		r.Put("/users/me/endpoint", s.handlePutEndpoint)
		r.Get("/users/{userId}/duels", s.handleUserDuels)
		r.Get("/users/{userId}/stats", s.handleUserStats)

		r.With(s.limiter.middleware).Post("/ws/token", s.handleSocketToken)
		r.Get("/ws/stats", s.handleSocketStats)
	})
	return r
}

// startBackground runs the heartbeat and the timeout sweeper until Shutdown.
func (s *server) startBackground() error {
	s.registry.StartHeartbeat(s.background, s.config.HeartbeatInterval)
	return s.sweeper.Start()
}

// Start serves HTTP and websocket traffic until Shutdown is called.
func (s *server) Start() error {
	if err := s.startBackground(); err != nil {
		return err
	}
	logging.Info("duel server started",
		zap.String("port", s.config.Port),
		zap.String("storage", s.config.StorageBackend),
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) Shutdown(ctx context.Context) error {
	errs := []error{s.http.Shutdown(ctx)}
	s.stop()
	errs = append(errs, s.sweeper.Stop())
	s.dispatcher.Close()
	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// ShutdownTimeout bounds the graceful shutdown.
func (s *server) ShutdownTimeout() time.Duration {
	if s.config.ShutdownTimeout <= 0 {
		return 15 * time.Second
	}
	return s.config.ShutdownTimeout
}
