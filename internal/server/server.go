package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/travelquiz/internal/answer"
	"github.com/victornm/travelquiz/internal/api"
	"github.com/victornm/travelquiz/internal/content"
	"github.com/victornm/travelquiz/internal/event"
	"github.com/victornm/travelquiz/internal/leaderboard"
	"github.com/victornm/travelquiz/internal/room"
	"github.com/victornm/travelquiz/internal/scoring"
	"github.com/victornm/travelquiz/internal/session"
	"github.com/victornm/travelquiz/internal/store"
	"github.com/victornm/travelquiz/internal/store/memory"
	"github.com/victornm/travelquiz/internal/store/postgres"
	"github.com/victornm/travelquiz/internal/store/redisfeed"
	"github.com/victornm/travelquiz/internal/syncbridge"
	"github.com/victornm/travelquiz/internal/telemetry"
)

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
		store    store.Store
		feed     store.Feed
		content  content.Repository
	}

	service struct {
		room        *room.Service
		session     *session.Service
		answer      *answer.Service
		leaderboard *leaderboard.Service
		sync        *syncbridge.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server

	// ctx lives until Shutdown, background loops run under it.
	ctx    context.Context
	cancel context.CancelFunc
}

func Init(c Config) (*Server, error) {
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}

	s := &Server{c: c}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if err := s.initContent(); err != nil {
		return fmt.Errorf("content: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	if len(s.c.Redis.Addrs) == 0 {
		slog.Info("server: redis not configured, using in-process feed")
		s.infra.feed = memory.NewFeed()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	s.infra.feed = redisfeed.NewFeed(r, s.c.Redis.Prefix)
	return nil
}

func (s *Server) initStore() error {
	if s.c.Store.Driver != StorePostgres {
		s.infra.store = memory.NewStore()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dsn := s.c.Postgres.DSN()
	if err := postgres.Migrate(ctx, dsn); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	cc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("postgres: %w", err)
	}

	s.infra.postgres = db
	s.infra.store = postgres.NewStore(db)
	return nil
}

func (s *Server) initContent() error {
	var repo content.Repository
	if s.c.Content.File != "" {
		st, err := content.LoadFile(s.c.Content.File)
		if err != nil {
			return err
		}
		repo = st
	} else {
		repo = content.NewPostgres(s.infra.postgres)
	}

	s.infra.content = content.NewCache(repo, s.c.Content.TTL)
	return nil
}

func (s *Server) initService() {
	s.service.answer = answer.NewService(answer.Config{
		Store:   s.infra.store,
		Content: s.infra.content,
		Scoring: scoring.NewPolicy(scoring.Config{
			BasePoints: s.c.Scoring.BasePoints,
			Floor:      s.c.Scoring.Floor,
		}),
		EventBus: s.eb,
	})

	s.service.room = room.NewService(room.Config{
		Store:    s.infra.store,
		Content:  s.infra.content,
		EventBus: s.eb,
	})

	s.service.session = session.NewService(session.Config{
		Store:         s.infra.store,
		Content:       s.infra.content,
		Answer:        s.service.answer,
		EventBus:      s.eb,
		MinPlayers:    s.c.Session.MinPlayers,
		AutoAdvance:   s.c.Session.AutoAdvance,
		WatchInterval: s.c.Session.WatchInterval,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:        s.eb,
		Store:           s.infra.store,
		Redis:           s.infra.redis,
		Prefix:          s.c.Redis.Prefix,
		PublishInterval: s.c.Leaderboard.PublishInterval,
	})

	s.service.sync = syncbridge.NewService(syncbridge.Config{
		Store:        s.infra.store,
		Feed:         s.infra.feed,
		EventBus:     s.eb,
		PollInterval: s.c.Sync.PollInterval,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery(), telemetry.HTTPMiddleware())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerOptions()...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	api.New(api.Config{
		HTTP:         e,
		EventBus:     s.eb,
		Content:      s.infra.content,
		Room:         s.service.room,
		Session:      s.service.session,
		Answer:       s.service.answer,
		Leaderboard:  s.service.leaderboard,
		Sync:         s.service.sync,
		Redis:        s.infra.redis,
		PubsubPrefix: s.c.Redis.Prefix,
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: s.c.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}).Handler(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Start serves HTTP and gRPC and runs the round watcher. It blocks until Shutdown.
func (s *Server) Start() {
	ctx := s.ctx

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		return s.service.session.Run(ctx)
	})

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()

	s.cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
