package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizduel/internal/api"
	"github.com/victornm/quizduel/internal/auth"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/match"
	"github.com/victornm/quizduel/internal/presence"
	"github.com/victornm/quizduel/internal/quiz"
	"github.com/victornm/quizduel/internal/store"
	"github.com/victornm/quizduel/internal/telemetry"
	"github.com/victornm/quizduel/internal/ws"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Presence struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Auth struct {
		JWTSecret string
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			presence redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	store struct {
		users     *store.UserStore
		questions *store.QuestionStore
		sessions  *store.SessionStore
	}

	service struct {
		presence *presence.Registry
		match    *match.Service
		quiz     *quiz.Service
		hub      *ws.Hub
	}

	api struct {
		verifier *auth.Verifier
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	telemetry.ObserveGames(s.eb)

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

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Presence.Addrs,
		Password: s.c.Redis.Presence.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return fmt.Errorf("presence: %w", err)
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("presence: %w", err)
	}

	s.infra.redis.presence = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	s.store.users = store.NewUserStore(s.infra.postgres)
	s.store.questions = store.NewQuestionStore(s.infra.postgres)
	s.store.sessions = store.NewSessionStore(s.infra.postgres)

	s.service.presence = presence.NewRegistry(presence.Config{
		Redis:  s.infra.redis.presence,
		Prefix: s.c.Redis.Presence.Prefix,
	})

	s.service.match = match.NewService(match.Config{
		Presence: s.service.presence,
		Users:    s.store.users,
		Sessions: s.store.sessions,
	})

	verifier := auth.NewVerifier([]byte(s.c.Auth.JWTSecret))

	// hub and quiz depend on each other at runtime, so the hub is built first
	// and the quiz service's submit path is handed to it as a plain func
	s.service.hub = ws.NewHub(ws.Config{
		Verifier: verifier,
		Presence: s.service.presence,
		Handler: ws.AnswerHandlerFunc(func(ctx context.Context, req ws.SubmitAnswerRequest) error {
			return s.service.quiz.SubmitAnswer(ctx, quiz.SubmitAnswerRequest{
				SessionID:  req.SessionID,
				UserID:     req.UserID,
				QuestionID: req.QuestionID,
				ChoiceID:   req.ChoiceID,
			})
		}),
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Sessions:  s.store.sessions,
		Questions: s.store.questions,
		Presence:  s.service.presence,
		Broadcast: s.service.hub,
		EventBus:  s.eb,
	})

	s.api.verifier = verifier
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine: e,
		Auth:   s.api.verifier,
		Match:  s.service.match,
		Game:   s.service.quiz,
		WS:     s.service.hub.Serve,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
