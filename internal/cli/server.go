package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizdeck/internal/app"
	"quizdeck/internal/auth"
	"quizdeck/internal/config"
	"quizdeck/internal/domain"
	"quizdeck/internal/flags"
	"quizdeck/internal/generate"
	"quizdeck/internal/infra/memory"
	"quizdeck/internal/infra/postgres"
	redisinfra "quizdeck/internal/infra/redis"
	"quizdeck/internal/leaderboard"
	"quizdeck/internal/session"
	transport "quizdeck/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	var progress session.ProgressStore
	if redisClient != nil {
		progress = redisinfra.NewProgressStore(redisClient)
	} else {
		progress = memory.NewProgressStore()
	}

	// Flags and scores prefer the durable store; a cache outage must not
	// drop moderation history or leaderboard entries.
	var flagStore flags.Store
	switch {
	case pool != nil:
		flagStore = postgres.NewFlagStore(pool)
	case redisClient != nil:
		flagStore = redisinfra.NewFlagStore(redisClient)
	default:
		flagStore = memory.NewFlagStore()
	}

	var scoreLog leaderboard.ScoreLog
	if pool != nil {
		scoreLog = postgres.NewScoreLog(pool)
	} else {
		scoreLog = memory.NewScoreLog()
	}

	checker := auth.NewStaticChecker(cfg.Auth.Admins)
	registry := flags.NewRegistry(flagStore, checker)
	scores := leaderboard.NewService(scoreLog)

	service := app.NewQuizService(store, quizRepo, registry, scores, app.Options{
		Progress:      progress,
		AdvanceDelay:  config.TTLDuration(cfg.Session.AdvanceDelay, session.DefaultAdvanceDelay),
		MinAutoSubmit: config.TTLDuration(cfg.Leaderboard.MinAutoSubmit, leaderboard.MinAutoSubmitDuration),
	})

	var generator transport.Generator
	if cfg.Generator.Endpoint != "" {
		generator = generate.NewClient(cfg.Generator.Endpoint, cfg.Generator.APIKey, cfg.Generator.Model)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewAPI(service, scores, registry, checker, generator).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(service).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quizdeck on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds a small pool for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{Text: "What is 2 + 2?", Answers: []string{"3", "4", "5"}, CorrectAnswer: "4"},
				{Text: "What is the capital of France?", Answers: []string{"Paris", "Lisbon", "Madrid"}, CorrectAnswer: "Paris"},
				{Text: "Which planet is known as the Red Planet?", Answers: []string{"Venus", "Mars", "Jupiter"}, CorrectAnswer: "Mars"},
			},
		},
	}
}
