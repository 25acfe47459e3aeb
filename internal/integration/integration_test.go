package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizdeck/internal/app"
	"quizdeck/internal/auth"
	"quizdeck/internal/domain"
	"quizdeck/internal/flags"
	"quizdeck/internal/infra/postgres"
	pgmigrations "quizdeck/internal/infra/postgres/migrations"
	infraredis "quizdeck/internal/infra/redis"
	"quizdeck/internal/leaderboard"
	"quizdeck/internal/selector"
)

func TestQuizAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	quizRepo := infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	progress := infraredis.NewProgressStore(redisClient)
	checker := auth.NewStaticChecker([]string{"admin"})
	registry := flags.NewRegistry(postgres.NewFlagStore(pool), checker)
	scores := leaderboard.NewService(postgres.NewScoreLog(pool))

	service := app.NewQuizService(sessionStore, quizRepo, registry, scores, app.Options{
		Progress:      progress,
		MinAutoSubmit: time.Nanosecond,
	})

	started, err := service.Start(ctx, "quiz-1", "u1", selector.ModeSequential, selector.Params{}, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(started.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(started.Questions))
	}

	result, err := service.Answer(ctx, started.SessionID, 0, "4")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !result.Correct {
		t.Fatalf("expected correct answer")
	}

	flag, err := service.FlagQuestion(ctx, started.SessionID, 1, "both answers defensible")
	if err != nil {
		t.Fatalf("flag: %v", err)
	}

	finished, err := service.Finish(ctx, started.SessionID, "Alice")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if finished.Score != 2 || finished.Total != 2 {
		t.Fatalf("expected flagged question to count, got %d/%d", finished.Score, finished.Total)
	}
	if !finished.Submitted {
		t.Fatalf("expected auto-submission")
	}

	page, err := scores.Rank(ctx, "quiz-1", 10, 1)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "Alice" || page.Items[0].Score != 2 {
		t.Fatalf("unexpected leaderboard: %+v", page)
	}

	best, err := scores.PersonalBest(ctx, "quiz-1", "alice")
	if err != nil {
		t.Fatalf("personal best: %v", err)
	}
	if best == nil || best.Score != 2 {
		t.Fatalf("expected personal best for alice, got %+v", best)
	}

	// A second report of the same question deduplicates into an upvote.
	dup, err := registry.Report(ctx, "quiz-1", started.Questions[1].Text, "different complaint", "u2")
	if err != nil {
		t.Fatalf("duplicate report: %v", err)
	}
	if dup.ID != flag.ID || dup.Upvotes != 1 {
		t.Fatalf("expected dedup into upvote, got %+v", dup)
	}
	if dup.Reason != flag.Reason {
		t.Fatalf("original reason must survive, got %q", dup.Reason)
	}

	mod, err := registry.Moderator("admin")
	if err != nil {
		t.Fatalf("moderator: %v", err)
	}
	if err := mod.Delete(ctx, flag.ID); err != nil {
		t.Fatalf("delete flag: %v", err)
	}
	if _, err := registry.Upvote(ctx, flag.ID); !errors.Is(err, domain.ErrFlagNotFound) {
		t.Fatalf("expected flag gone, got %v", err)
	}

	// Progress landed in redis: only the never-answered question comes back
	// in practice. Flagging alone does not mark a question answered.
	practice, err := service.Start(ctx, "quiz-1", "u1", selector.ModePractice, selector.Params{}, nil)
	if err != nil {
		t.Fatalf("start practice: %v", err)
	}
	if len(practice.Questions) != 1 || practice.Questions[0].Text != "What is 3 + 3?" {
		t.Fatalf("expected only the unanswered question, got %+v", practice.Questions)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Answers: []string{"3", "4", "5"}, CorrectAnswer: "4"},
			{Text: "What is 3 + 3?", Answers: []string{"5", "6"}, CorrectAnswer: "6"},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
