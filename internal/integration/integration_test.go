package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
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
	"github.com/vincent19951222/quiz-website/internal/app"
	"github.com/vincent19951222/quiz-website/internal/domain"
	"github.com/vincent19951222/quiz-website/internal/infra/memory"
	pgsource "github.com/vincent19951222/quiz-website/internal/infra/postgres"
	pgmigrations "github.com/vincent19951222/quiz-website/internal/infra/postgres/migrations"
	infraredis "github.com/vincent19951222/quiz-website/internal/infra/redis"
	"github.com/vincent19951222/quiz-website/internal/store"
)

func TestAttemptFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedDocument(t, ctx, pgURL, sampleDocument())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	results := store.NewResultStore(infraredis.NewKV(redisClient))
	questions := memory.NewCachedQuestionSource(pgsource.NewQuestionSource(pool, "default"))
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	service := app.NewAttemptService(questions, results, nil, logger)

	identity := domain.Identity{Name: "Alice", Phone: "13812345678"}
	session, err := service.Start(ctx, identity, domain.Environment{UserAgent: "integration"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	presented := session.Questions()
	if len(presented) != 2 {
		t.Fatalf("expected 2 questions from postgres, got %d", len(presented))
	}
	for i, q := range presented {
		if err := session.SelectAnswer(i, q.CorrectOption); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}

	attempt, err := service.Submit(ctx, session.ID())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.Score != 2 || attempt.Accuracy != 100 {
		t.Fatalf("expected perfect score, got %+v", attempt)
	}

	// the attempt round-trips through redis
	stored, err := results.List(ctx, store.Filter{}, store.Sort{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != attempt.ID {
		t.Fatalf("expected stored attempt %s, got %+v", attempt.ID, stored)
	}

	if _, err := service.ViewAnswers(ctx, session.ID()); err != nil {
		t.Fatalf("view answers: %v", err)
	}

	// the gate flag also lives in redis and blocks a fresh start
	if _, err := service.Start(ctx, identity, domain.Environment{}); err != domain.ErrAlreadyCompleted {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
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

func seedDocument(t *testing.T, ctx context.Context, dsn string, doc domain.QuizDocument) {
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

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quiz_documents (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, "default", string(data)); err != nil {
		t.Fatalf("insert document: %v", err)
	}
}

func sampleDocument() domain.QuizDocument {
	return domain.QuizDocument{
		Title:            "integration quiz",
		TimeLimitMinutes: 10,
		TotalQuestions:   2,
		Questions: []domain.Question{
			{ID: 1, Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectOption: 1},
			{ID: 2, Text: "What is 3 * 3?", Options: []string{"6", "9", "12"}, CorrectOption: 1},
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
