package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/vincent19951222/quiz-website/internal/admin"
	"github.com/vincent19951222/quiz-website/internal/app"
	"github.com/vincent19951222/quiz-website/internal/bitable"
	"github.com/vincent19951222/quiz-website/internal/config"
	"github.com/vincent19951222/quiz-website/internal/infra/file"
	"github.com/vincent19951222/quiz-website/internal/infra/memory"
	pgsource "github.com/vincent19951222/quiz-website/internal/infra/postgres"
	redisinfra "github.com/vincent19951222/quiz-website/internal/infra/redis"
	"github.com/vincent19951222/quiz-website/internal/lib/slogcustom"
	"github.com/vincent19951222/quiz-website/internal/store"
	transport "github.com/vincent19951222/quiz-website/internal/transport/http"
)

const defaultQuestionFile = "quiz_questions.json"

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
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
	logger := newLogger()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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

	var kv store.KV = memory.NewKV()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		kv = redisinfra.NewKV(redisClient)
	}
	results := store.NewResultStore(kv)

	questions, cleanup, err := buildQuestionSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	remote := bitable.NewClient(bitableConfig(cfg), logger)
	if !remote.Configured() {
		logger.Warn("remote table credentials unset, records stay local only")
	}

	service := app.NewAttemptService(questions, results, remote, logger)
	adminService := admin.NewService(results, remote, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	wsHandler := transport.NewWSHandler(service, logger)
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	transport.NewAdminHandler(adminService, cfg.Admin.Secret, logger).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildQuestionSource picks Postgres when configured, the JSON document file
// otherwise. Either way the document is loaded once and cached.
func buildQuestionSource(ctx context.Context, cfg config.Config) (app.QuestionSource, func(), error) {
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		documentID := cfg.Quiz.DocumentID
		if documentID == "" {
			documentID = "default"
		}
		loader := pgsource.NewQuestionSource(pool, documentID)
		return memory.NewCachedQuestionSource(loader), pool.Close, nil
	}

	path := cfg.Quiz.File
	if path == "" {
		path = defaultQuestionFile
	}
	return memory.NewCachedQuestionSource(file.NewQuestionSource(path)), func() {}, nil
}

func bitableConfig(cfg config.Config) bitable.Config {
	return bitable.Config{
		BaseURL:   cfg.Bitable.BaseURL,
		AppID:     cfg.Bitable.AppID,
		AppSecret: cfg.Bitable.AppSecret,
		AppToken:  cfg.Bitable.AppToken,
		TableID:   cfg.Bitable.TableID,
	}
}

func newLogger() *slog.Logger {
	return slog.New(slogcustom.NewCustomHandler(os.Stderr, slog.LevelInfo))
}
