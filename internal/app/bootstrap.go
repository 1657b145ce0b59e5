package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"github.com/akbarharyadi/coding-test-3rd/internal/config"
	"github.com/akbarharyadi/coding-test-3rd/internal/vector"
)

type Dependencies struct {
	DB          *sql.DB
	NSQProducer *nsq.Producer
	// SchemaRecreated reports that stored embeddings were dropped because the
	// configured dimension changed; any on-disk index is stale.
	SchemaRecreated bool
}

// SchemaEnsurer prepares the embedding table.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) (recreated bool, err error)
}

type embeddingSchema struct {
	db  *sql.DB
	dim int
}

func (s embeddingSchema) EnsureSchema(ctx context.Context) (bool, error) {
	return vector.EnsureSchema(ctx, s.db, s.dim)
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.WarnContext(ctx, "failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := runMigrations(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}
	slog.InfoContext(ctx, "migrations applied successfully")

	recreated, err := EnsureSchemaWithRetry(ctx, embeddingSchema{db: db, dim: cfg.EmbeddingDimension()}, cfg.BootstrapRetryAttempts, retryDelay)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("embedding schema error: %w", err)
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	createTopics(cfg.NSQDHTTP)

	return &Dependencies{
		DB:              db,
		NSQProducer:     producer,
		SchemaRecreated: recreated,
	}, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// createTopics pre-creates topics so consumers polling lookupd do not 404
// before the first upload publishes.
func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicDocumentProcess)
	}()
}

func EnsureSchemaWithRetry(ctx context.Context, s SchemaEnsurer, attempts int, delay time.Duration) (bool, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		var recreated bool
		if recreated, err = s.EnsureSchema(ctx); err == nil {
			return recreated, nil
		}
		slog.WarnContext(ctx, "failed to ensure embedding schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return false, err
}
