package backend

import (
	"context"
	"fmt"
	"log/slog"

	"leadboard/internal/adapters"
	"leadboard/internal/amqp"
	"leadboard/internal/store/memory"
	"leadboard/internal/store/mongostore"
	"leadboard/internal/storage"
)

type builder func(f *DefaultFactory, ctx context.Context, cfg Config) (*BackendResult, error)

var builders = map[BackendType]builder{
	MemoryBackend: (*DefaultFactory).memory,
	SQLiteBackend: (*DefaultFactory).sqlite,
	MongoBackend:  (*DefaultFactory).mongo,
}

type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory returns a Factory logging to logger, or slog.Default if nil.
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	res, err := builders[cfg.Type](f, ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Type, err)
	}
	return res, nil
}

func (f *DefaultFactory) memory(_ context.Context, cfg Config) (*BackendResult, error) {
	s, err := memory.NewFromFile(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Initialized memory backend", "seed_file", cfg.SeedFile)
	return &BackendResult{Store: s}, nil
}

// sqlite opens the run database and, when AMQP_URL is set, the push channel
// other processes use to learn about saves. A broker that cannot be reached
// at startup leaves the store without pushes.
func (f *DefaultFactory) sqlite(_ context.Context, cfg Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, cfg.DocumentID)
	if err != nil {
		return nil, err
	}

	var (
		bus    adapters.Broadcaster
		client *amqp.Client
	)
	if cfg.AMQPURL != "" {
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			f.logger.Warn("AMQP unavailable, continuing without push channel", "error", err)
			client = nil
		} else {
			bus = client
		}
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"document_id", repo.DocumentID(),
		"amqp_enabled", client != nil)

	cleanup := func() error {
		if client != nil {
			if err := client.Close(); err != nil {
				f.logger.Warn("Failed to close AMQP client", "error", err)
			}
		}
		return repo.Close()
	}
	return &BackendResult{Store: adapters.NewNotifyingStore(repo, bus, f.logger), Cleanup: cleanup}, nil
}

func (f *DefaultFactory) mongo(ctx context.Context, cfg Config) (*BackendResult, error) {
	s, err := mongostore.Open(ctx, mongostore.Config{
		URI:        cfg.MongoURI,
		Database:   cfg.MongoDatabase,
		Collection: cfg.MongoCollection,
		DocumentID: cfg.DocumentID,
	}, f.logger)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Initialized MongoDB backend", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
	return &BackendResult{
		Store:   s,
		Cleanup: func() error { return s.Close(context.Background()) },
	}, nil
}
