// Package backend opens the document store selected by DATA_BACKEND.
package backend

import (
	"context"
	"errors"
	"fmt"

	"leadboard/internal/config"
	"leadboard/internal/store"
)

type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	MongoBackend  BackendType = "mongo"
)

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool {
	_, ok := builders[bt]
	return ok
}

// Config selects a backend and carries the settings it needs. Fields of
// other backends are ignored.
type Config struct {
	Type       BackendType
	DocumentID string

	// memory
	SeedFile string

	// sqlite, with an optional AMQP push channel
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string

	// mongo
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// FromAppConfig picks the backend settings out of the application config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errors.New("app config is nil")
	}
	cfg := Config{
		Type:            BackendType(app.DataBackend),
		DocumentID:      app.DocumentID,
		SeedFile:        app.SeedFile,
		SQLiteDBPath:    app.SQLiteDBPath,
		AMQPURL:         app.AMQPURL,
		AMQPExchange:    app.AMQPExchange,
		MongoURI:        app.MongoURI,
		MongoDatabase:   app.MongoDatabase,
		MongoCollection: app.MongoCollection,
	}
	if !cfg.Type.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", app.DataBackend)
	}
	return cfg, nil
}

// Validate checks the fields the selected backend requires.
func (c Config) Validate() error {
	switch c.Type {
	case MemoryBackend:
		return nil
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
		return nil
	case MongoBackend:
		if c.MongoURI == "" {
			return errors.New("MongoDB URI is required for mongo backend")
		}
		return nil
	}
	return fmt.Errorf("invalid backend type: %s", c.Type)
}

// CleanupFunc releases what a backend opened. It may be nil.
type CleanupFunc func() error

type BackendResult struct {
	Store   store.Store
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
