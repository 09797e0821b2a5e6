// Package adapters composes the persistence and push-channel pieces into a
// single document store.
package adapters

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"leadboard/internal/amqp"
	"leadboard/internal/core"
	"leadboard/internal/store"
)

// DocumentRepository persists the document under a fixed key.
type DocumentRepository interface {
	store.Loader
	store.Saver
	DocumentID() string
}

// Broadcaster carries change notifications between processes.
type Broadcaster interface {
	PublishDocumentChanged(ctx context.Context, msg *amqp.DocumentChangedMessage) error
	Subscribe(ctx context.Context, handler func(*amqp.DocumentChangedMessage) error, onStatus func(bool)) (func(), error)
}

// NotifyingStore saves to a repository and announces every save on a
// broadcaster. Without a broadcaster it is a plain repository that reports
// itself as disconnected.
type NotifyingStore struct {
	repo   DocumentRepository
	bus    Broadcaster
	origin string
	logger *slog.Logger
}

var _ store.Store = (*NotifyingStore)(nil)

func NewNotifyingStore(repo DocumentRepository, bus Broadcaster, logger *slog.Logger) *NotifyingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyingStore{
		repo:   repo,
		bus:    bus,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Origin identifies this process on the broadcaster.
func (s *NotifyingStore) Origin() string {
	return s.origin
}

func (s *NotifyingStore) Load(ctx context.Context) (core.Document, error) {
	return s.repo.Load(ctx)
}

// Save persists doc and then publishes it. A publish failure after a
// successful save is logged and not returned: the data is durable and other
// clients catch up on their next load.
func (s *NotifyingStore) Save(ctx context.Context, doc core.Document) error {
	if err := s.repo.Save(ctx, doc); err != nil {
		return err
	}
	if s.bus == nil {
		return nil
	}

	msg, err := amqp.NewDocumentChangedMessage(s.repo.DocumentID(), s.origin, doc)
	if err != nil {
		return fmt.Errorf("build change message: %w", err)
	}
	if err := s.bus.PublishDocumentChanged(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish document change",
			"error", err,
			"document_id", msg.DocumentID)
	}
	return nil
}

// Subscribe forwards snapshots published by other processes. Our own
// messages and messages for other documents are acknowledged and skipped.
func (s *NotifyingStore) Subscribe(ctx context.Context, onChange func(core.Document), onStatus func(bool)) (func(), error) {
	if s.bus == nil {
		if onStatus != nil {
			onStatus(false)
		}
		return func() {}, nil
	}

	return s.bus.Subscribe(ctx, func(msg *amqp.DocumentChangedMessage) error {
		if msg.Origin == s.origin || msg.DocumentID != s.repo.DocumentID() {
			return nil
		}
		doc, err := msg.Document()
		if err != nil {
			return fmt.Errorf("decode snapshot from %s: %w", msg.Origin, err)
		}
		s.logger.InfoContext(ctx, "Received document change",
			"origin", msg.Origin,
			"total_leads", doc.TotalLeads())
		onChange(doc)
		return nil
	}, onStatus)
}
