// Package mongostore keeps the shared document in a MongoDB collection and
// uses change streams as the push channel.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadboard/internal/core"
	"leadboard/internal/store"
)

const (
	DefaultDatabase   = "leadboard"
	DefaultCollection = "reports"

	resumeDelay = 2 * time.Second
)

type Config struct {
	URI        string
	Database   string
	Collection string
	DocumentID string
}

// record is the stored shape: the document as JSON text under its key,
// tagged with the process that wrote it.
type record struct {
	ID        string    `bson:"_id"`
	Data      string    `bson:"data"`
	Origin    string    `bson:"origin"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type changeEvent struct {
	OperationType string  `bson:"operationType"`
	FullDocument  *record `bson:"fullDocument"`
}

// eventSource is the part of *mongo.ChangeStream consume reads from.
type eventSource interface {
	Next(ctx context.Context) bool
	Decode(v interface{}) error
}

type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	documentID string
	// origin marks this process's writes so their change events are skipped.
	origin string
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to MongoDB and pings the server.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo URI is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.DocumentID == "" {
		cfg.DocumentID = core.DefaultDocumentID
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		documentID: cfg.DocumentID,
		origin:     uuid.NewString(),
		logger:     logger,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) DocumentID() string {
	return s.documentID
}

// Origin identifies this process's writes.
func (s *Store) Origin() string {
	return s.origin
}

func (s *Store) Load(ctx context.Context) (core.Document, error) {
	var rec record
	err := s.collection.FindOne(ctx, bson.M{"_id": s.documentID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Document{}, store.ErrNotFound
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("find document: %w", err)
	}
	return decodeRecord(rec)
}

func (s *Store) Save(ctx context.Context, doc core.Document) error {
	rec, err := encodeRecord(s.documentID, s.origin, doc, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = s.collection.UpdateOne(ctx,
		bson.M{"_id": s.documentID},
		bson.M{"$set": bson.M{"data": rec.Data, "origin": rec.Origin, "updated_at": rec.UpdatedAt}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	s.logger.InfoContext(ctx, "Document saved to mongo",
		"document_id", s.documentID,
		"total_leads", doc.TotalLeads())
	return nil
}

// Subscribe watches the document with a change stream. Change streams need
// a replica set; on a standalone server the initial Watch fails and the
// error is returned. A broken stream is reported through onStatus and
// reopened until ctx is done or unsubscribe is called.
func (s *Store) Subscribe(ctx context.Context, onChange func(core.Document), onStatus func(bool)) (func(), error) {
	stream, err := s.watch(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	notify(onStatus, true)

	go func() {
		defer func() {
			if stream != nil {
				stream.Close(context.Background())
			}
		}()
		for {
			s.consume(ctx, stream, onChange)
			if ctx.Err() != nil {
				return
			}
			s.logger.WarnContext(ctx, "Change stream interrupted", "error", stream.Err())
			notify(onStatus, false)
			stream.Close(context.Background())
			stream = nil

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(resumeDelay):
				}
				stream, err = s.watch(ctx)
				if err == nil {
					break
				}
				s.logger.WarnContext(ctx, "Reopening change stream failed", "error", err)
			}
			notify(onStatus, true)
		}
	}()
	return cancel, nil
}

func (s *Store) watch(ctx context.Context) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: s.documentID}}}},
	}
	stream, err := s.collection.Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watch document: %w", err)
	}
	return stream, nil
}

// consume delivers change events until the source ends. Events written by
// this process are skipped: they are the echo of our own saves and may
// arrive after later local edits.
func (s *Store) consume(ctx context.Context, events eventSource, onChange func(core.Document)) {
	for events.Next(ctx) {
		var ev changeEvent
		if err := events.Decode(&ev); err != nil {
			s.logger.WarnContext(ctx, "Dropping undecodable change event", "error", err)
			continue
		}
		if ev.FullDocument == nil {
			continue
		}
		if ev.FullDocument.Origin == s.origin {
			s.logger.DebugContext(ctx, "Skipping own change event", "document_id", ev.FullDocument.ID)
			continue
		}
		doc, err := decodeRecord(*ev.FullDocument)
		if err != nil {
			s.logger.WarnContext(ctx, "Dropping malformed snapshot", "error", err)
			continue
		}
		onChange(doc)
	}
}

func notify(onStatus func(bool), connected bool) {
	if onStatus != nil {
		onStatus(connected)
	}
}

func encodeRecord(id, origin string, doc core.Document, now time.Time) (record, error) {
	data, err := doc.MarshalJSON()
	if err != nil {
		return record{}, fmt.Errorf("encode document: %w", err)
	}
	return record{ID: id, Data: string(data), Origin: origin, UpdatedAt: now}, nil
}

func decodeRecord(rec record) (core.Document, error) {
	doc, err := core.DecodeDocument([]byte(rec.Data))
	if err != nil {
		return core.Document{}, fmt.Errorf("document %s: %w", rec.ID, err)
	}
	return doc, nil
}
