// Package memory is an in-process document store. Every Save is fanned out
// synchronously to the subscribers, the writer's own subscription included,
// the same way a real push channel echoes writes back.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"leadboard/internal/core"
	"leadboard/internal/store"
)

type subscriber struct {
	onChange func(core.Document)
	onStatus func(bool)
}

type Store struct {
	mu     sync.Mutex
	data   []byte
	saves  int
	subs   map[int]subscriber
	nextID int
}

var _ store.Store = (*Store)(nil)

// New returns an empty store: Load reports store.ErrNotFound until the
// first Save.
func New() *Store {
	return &Store{subs: map[int]subscriber{}}
}

// NewWithDocument returns a store already holding doc.
func NewWithDocument(doc core.Document) (*Store, error) {
	s := New()
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	s.data = data
	return s, nil
}

// NewFromFile seeds the store from a JSON document file. A missing file
// yields an empty store.
func NewFromFile(path string) (*Store, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed document: %w", err)
	}
	doc, err := core.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("seed document %s: %w", path, err)
	}
	return NewWithDocument(doc)
}

func (s *Store) Load(_ context.Context) (core.Document, error) {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()
	if data == nil {
		return core.Document{}, store.ErrNotFound
	}
	return core.DecodeDocument(data)
}

// Save stores a JSON copy of doc and notifies every subscriber.
func (s *Store) Save(_ context.Context, doc core.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	s.mu.Lock()
	s.data = data
	s.saves++
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.publish(subs, data)
	return nil
}

// Publish replaces the document as if another client had written it.
func (s *Store) Publish(doc core.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.publish(subs, data)
	return nil
}

func (s *Store) subscribersLocked() []subscriber {
	subs := make([]subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (s *Store) publish(subs []subscriber, data []byte) {
	for _, sub := range subs {
		if sub.onChange == nil {
			continue
		}
		// each subscriber decodes its own copy
		doc, err := core.DecodeDocument(data)
		if err != nil {
			continue
		}
		sub.onChange(doc)
	}
}

func (s *Store) Subscribe(_ context.Context, onChange func(core.Document), onStatus func(bool)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = subscriber{onChange: onChange, onStatus: onStatus}
	s.mu.Unlock()

	if onStatus != nil {
		onStatus(true)
	}
	return func() {
		s.mu.Lock()
		_, ok := s.subs[id]
		delete(s.subs, id)
		s.mu.Unlock()
		if ok && onStatus != nil {
			onStatus(false)
		}
	}, nil
}

// SetConnected reports a connectivity change to every subscriber.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	subs := s.subscribersLocked()
	s.mu.Unlock()
	for _, sub := range subs {
		if sub.onStatus != nil {
			sub.onStatus(connected)
		}
	}
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
