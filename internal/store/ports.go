// Package store defines the contract of the shared document store.
package store

import (
	"context"
	"errors"

	"leadboard/internal/core"
)

// ErrNotFound is returned by Load when the document does not exist yet.
var ErrNotFound = errors.New("document not found")

type (
	Loader interface {
		Load(ctx context.Context) (core.Document, error)
	}

	// Saver upserts the whole document under the store's fixed key.
	Saver interface {
		Save(ctx context.Context, doc core.Document) error
	}

	// Subscriber delivers a full snapshot on every change to the document and
	// reports push-channel connectivity. The returned function stops delivery.
	Subscriber interface {
		Subscribe(ctx context.Context, onChange func(core.Document), onStatus func(connected bool)) (unsubscribe func(), err error)
	}

	Store interface {
		Loader
		Saver
		Subscriber
	}
)
