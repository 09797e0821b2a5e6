package adapters

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"leadboard/internal/amqp"
	"leadboard/internal/core"
	"leadboard/internal/store"
	"leadboard/internal/store/memory"
)

type memoryRepo struct {
	*memory.Store
}

func (memoryRepo) DocumentID() string { return core.DefaultDocumentID }

type fakeBus struct {
	published  []*amqp.DocumentChangedMessage
	publishErr error
	handler    func(*amqp.DocumentChangedMessage) error
}

func (b *fakeBus) PublishDocumentChanged(_ context.Context, msg *amqp.DocumentChangedMessage) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, msg)
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, handler func(*amqp.DocumentChangedMessage) error, onStatus func(bool)) (func(), error) {
	b.handler = handler
	onStatus(true)
	return func() { b.handler = nil }, nil
}

func leadDoc(n int) core.Document {
	p := core.NewProject("p1", "Omsk")
	p.Leads["2026-01-05"] = core.Count(n)
	return core.Document{Members: []core.Member{{Name: "A", Projects: []core.Project{p}}}}
}

func TestSavePublishesSnapshot(t *testing.T) {
	bus := &fakeBus{}
	s := NewNotifyingStore(memoryRepo{memory.New()}, bus, nil)

	require.NoError(t, s.Save(context.Background(), leadDoc(3)))

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, loaded.TotalLeads())

	require.Len(t, bus.published, 1)
	msg := bus.published[0]
	require.Equal(t, core.DefaultDocumentID, msg.DocumentID)
	require.Equal(t, s.Origin(), msg.Origin)
	doc, err := msg.Document()
	require.NoError(t, err)
	require.Equal(t, 3, doc.TotalLeads())
}

func TestPublishFailureDoesNotFailSave(t *testing.T) {
	bus := &fakeBus{publishErr: errors.New("circuit breaker is open")}
	s := NewNotifyingStore(memoryRepo{memory.New()}, bus, nil)

	require.NoError(t, s.Save(context.Background(), leadDoc(1)))
	_, err := s.Load(context.Background())
	require.NoError(t, err)
}

func TestSubscribeSkipsOwnMessages(t *testing.T) {
	bus := &fakeBus{}
	s := NewNotifyingStore(memoryRepo{memory.New()}, bus, nil)

	var got []core.Document
	var connected bool
	unsubscribe, err := s.Subscribe(context.Background(),
		func(d core.Document) { got = append(got, d) },
		func(c bool) { connected = c })
	require.NoError(t, err)
	require.True(t, connected)

	own, err := amqp.NewDocumentChangedMessage(core.DefaultDocumentID, s.Origin(), leadDoc(1))
	require.NoError(t, err)
	require.NoError(t, bus.handler(own))
	require.Empty(t, got)

	other, err := amqp.NewDocumentChangedMessage("other-doc", "peer", leadDoc(1))
	require.NoError(t, err)
	require.NoError(t, bus.handler(other))
	require.Empty(t, got)

	peer, err := amqp.NewDocumentChangedMessage(core.DefaultDocumentID, "peer", leadDoc(7))
	require.NoError(t, err)
	require.NoError(t, bus.handler(peer))
	require.Len(t, got, 1)
	require.Equal(t, 7, got[0].TotalLeads())

	unsubscribe()
	require.Nil(t, bus.handler)
}

func TestSubscribeRejectsMalformedSnapshot(t *testing.T) {
	bus := &fakeBus{}
	s := NewNotifyingStore(memoryRepo{memory.New()}, bus, nil)

	called := false
	_, err := s.Subscribe(context.Background(), func(core.Document) { called = true }, func(bool) {})
	require.NoError(t, err)

	err = bus.handler(&amqp.DocumentChangedMessage{
		DocumentID: core.DefaultDocumentID,
		Origin:     "peer",
		Data:       []byte(`[1,2,3]`),
	})
	require.ErrorIs(t, err, core.ErrMalformedDocument)
	require.False(t, called)
}

func TestWithoutBroadcaster(t *testing.T) {
	s := NewNotifyingStore(memoryRepo{memory.New()}, nil, nil)

	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)

	connected := true
	unsubscribe, err := s.Subscribe(context.Background(), func(core.Document) {}, func(c bool) { connected = c })
	require.NoError(t, err)
	require.False(t, connected)
	unsubscribe()

	require.NoError(t, s.Save(context.Background(), leadDoc(2)))
}
