package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"leadboard/internal/core"
	"leadboard/internal/store"
)

func TestLoadBeforeSave(t *testing.T) {
	_, err := New().Load(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveFansOutCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	var got []core.Document
	var status []bool
	unsubscribe, err := s.Subscribe(ctx, func(d core.Document) { got = append(got, d) }, func(c bool) { status = append(status, c) })
	require.NoError(t, err)

	doc := core.DefaultTeam().NewSeedDocument()
	require.NoError(t, s.Save(ctx, doc))
	require.Len(t, got, 1)
	require.Equal(t, len(doc.Members), len(got[0].Members))
	require.Equal(t, 1, s.Saves())

	// the delivered snapshot does not share maps with the stored copy
	got[0].Members[0].Projects[0].Leads["2026-01-05"] = core.Count(1)
	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Zero(t, loaded.TotalLeads())

	unsubscribe()
	require.NoError(t, s.Publish(doc))
	require.Len(t, got, 1)
	require.Equal(t, []bool{true, false}, status)
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromFile(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)

	path := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"A": {"projects": [{"id": "p1", "leads": {"2026-01-05": 3}}]}}`), 0o600))
	s, err = NewFromFile(path)
	require.NoError(t, err)
	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, doc.TotalLeads())

	require.NoError(t, os.WriteFile(path, []byte(`{"A": {"projects": [{"id": ""}]}}`), 0o600))
	_, err = NewFromFile(path)
	require.Error(t, err)
}
