package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"possync-go/internal/types"
)

func newTestIndex(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func TestIndexAndSearch(t *testing.T) {
	m := newTestIndex(t)

	require.NoError(t, m.IndexProduct(&types.Product{
		ID:          "p1",
		Name:        "Espresso",
		Description: "double shot",
		Category:    "drinks",
	}))
	require.NoError(t, m.IndexProduct(&types.Product{
		ID:       "p2",
		Name:     "Croissant",
		Category: "food",
		Tags:     []string{"bakery", "breakfast"},
	}))

	hits, err := m.Search("espresso", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, hitIDs(hits))

	// Tags are searchable
	hits, err = m.Search("bakery", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, hitIDs(hits))
}

func TestRebuildProductsDropsStale(t *testing.T) {
	m := newTestIndex(t)

	require.NoError(t, m.RebuildProducts([]*types.Product{
		{ID: "p1", Name: "Espresso"},
		{ID: "p2", Name: "Americano"},
	}))

	// p2 disappeared from the cache
	require.NoError(t, m.RebuildProducts([]*types.Product{
		{ID: "p1", Name: "Espresso"},
	}))

	hits, err := m.Search("americano", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = m.Search("espresso", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, hitIDs(hits))
}

func TestDeleteProduct(t *testing.T) {
	m := newTestIndex(t)

	require.NoError(t, m.IndexProduct(&types.Product{ID: "p1", Name: "Espresso"}))
	require.NoError(t, m.DeleteProduct("p1"))

	hits, err := m.Search("espresso", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestReopenExistingIndex(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManager(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.IndexProduct(&types.Product{ID: "p1", Name: "Espresso"}))
	require.NoError(t, m.Close())

	m2, err := NewManager(dir, zap.NewNop())
	require.NoError(t, err)
	defer m2.Close()

	hits, err := m2.Search("espresso", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, hitIDs(hits))
}
