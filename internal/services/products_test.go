package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"possync-go/internal/storage"
	"possync-go/internal/types"
)

func TestFilterAndSortProducts(t *testing.T) {
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	products := []*types.Product{
		{ID: "p1", Name: "Espresso", Category: "drinks", IsActive: true, CreatedAt: jan},
		{ID: "p2", Name: "Americano", Category: "drinks", IsActive: false, CreatedAt: feb},
		{ID: "p3", Name: "Croissant", Category: "food", IsActive: true, CreatedAt: feb},
	}

	ids := func(ps []*types.Product) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}

	tests := []struct {
		name string
		opts ProductListOptions
		want []string
	}{
		{"no filters", ProductListOptions{}, []string{"p1", "p2", "p3"}},
		{"category", ProductListOptions{Category: "drinks"}, []string{"p1", "p2"}},
		{"active only", ProductListOptions{ActiveOnly: true}, []string{"p1", "p3"}},
		{"name substring is case-insensitive", ProductListOptions{Search: "CANO"}, []string{"p2"}},
		{"sort by name", ProductListOptions{SortBy: SortByName}, []string{"p2", "p3", "p1"}},
		{"sort by created, newest first", ProductListOptions{Category: "drinks", SortBy: SortByCreated}, []string{"p2", "p1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(filterAndSortProducts(products, tt.opts)))
		})
	}
}

// A full List refreshes the local cache and sync timestamp, before any
// client-side filtering.
func TestListProductsRefreshesLocal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		serveData(t, w, []*types.Product{
			{ID: "p1", Name: "Espresso", IsActive: true},
			{ID: "p2", Name: "Americano", IsActive: false},
		})
	})

	rig := newServiceRig(t, mux)
	svc := NewProducts(rig.gw, rig.store, rig.engine, nil, zap.NewNop())

	got, err := svc.List(context.Background(), ProductListOptions{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)

	cached, err := rig.store.GetProductCache()
	require.NoError(t, err)
	assert.Len(t, cached, 2, "cache holds the unfiltered collection")

	syncedAt, err := rig.store.GetSyncTime(storage.ProductsSyncTimeKey)
	require.NoError(t, err)
	assert.False(t, syncedAt.IsZero())
}

// A paginated List returns a partial page; overwriting the cache with it
// would make the missing products invisible to the dual-write path.
func TestListProductsPaginatedKeepsCache(t *testing.T) {
	full := []*types.Product{
		{ID: "p1", Name: "Espresso", StockQuantity: 10},
		{ID: "p2", Name: "Americano", StockQuantity: 4},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") == "1" {
			serveData(t, w, full[:1])
			return
		}
		serveData(t, w, full)
	})
	mux.HandleFunc("/api/products/p2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		serveData(t, w, types.Product{ID: "p2", Name: "Americano", StockQuantity: 5})
	})

	rig := newServiceRig(t, mux)
	svc := NewProducts(rig.gw, rig.store, rig.engine, nil, zap.NewNop())

	// Seed the cache with the full collection
	_, err := svc.List(context.Background(), ProductListOptions{})
	require.NoError(t, err)

	page, err := svc.List(context.Background(), ProductListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)

	cached, err := rig.store.GetProductCache()
	require.NoError(t, err)
	assert.Len(t, cached, 2, "partial page must not overwrite the cache")

	// p2 is still reachable for a dual-write
	res := svc.UpdateStock(context.Background(), "p2", 5)
	require.True(t, res.Success, "dual-write after a paginated list: %v", res.Err)
}

func TestCreateProduct(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		serveData(t, w, types.Product{ID: "p9", Name: "Latte", Price: 4.5})
	})

	rig := newServiceRig(t, mux)
	svc := NewProducts(rig.gw, rig.store, rig.engine, nil, zap.NewNop())

	got, err := svc.Create(context.Background(), &types.Product{Name: "Latte", Price: 4.5})
	require.NoError(t, err)
	assert.Equal(t, "p9", got.ID)

	pending, err := rig.store.ListPendingSync()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateProductValidation(t *testing.T) {
	rig := newServiceRig(t, http.NewServeMux())
	svc := NewProducts(rig.gw, rig.store, rig.engine, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), &types.Product{Name: "  "})
	assert.ErrorContains(t, err, "name is required")

	_, err = svc.Create(context.Background(), &types.Product{Name: "Latte", Price: -1})
	assert.ErrorContains(t, err, "must not be negative")
}

// A failed creation leaves its correlation entry in the pending queue for
// later inspection.
func TestCreateProductFailureKeepsPendingEntry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	rig := newServiceRig(t, mux)
	svc := NewProducts(rig.gw, rig.store, rig.engine, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), &types.Product{Name: "Latte"})
	require.Error(t, err)

	pending, err := rig.store.ListPendingSync()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "products", pending[0].Resource)
}

func TestGetProductByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products/p1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			serveData(t, w, types.Product{ID: "p1", Name: "Espresso"})
		case http.MethodDelete:
			serveData(t, w, nil)
		}
	})

	rig := newServiceRig(t, mux)
	svc := NewProducts(rig.gw, rig.store, rig.engine, nil, zap.NewNop())

	got, err := svc.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Espresso", got.Name)

	assert.NoError(t, svc.Delete(context.Background(), "p1"))
}

// UpdateStock routes through the dual-write engine, so the cached record is
// the one that changes.
func TestUpdateStockDualWrite(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products/p1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		serveData(t, w, types.Product{ID: "p1", Name: "Espresso", StockQuantity: 7})
	})

	rig := newServiceRig(t, mux)
	require.NoError(t, rig.store.SaveProductCache([]*types.Product{
		{ID: "p1", Name: "Espresso", StockQuantity: 12},
	}))

	svc := NewProducts(rig.gw, rig.store, rig.engine, nil, zap.NewNop())

	res := svc.UpdateStock(context.Background(), "p1", 7)
	require.True(t, res.Success)

	cached, err := rig.store.GetProductCache()
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, 7, cached[0].StockQuantity)

	res = svc.UpdateStock(context.Background(), "p1", -1)
	assert.False(t, res.Success)
	assert.ErrorContains(t, res.Err, "must not be negative")
}

func TestSearchWithoutIndex(t *testing.T) {
	rig := newServiceRig(t, http.NewServeMux())
	svc := NewProducts(rig.gw, rig.store, rig.engine, nil, zap.NewNop())

	_, err := svc.Search(context.Background(), "espresso", 10)
	assert.ErrorContains(t, err, "search index not configured")
}
