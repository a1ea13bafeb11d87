package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"possync-go/internal/gateway"
	"possync-go/internal/index"
	"possync-go/internal/storage"
	"possync-go/internal/syncengine"
	"possync-go/internal/types"
)

// Sort keys accepted by ProductListOptions.
const (
	SortByName    = "name"
	SortByCreated = "created"
)

// ProductListOptions control client-side filtering and sorting of the
// fetched collection. Limit/Offset are passed through as query parameters.
type ProductListOptions struct {
	Category   string
	ActiveOnly bool
	Search     string
	SortBy     string
	Limit      int
	Offset     int
}

// Products is the product resource service. The server is authoritative;
// each read re-fetches. The local cache blob exists for the dual-write path
// and the search index, and is refreshed on every successful List.
type Products struct {
	gw     *gateway.Client
	store  *storage.Manager
	engine *syncengine.Engine
	idx    *index.Manager
	logger *zap.Logger
}

// NewProducts creates the product service. idx may be nil when full-text
// search is not needed.
func NewProducts(gw *gateway.Client, store *storage.Manager, engine *syncengine.Engine, idx *index.Manager, logger *zap.Logger) *Products {
	return &Products{
		gw:     gw,
		store:  store,
		engine: engine,
		idx:    idx,
		logger: logger.Named("products"),
	}
}

// Create validates and creates a product on the server.
func (s *Products) Create(ctx context.Context, p *types.Product) (*types.Product, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("product name is required")
	}
	if p.Price < 0 {
		return nil, fmt.Errorf("product price must not be negative")
	}

	// Correlate the in-flight record through the pending queue until the
	// server assigns its id. Creation is synchronous, so the queue entry
	// lives only for the duration of this call.
	localID := NewLocalID()
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode product: %w", err)
	}
	if err := s.store.EnqueuePendingSync(&storage.PendingSyncRecord{
		LocalID:  localID,
		Resource: "products",
		Payload:  payload,
	}); err != nil {
		s.logger.Warn("Failed to enqueue pending product", zap.Error(err))
	}

	resp, err := s.gw.Call(ctx, http.MethodPost, "/products", p, nil)
	if err != nil {
		return nil, err
	}

	var created types.Product
	if err := unwrap(resp, &created); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	if err := s.store.RemovePendingSync(localID); err != nil {
		s.logger.Warn("Failed to dequeue pending product",
			zap.String("local_id", localID), zap.Error(err))
	}

	s.logger.Info("Product created",
		zap.String("id", created.ID), zap.String("name", created.Name))
	return &created, nil
}

// List fetches the product collection and applies client-side filtering and
// sorting. A full fetch refreshes the local cache, the search index, and the
// last-sync timestamp; a paginated fetch never touches them, since a partial
// page overwriting the cache blob would hide the other products from the
// dual-write path.
func (s *Products) List(ctx context.Context, opts ProductListOptions) ([]*types.Product, error) {
	resp, err := s.gw.Call(ctx, http.MethodGet, "/products"+listQuery(opts.Limit, opts.Offset), nil, nil)
	if err != nil {
		return nil, err
	}

	var products []*types.Product
	if err := unwrap(resp, &products); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	if opts.Limit <= 0 && opts.Offset <= 0 {
		s.refreshLocal(products)
	}

	return filterAndSortProducts(products, opts), nil
}

// refreshLocal updates the cache blob, the search index, and the sync
// timestamp after a successful full fetch. Failures here degrade search and
// dual-write freshness but never fail the read.
func (s *Products) refreshLocal(products []*types.Product) {
	if err := s.store.SaveProductCache(products); err != nil {
		s.logger.Warn("Failed to refresh product cache", zap.Error(err))
		return
	}
	if err := s.store.SetSyncTime(storage.ProductsSyncTimeKey, time.Now()); err != nil {
		s.logger.Warn("Failed to record products sync time", zap.Error(err))
	}
	if s.idx != nil {
		if err := s.idx.RebuildProducts(products); err != nil {
			s.logger.Warn("Failed to rebuild product index", zap.Error(err))
		}
	}
}

func filterAndSortProducts(products []*types.Product, opts ProductListOptions) []*types.Product {
	filtered := make([]*types.Product, 0, len(products))
	search := strings.ToLower(opts.Search)
	for _, p := range products {
		if opts.Category != "" && p.Category != opts.Category {
			continue
		}
		if opts.ActiveOnly && !p.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		filtered = append(filtered, p)
	}

	switch opts.SortBy {
	case SortByName:
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].Name < filtered[j].Name
		})
	case SortByCreated:
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		})
	}

	return filtered
}

// GetByID fetches a single product.
func (s *Products) GetByID(ctx context.Context, id string) (*types.Product, error) {
	resp, err := s.gw.Call(ctx, http.MethodGet, "/products/"+id, nil, nil)
	if err != nil {
		return nil, err
	}

	var p types.Product
	if err := unwrap(resp, &p); err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return &p, nil
}

// Update replaces mutable product fields on the server.
func (s *Products) Update(ctx context.Context, id string, p *types.Product) (*types.Product, error) {
	resp, err := s.gw.Call(ctx, http.MethodPut, "/products/"+id, p, nil)
	if err != nil {
		return nil, err
	}

	var updated types.Product
	if err := unwrap(resp, &updated); err != nil {
		return nil, fmt.Errorf("failed to update product %s: %w", id, err)
	}
	return &updated, nil
}

// Delete removes a product on the server and from the search index.
func (s *Products) Delete(ctx context.Context, id string) error {
	resp, err := s.gw.Call(ctx, http.MethodDelete, "/products/"+id, nil, nil)
	if err != nil {
		return err
	}
	if err := unwrap(resp, nil); err != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}

	if s.idx != nil {
		if err := s.idx.DeleteProduct(id); err != nil {
			s.logger.Warn("Failed to remove product from index",
				zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// UpdateStock sets the stock quantity through the dual-write engine.
func (s *Products) UpdateStock(ctx context.Context, id string, quantity int) syncengine.Result {
	if quantity < 0 {
		return syncengine.Result{Err: fmt.Errorf("stock quantity must not be negative")}
	}
	return s.engine.SyncProductFields(ctx, id, types.ProductFieldUpdates{StockQuantity: &quantity})
}

// SetTrackStock toggles stock tracking through the dual-write engine.
func (s *Products) SetTrackStock(ctx context.Context, id string, track bool) syncengine.Result {
	return s.engine.SyncProductFields(ctx, id, types.ProductFieldUpdates{TrackStock: &track})
}

// Search runs a full-text query against the local index and resolves hits
// from the cached collection. Run List first to populate both.
func (s *Products) Search(ctx context.Context, query string, limit int) ([]*types.Product, error) {
	if s.idx == nil {
		return nil, fmt.Errorf("product search index not configured")
	}

	hits, err := s.idx.Search(query, limit)
	if err != nil {
		return nil, err
	}

	cached, err := s.store.GetProductCache()
	if err != nil {
		return nil, fmt.Errorf("local read failed: %w", err)
	}
	byID := make(map[string]*types.Product, len(cached))
	for _, p := range cached {
		byID[p.ID] = p
	}

	results := make([]*types.Product, 0, len(hits))
	for _, h := range hits {
		if p, ok := byID[h.ID]; ok {
			results = append(results, p)
		}
	}
	return results, nil
}
