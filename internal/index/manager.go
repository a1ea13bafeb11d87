// Package index maintains a full-text search index over the locally cached
// products.
package index

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"

	"possync-go/internal/types"
)

const indexDirName = "products.bleve"

// productDoc is the searchable projection of a product.
type productDoc struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// Hit is a single search result.
type Hit struct {
	ID    string
	Score float64
}

// Manager provides a unified interface for product indexing operations
type Manager struct {
	idx    bleve.Index
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewManager opens (or creates) the product index under dataDir.
func NewManager(dataDir string, logger *zap.Logger) (*Manager, error) {
	path := filepath.Join(dataDir, indexDirName)

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open product index: %w", err)
	}

	return &Manager{
		idx:    idx,
		logger: logger.Named("index"),
	}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("name", textField)
	doc.AddFieldMappingsAt("description", textField)
	doc.AddFieldMappingsAt("category", textField)
	doc.AddFieldMappingsAt("tags", textField)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// Close closes the index manager
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idx != nil {
		return m.idx.Close()
	}
	return nil
}

// RebuildProducts replaces the index contents with the given products.
func (m *Manager) RebuildProducts(products []*types.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := make(map[string]bool, len(products))

	batch := m.idx.NewBatch()
	for _, p := range products {
		keep[p.ID] = true
		if err := batch.Index(p.ID, productDoc{
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Tags:        p.Tags,
		}); err != nil {
			return fmt.Errorf("failed to index product %s: %w", p.ID, err)
		}
	}

	// Drop documents for products no longer in the cache
	stale, err := m.allDocIDs()
	if err != nil {
		return err
	}
	for _, id := range stale {
		if !keep[id] {
			batch.Delete(id)
		}
	}

	if err := m.idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to rebuild product index: %w", err)
	}

	m.logger.Debug("Product index rebuilt",
		zap.Int("products", len(products)))
	return nil
}

// IndexProduct upserts a single product document.
func (m *Manager) IndexProduct(p *types.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.idx.Index(p.ID, productDoc{
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Tags:        p.Tags,
	})
}

// DeleteProduct removes a product document.
func (m *Manager) DeleteProduct(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.idx.Delete(id)
}

// Search runs a full-text query over the indexed products.
func (m *Manager) Search(query string, limit int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)

	res, err := m.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("product search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

func (m *Manager) allDocIDs() ([]string, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 10000, 0, false)
	res, err := m.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate index documents: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}
