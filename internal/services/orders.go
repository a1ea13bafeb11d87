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
	"possync-go/internal/storage"
	"possync-go/internal/types"
)

// OrderListOptions control client-side filtering of the fetched orders.
type OrderListOptions struct {
	Status string
	Limit  int
	Offset int
}

// Orders is the order resource service.
type Orders struct {
	gw     *gateway.Client
	store  *storage.Manager
	logger *zap.Logger
}

// NewOrders creates the order service.
func NewOrders(gw *gateway.Client, store *storage.Manager, logger *zap.Logger) *Orders {
	return &Orders{
		gw:     gw,
		store:  store,
		logger: logger.Named("orders"),
	}
}

// Create validates the order, runs the stock pre-flight, and creates the
// order on the server. A failed pre-flight rejects the order before any
// write; an unavailable inventory snapshot does not block creation.
func (s *Orders) Create(ctx context.Context, order *types.Order) (*types.Order, error) {
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}
	for _, item := range order.Items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, fmt.Errorf("order item name is required")
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("order item %q quantity must be positive", item.Name)
		}
	}

	validation := s.ValidateOrderStock(ctx, order.Items)
	if !validation.Valid {
		return nil, fmt.Errorf("order rejected: %s", strings.Join(validation.Issues, "; "))
	}

	localID := NewLocalID()
	payload, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	if err := s.store.EnqueuePendingSync(&storage.PendingSyncRecord{
		LocalID:  localID,
		Resource: "orders",
		Payload:  payload,
	}); err != nil {
		s.logger.Warn("Failed to enqueue pending order", zap.Error(err))
	}

	resp, err := s.gw.Call(ctx, http.MethodPost, "/orders", order, nil)
	if err != nil {
		return nil, err
	}

	var created types.Order
	if err := unwrap(resp, &created); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := s.store.RemovePendingSync(localID); err != nil {
		s.logger.Warn("Failed to dequeue pending order",
			zap.String("local_id", localID), zap.Error(err))
	}

	s.logger.Info("Order created",
		zap.String("id", created.ID), zap.Int("items", len(created.Items)))
	return &created, nil
}

// ValidateOrderStock checks each requested line item against a live
// inventory snapshot (name -> stock). The check fails open: if the snapshot
// fetch itself fails, the order is allowed with a warning, since blocking
// checkout on a secondary read is worse than an occasional oversell.
func (s *Orders) ValidateOrderStock(ctx context.Context, items []types.OrderItem) types.StockValidation {
	snapshot, err := s.inventorySnapshot(ctx)
	if err != nil {
		s.logger.Warn("Inventory snapshot unavailable, skipping stock validation",
			zap.Error(err))
		return types.StockValidation{Valid: true}
	}

	var issues []string
	for _, item := range items {
		product, ok := snapshot[item.Name]
		if !ok {
			issues = append(issues, fmt.Sprintf("Product not found: %q", item.Name))
			continue
		}
		if product.TrackStock && product.StockQuantity < item.Quantity {
			issues = append(issues, fmt.Sprintf("Insufficient stock for %q: %d available, %d requested",
				item.Name, product.StockQuantity, item.Quantity))
		}
	}

	return types.StockValidation{Valid: len(issues) == 0, Issues: issues}
}

// inventorySnapshot fetches the live product collection keyed by name.
func (s *Orders) inventorySnapshot(ctx context.Context) (map[string]*types.Product, error) {
	resp, err := s.gw.Call(ctx, http.MethodGet, "/products", nil, nil)
	if err != nil {
		return nil, err
	}

	var products []*types.Product
	if err := unwrap(resp, &products); err != nil {
		return nil, err
	}

	snapshot := make(map[string]*types.Product, len(products))
	for _, p := range products {
		snapshot[p.Name] = p
	}
	return snapshot, nil
}

// List fetches orders, filters by status client-side, and sorts by creation
// date descending.
func (s *Orders) List(ctx context.Context, opts OrderListOptions) ([]*types.Order, error) {
	resp, err := s.gw.Call(ctx, http.MethodGet, "/orders"+listQuery(opts.Limit, opts.Offset), nil, nil)
	if err != nil {
		return nil, err
	}

	var orders []*types.Order
	if err := unwrap(resp, &orders); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	if err := s.store.SetSyncTime(storage.OrdersSyncTimeKey, time.Now()); err != nil {
		s.logger.Warn("Failed to record orders sync time", zap.Error(err))
	}

	filtered := make([]*types.Order, 0, len(orders))
	for _, o := range orders {
		if opts.Status != "" && o.Status != opts.Status {
			continue
		}
		filtered = append(filtered, o)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	return filtered, nil
}

// GetByID fetches a single order.
func (s *Orders) GetByID(ctx context.Context, id string) (*types.Order, error) {
	resp, err := s.gw.Call(ctx, http.MethodGet, "/orders/"+id, nil, nil)
	if err != nil {
		return nil, err
	}

	var o types.Order
	if err := unwrap(resp, &o); err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus transitions an order's status on the server.
func (s *Orders) UpdateStatus(ctx context.Context, id, status string) (*types.Order, error) {
	switch status {
	case types.OrderStatusPending, types.OrderStatusCompleted, types.OrderStatusCancelled:
	default:
		return nil, fmt.Errorf("invalid order status %q", status)
	}

	body := map[string]string{"status": status}
	resp, err := s.gw.Call(ctx, http.MethodPut, "/orders/"+id, body, nil)
	if err != nil {
		return nil, err
	}

	var updated types.Order
	if err := unwrap(resp, &updated); err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", id, err)
	}
	return &updated, nil
}

// Delete removes an order on the server.
func (s *Orders) Delete(ctx context.Context, id string) error {
	resp, err := s.gw.Call(ctx, http.MethodDelete, "/orders/"+id, nil, nil)
	if err != nil {
		return err
	}
	if err := unwrap(resp, nil); err != nil {
		return fmt.Errorf("failed to delete order %s: %w", id, err)
	}
	return nil
}
