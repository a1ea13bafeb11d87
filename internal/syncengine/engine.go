// Package syncengine performs the ordered local-then-remote dual-write for
// the product fields that must stay consistent between the local cache and
// the server, rolling the local write back when the remote write fails.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"possync-go/internal/events"
	"possync-go/internal/gateway"
	"possync-go/internal/retry"
	"possync-go/internal/storage"
	"possync-go/internal/types"
)

// ErrRecordNotFound is returned when the target record is absent from the
// local cache. The engine never creates records.
var ErrRecordNotFound = errors.New("record not found locally")

// Result is the typed outcome of a dual-write. The engine never returns a
// bare error: callers must distinguish "rolled back" from "fatal" without
// exception-style control flow.
type Result struct {
	Success    bool
	Err        error
	Data       *types.Product
	RetryCount int
}

// Engine coordinates the dual-write. The in-flight counter is advisory only:
// overlapping calls are observed and logged, not serialized. Two concurrent
// dual-writes to the same record racing on the read-modify-write of the
// cache blob is a documented hazard.
type Engine struct {
	store    *storage.Manager
	gw       *gateway.Client
	updater  *retry.Updater
	bus      *events.Bus
	logger   *zap.Logger
	inFlight atomic.Int32

	// now is injectable for timestamp assertions in tests
	now func() time.Time
}

// New creates a dual-write engine.
func New(store *storage.Manager, gw *gateway.Client, updater *retry.Updater, bus *events.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		gw:      gw,
		updater: updater,
		bus:     bus,
		logger:  logger.Named("sync-engine"),
		now:     time.Now,
	}
}

// SyncProductFields applies updates to the locally cached product first
// (local write-ahead), then pushes the same updates to the server with
// backoff. If the remote write ultimately fails the local entry is restored
// field-for-field from the pre-update snapshot.
func (e *Engine) SyncProductFields(ctx context.Context, productID string, updates types.ProductFieldUpdates) Result {
	if n := e.inFlight.Add(1); n > 1 {
		e.logger.Warn("Concurrent dual-write in progress; same-record writes may race",
			zap.String("product_id", productID),
			zap.Int32("in_flight", n))
	}
	defer e.inFlight.Add(-1)

	if updates.IsEmpty() {
		return Result{Err: fmt.Errorf("no syncable fields in update for product %s", productID)}
	}

	products, err := e.store.GetProductCache()
	if err != nil {
		return Result{Err: fmt.Errorf("local read failed: %w", err)}
	}

	idx := -1
	for i, p := range products {
		if p.ID == productID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Result{Err: fmt.Errorf("%w: product %s", ErrRecordNotFound, productID)}
	}

	// Snapshot for rollback, then commit the local write-ahead.
	snapshot := products[idx].Clone()

	updated := snapshot.Clone()
	updates.Apply(updated)
	updated.UpdatedAt = e.now()
	products[idx] = updated

	if err := e.store.SaveProductCache(products); err != nil {
		// Nothing was persisted; abort before any remote attempt.
		return Result{Err: fmt.Errorf("local write failed: %w", err)}
	}

	e.logger.Debug("Local write committed, pushing to server",
		zap.String("product_id", productID))

	res := e.updater.Do(ctx, "product "+productID, func(ctx context.Context) (json.RawMessage, error) {
		return e.pushUpdate(ctx, productID, updates)
	})

	if !res.Success {
		return e.rollback(products, idx, snapshot, res)
	}

	confirmed := updated
	if len(res.Data) > 0 {
		var serverProduct types.Product
		if err := json.Unmarshal(res.Data, &serverProduct); err != nil {
			e.logger.Warn("Server confirmation payload unparseable, keeping local copy",
				zap.String("product_id", productID), zap.Error(err))
		} else {
			confirmed = &serverProduct
		}
	}

	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.StockSynced, ProductID: productID})
	}
	e.logger.Info("Dual-write completed",
		zap.String("product_id", productID),
		zap.Int("retries", res.RetryCount))

	return Result{Success: true, Data: confirmed, RetryCount: res.RetryCount}
}

// pushUpdate performs one remote PUT of the field updates.
func (e *Engine) pushUpdate(ctx context.Context, productID string, updates types.ProductFieldUpdates) (json.RawMessage, error) {
	resp, err := e.gw.Call(ctx, http.MethodPut, "/products/"+productID, updates, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("server rejected update (%d): %s", resp.StatusCode, resp.ErrorMessage())
	}

	env, err := resp.Envelope()
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("server reported failure: %s", env.Message)
	}
	return env.Data, nil
}

// rollback restores the pre-update snapshot into the cached collection and
// persists it. Rollback strictly follows remote failure; afterwards the
// local record equals the record before the call.
func (e *Engine) rollback(products []*types.Product, idx int, snapshot *types.Product, res retry.Result) Result {
	products[idx] = snapshot

	rollbackErr := e.store.SaveProductCache(products)
	if rollbackErr != nil {
		e.logger.Error("Rollback write failed; local cache diverges from server",
			zap.String("product_id", snapshot.ID),
			zap.Error(rollbackErr))
	} else {
		e.logger.Info("Rolled back local write after remote failure",
			zap.String("product_id", snapshot.ID),
			zap.Int("retries", res.RetryCount))
	}

	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.StockRolledBack, ProductID: snapshot.ID})
	}

	err := fmt.Errorf("remote update failed after %d retries: %w", res.RetryCount, res.Err)
	if rollbackErr != nil {
		err = fmt.Errorf("%w (rollback also failed: %v)", err, rollbackErr)
	}
	return Result{Err: err, RetryCount: res.RetryCount}
}
