package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync-go/internal/config"
	"possync-go/internal/events"
	"possync-go/internal/types"
)

// The forwarders must keep draining their subscriptions even when nothing
// reads the merged channel, dropping overflow instead of blocking.
func TestMergeEventsDoesNotBlockWithoutReader(t *testing.T) {
	in := make(chan events.Event, 1)
	_ = mergeEvents((<-chan events.Event)(in))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < config.EventChannelBufferSizeAll*3; i++ {
			in <- events.Event{Type: events.StockSynced, ProductID: fmt.Sprintf("p%d", i)}
		}
		close(in)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder stalled once the merged buffer filled")
	}
}

func TestMergeEventsForwards(t *testing.T) {
	a := make(chan events.Event, 1)
	b := make(chan events.Event, 1)
	merged := mergeEvents((<-chan events.Event)(a), (<-chan events.Event)(b))

	a <- events.Event{Type: events.ConnectionEstablished, URL: "http://pos-1"}
	b <- events.Event{Type: events.StockRolledBack, ProductID: "p1"}

	got := map[events.EventType]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-merged:
			got[ev.Type] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for merged event")
		}
	}
	assert.True(t, got[events.ConnectionEstablished])
	assert.True(t, got[events.StockRolledBack])
}

func TestParseOrderItem(t *testing.T) {
	tests := []struct {
		arg     string
		want    types.OrderItem
		wantErr bool
	}{
		{arg: "Coffee:2", want: types.OrderItem{Name: "Coffee", Quantity: 2}},
		{arg: "Latte:1:4.50", want: types.OrderItem{Name: "Latte", Quantity: 1, UnitPrice: 4.50}},
		{arg: "Coffee", wantErr: true},
		{arg: "Coffee:zero", wantErr: true},
		{arg: "Coffee:2:cheap", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			item, err := parseOrderItem(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, item)
		})
	}
}
