package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductClone(t *testing.T) {
	p := &Product{
		ID:            "p1",
		Name:          "Espresso",
		StockQuantity: 10,
		Tags:          []string{"coffee"},
	}

	c := p.Clone()
	require.Equal(t, p, c)

	c.StockQuantity = 3
	c.Tags[0] = "tea"
	assert.Equal(t, 10, p.StockQuantity, "clone does not alias the original")
	assert.Equal(t, "coffee", p.Tags[0], "tags are deep-copied")
}

func TestProductFieldUpdatesApply(t *testing.T) {
	stock := 5
	track := true

	p := &Product{StockQuantity: 10, TrackStock: false}

	ProductFieldUpdates{StockQuantity: &stock}.Apply(p)
	assert.Equal(t, 5, p.StockQuantity)
	assert.False(t, p.TrackStock, "nil fields are left untouched")

	ProductFieldUpdates{TrackStock: &track}.Apply(p)
	assert.True(t, p.TrackStock)
	assert.Equal(t, 5, p.StockQuantity)
}

func TestProductFieldUpdatesIsEmpty(t *testing.T) {
	stock := 1
	assert.True(t, ProductFieldUpdates{}.IsEmpty())
	assert.False(t, ProductFieldUpdates{StockQuantity: &stock}.IsEmpty())
}
