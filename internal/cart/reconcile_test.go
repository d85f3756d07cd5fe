package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cartWithQuantities(t *testing.T, quantities map[int64]int64) *Cart {
	t.Helper()
	c := New()
	for id, qty := range quantities {
		generous := stockMap{id: qty}
		c.AddItem(generous, product(id, "Item", "1.00"))
		c.UpdateQuantity(generous, id, qty)
	}
	return c
}

func TestReconcileCleanPass(t *testing.T) {
	c := cartWithQuantities(t, map[int64]int64{1: 5})
	report := c.Reconcile(stockMap{1: 5})
	assert.True(t, report.Clean())
	assert.Equal(t, int64(5), c.Items()[0].Quantity)
}

func TestReconcileClampsAboveStock(t *testing.T) {
	c := cartWithQuantities(t, map[int64]int64{1: 5})

	report := c.Reconcile(stockMap{1: 3})
	require.Len(t, report.Entries, 1)
	entry := report.Entries[0]
	assert.Equal(t, OutcomeAdjusted, entry.Outcome)
	assert.Equal(t, int64(5), entry.Before)
	assert.Equal(t, int64(3), entry.After)
	assert.Equal(t, int64(3), c.Items()[0].Quantity)
}

func TestReconcileRemovesWhenStockGone(t *testing.T) {
	c := cartWithQuantities(t, map[int64]int64{1: 5})

	report := c.Reconcile(stockMap{1: 0})
	require.Len(t, report.Entries, 1)
	entry := report.Entries[0]
	assert.Equal(t, OutcomeRemoved, entry.Outcome)
	assert.Equal(t, int64(5), entry.Before)
	assert.Equal(t, int64(0), entry.After)
	assert.True(t, c.Empty())
}

func TestReconcileConsolidatesOutcomes(t *testing.T) {
	c := New()
	c.AddItem(stockMap{1: 10}, product(1, "Tomatoes", "2.49"))
	c.UpdateQuantity(stockMap{1: 10}, 1, 4)
	c.AddItem(stockMap{2: 10}, product(2, "Onions", "1.19"))
	c.UpdateQuantity(stockMap{2: 10}, 2, 6)
	c.AddItem(stockMap{3: 10}, product(3, "Potatoes", "0.89"))

	// One line untouched, one clamped, one removed: a single report.
	report := c.Reconcile(stockMap{1: 4, 2: 2, 3: 0})
	require.Len(t, report.Entries, 2)

	assert.Equal(t, int64(2), report.Entries[0].ProductID)
	assert.Equal(t, OutcomeAdjusted, report.Entries[0].Outcome)
	assert.Equal(t, int64(3), report.Entries[1].ProductID)
	assert.Equal(t, OutcomeRemoved, report.Entries[1].Outcome)

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, int64(4), items[0].Quantity)
	assert.Equal(t, int64(2), items[1].Quantity)
}

func TestReconcileTwicePreservesResult(t *testing.T) {
	c := cartWithQuantities(t, map[int64]int64{1: 5})
	stock := stockMap{1: 3}

	first := c.Reconcile(stock)
	assert.False(t, first.Clean())

	second := c.Reconcile(stock)
	assert.True(t, second.Clean(), "an aligned cart needs no further correction")
}
