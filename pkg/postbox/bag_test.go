package postbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBagAddRemoveStableHandles(t *testing.T) {
	b := NewBag[string]()

	h1 := b.Add("a")
	h2 := b.Add("b")
	h3 := b.Add("c")
	require.Equal(t, 3, b.Len())

	b.Remove(h2)
	require.Equal(t, 2, b.Len())

	snapshot := b.Snapshot()
	assert.ElementsMatch(t, []string{"a", "c"}, snapshot)

	// h1 and h3 must still resolve correctly after h2's removal.
	h4 := b.Add("d")
	assert.NotEqual(t, h1, h4)
	assert.NotEqual(t, h3, h4)
}

func TestBagRemoveRecyclesSlot(t *testing.T) {
	b := NewBag[int]()
	h1 := b.Add(1)
	b.Remove(h1)
	h2 := b.Add(2)
	assert.Equal(t, h1, h2, "freed slot should be reused by the next Add")
	assert.Equal(t, 1, b.Len())
}

func TestBagRemoveIsIdempotent(t *testing.T) {
	b := NewBag[int]()
	h := b.Add(42)
	b.Remove(h)
	b.Remove(h) // must not panic or double-decrement count
	assert.Equal(t, 0, b.Len())
}

func TestBagRemoveOutOfRangeIsNoOp(t *testing.T) {
	b := NewBag[int]()
	b.Add(1)
	b.Remove(99)
	assert.Equal(t, 1, b.Len())
}

func TestBagEachVisitsOnlyLive(t *testing.T) {
	b := NewBag[string]()
	b.Add("x")
	h := b.Add("y")
	b.Add("z")
	b.Remove(h)

	var seen []string
	b.Each(func(_ int, v string) { seen = append(seen, v) })
	assert.ElementsMatch(t, []string{"x", "z"}, seen)
}
