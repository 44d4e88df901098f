package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeDefaultDataSet(t *testing.T) {
	items := Compose(Sequence(DefaultDataSize), DefaultStride, NewPool())

	require.Len(t, items, DefaultDataSize+39)
	assert.False(t, items[0].IsAd(), "no ad before the first item")

	var data []int
	ads := 0
	for i, item := range items {
		if item.IsAd() {
			ads++
			require.Less(t, i+1, len(items))
			next := items[i+1]
			require.False(t, next.IsAd(), "ads are never adjacent")
			assert.Equal(t, 0, (next.Data-1)%DefaultStride, "ad precedes item %d", next.Data)
			continue
		}
		data = append(data, item.Data)
	}
	assert.Equal(t, 39, ads)
	assert.Equal(t, Sequence(DefaultDataSize), data)
}

func TestComposeLayout(t *testing.T) {
	items := Compose([]string{"a", "b", "c", "d", "e"}, 2, NewPool())

	var kinds []string
	for _, item := range items {
		if item.IsAd() {
			kinds = append(kinds, "ad")
		} else {
			kinds = append(kinds, item.Data)
		}
	}
	assert.Equal(t, []string{"a", "b", "ad", "c", "d", "ad", "e"}, kinds)
}

func TestComposeEdgeCases(t *testing.T) {
	pool := NewPool()

	assert.Empty(t, Compose([]int(nil), 5, pool))
	assert.Len(t, Compose([]int{1}, 1, pool), 1)
	assert.Len(t, Compose([]int{1, 2}, 1, pool), 3)
	assert.Len(t, Compose(Sequence(10), 0, pool), 10)
	assert.Len(t, Compose(Sequence(10), -3, pool), 10)
	assert.Len(t, Compose(Sequence(10), 5, nil), 10)
	assert.Len(t, Compose(Sequence(5), 5, pool), 5)
	assert.Len(t, Compose(Sequence(6), 5, pool), 7)
}

func TestAdSlotIsLazy(t *testing.T) {
	calls := 0
	src := AdSourceFunc(func() (NativeAd, bool) {
		calls++
		if calls == 1 {
			return NativeAd{}, false
		}
		return NativeAd{ID: "ad-1"}, true
	})

	items := Compose(Sequence(3), 1, src)
	require.Len(t, items, 5)
	assert.Equal(t, 0, calls, "composing fetches nothing")

	slot := items[1].Ad
	_, ok := slot.Fetch()
	assert.False(t, ok)
	assert.False(t, slot.Filled())

	ad, ok := slot.Fetch()
	assert.True(t, ok)
	assert.Equal(t, "ad-1", ad.ID)

	ad, ok = slot.Fetch()
	assert.True(t, ok)
	assert.Equal(t, "ad-1", ad.ID)
	assert.Equal(t, 2, calls, "a filled slot keeps its ad")
}

func TestPool(t *testing.T) {
	pool := NewPool(NativeAd{ID: "1"}, NativeAd{ID: "2"})
	assert.Equal(t, 2, pool.Len())

	ad, ok := pool.TryFetch()
	assert.True(t, ok)
	assert.Equal(t, "1", ad.ID)

	pool.Load(NativeAd{ID: "3"})
	ad, _ = pool.TryFetch()
	assert.Equal(t, "2", ad.ID)
	ad, _ = pool.TryFetch()
	assert.Equal(t, "3", ad.ID)

	_, ok = pool.TryFetch()
	assert.False(t, ok)
	assert.Equal(t, 0, pool.Len())
}

func TestSequence(t *testing.T) {
	assert.Nil(t, Sequence(0))
	assert.Equal(t, []int{1, 2, 3}, Sequence(3))
}
