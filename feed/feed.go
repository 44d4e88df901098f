// Package feed interleaves user data with native-ad placeholders.
package feed

const (
	// DefaultDataSize is the size of the demo data set.
	DefaultDataSize = 200
	// DefaultStride places an ad before every fifth data item.
	DefaultStride = 5
)

// Kind tags the variant held by an Item.
type Kind int

const (
	KindData Kind = iota
	KindNativeAd
)

func (k Kind) String() string {
	if k == KindNativeAd {
		return "native_ad"
	}
	return "data"
}

// Item is either a data item or a native-ad placeholder.
type Item[T any] struct {
	Kind Kind
	Data T
	Ad   *AdSlot
}

// DataItem wraps a user data value.
func DataItem[T any](v T) Item[T] {
	return Item[T]{Kind: KindData, Data: v}
}

// AdItem wraps a placeholder that fetches from src when displayed.
func AdItem[T any](src AdSource) Item[T] {
	return Item[T]{Kind: KindNativeAd, Ad: &AdSlot{source: src}}
}

// IsAd reports whether the item is an ad placeholder.
func (i Item[T]) IsAd() bool { return i.Kind == KindNativeAd }

// Compose returns data with an ad placeholder inserted before every item whose
// index is a non-zero multiple of stride. A non-positive stride or a nil
// source inserts nothing.
func Compose[T any](data []T, stride int, src AdSource) []Item[T] {
	out := make([]Item[T], 0, len(data)+adCount(len(data), stride))
	for i, v := range data {
		if src != nil && stride > 0 && i != 0 && i%stride == 0 {
			out = append(out, AdItem[T](src))
		}
		out = append(out, DataItem(v))
	}
	return out
}

func adCount(n, stride int) int {
	if stride <= 0 || n == 0 {
		return 0
	}
	return (n - 1) / stride
}

// Sequence returns the integers 1..n, the demo user data.
func Sequence(n int) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
