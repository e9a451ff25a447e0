package dashboard

import "sort"

// tally is a map that remembers the order in which keys were first seen.
// Rankings sort stably over that order, so ties go to the earliest key.
type tally[K comparable, V any] struct {
	index map[K]int
	keys  []K
	vals  []*V
}

func newTally[K comparable, V any]() *tally[K, V] {
	return &tally[K, V]{index: map[K]int{}}
}

// get returns the value stored under key, creating it with init the first
// time the key is seen.
func (t *tally[K, V]) get(key K, init func() *V) *V {
	if i, ok := t.index[key]; ok {
		return t.vals[i]
	}
	v := init()
	t.index[key] = len(t.vals)
	t.keys = append(t.keys, key)
	t.vals = append(t.vals, v)
	return v
}

func (t *tally[K, V]) len() int {
	return len(t.vals)
}

// each visits entries in first-seen order.
func (t *tally[K, V]) each(fn func(key K, v *V)) {
	for i, k := range t.keys {
		fn(k, t.vals[i])
	}
}

// sorted returns entry indexes ordered by score descending, ties in
// first-seen order.
func (t *tally[K, V]) sorted(score func(v *V) int) []int {
	order := make([]int, len(t.vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return score(t.vals[order[a]]) > score(t.vals[order[b]])
	})
	return order
}

// counter is the common accumulator for anything ranked by play count.
type counter struct {
	name    string
	artist  string
	img     string
	count   int
	minutes float64
}

func newCounter(name, artist string) func() *counter {
	return func() *counter {
		return &counter{name: name, artist: artist}
	}
}

// add records one play. A non-empty image replaces the stored one; an empty
// image never clears it.
func (c *counter) add(img string, minutes float64) {
	c.count++
	c.minutes += minutes
	if img != "" {
		c.img = img
	}
}

func byCount(c *counter) int {
	return c.count
}

// top returns at most limit ranked items. A limit of zero means no limit.
func top[K comparable](t *tally[K, counter], limit int) []RankedItem {
	order := t.sorted(byCount)
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	items := make([]RankedItem, 0, len(order))
	for _, i := range order {
		c := t.vals[i]
		items = append(items, RankedItem{
			Name:   c.name,
			Artist: c.artist,
			Count:  c.count,
			Image:  c.img,
		})
	}
	return items
}

// best returns the single highest counter; the first seen wins ties.
func best[K comparable](t *tally[K, counter]) *counter {
	var winner *counter
	for _, c := range t.vals {
		if winner == nil || c.count > winner.count {
			winner = c
		}
	}
	return winner
}
