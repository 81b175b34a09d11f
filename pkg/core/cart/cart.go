// Package cart holds the order state. The arithmetic lives in pure functions
// over item slices so the dispatcher can project the outcome of a tool-call
// batch before committing it; Store is the concurrency-safe holder the UI and
// dispatcher share.
package cart

import (
	"strings"
	"sync"

	"github.com/bucketworks/kiosk/pkg/core/catalog"
)

// LineItem is one cart row. Product data is copied in at add time and never
// re-fetched.
type LineItem struct {
	Product  catalog.Product
	Quantity int
}

// Add merges qty units of p into items, returning a new slice. Quantities
// below one are treated as one. Matching is by product ID.
func Add(items []LineItem, p catalog.Product, qty int) []LineItem {
	if qty < 1 {
		qty = 1
	}
	next := make([]LineItem, len(items))
	copy(next, items)
	for i := range next {
		if next[i].Product.ID == p.ID {
			next[i].Quantity += qty
			return next
		}
	}
	return append(next, LineItem{Product: p, Quantity: qty})
}

// Remove takes qty units out of the first line whose product id or name
// case-insensitively equals matchKey, returning a new slice. qty < 1 removes
// the whole line; a qty at or above the line's quantity deletes the line. A
// miss returns the items unchanged.
func Remove(items []LineItem, matchKey string, qty int) []LineItem {
	key := strings.ToLower(matchKey)
	next := make([]LineItem, 0, len(items))
	matched := false
	for _, it := range items {
		if matched || (strings.ToLower(it.Product.ID) != key && strings.ToLower(it.Product.Name) != key) {
			next = append(next, it)
			continue
		}
		matched = true
		if qty >= 1 && qty < it.Quantity {
			it.Quantity -= qty
			next = append(next, it)
		}
	}
	return next
}

// Find returns the first line whose product id or name case-insensitively
// equals matchKey, or nil.
func Find(items []LineItem, matchKey string) *LineItem {
	key := strings.ToLower(matchKey)
	for i := range items {
		if strings.ToLower(items[i].Product.ID) == key || strings.ToLower(items[i].Product.Name) == key {
			return &items[i]
		}
	}
	return nil
}

// Total sums price times quantity over items.
func Total(items []LineItem) int {
	total := 0
	for _, it := range items {
		total += it.Product.Price * it.Quantity
	}
	return total
}

// Store is the shared, mutex-guarded cart.
type Store struct {
	mu    sync.Mutex
	items []LineItem

	// OnChange, if set, fires after every committed mutation with a
	// snapshot of the new contents. Used to push cart updates to the UI.
	OnChange func(items []LineItem, total int)
}

// Items returns a snapshot of the cart contents.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.items)
}

// Total returns the current cart total.
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Total(s.items)
}

// Replace commits a new cart state wholesale.
func (s *Store) Replace(items []LineItem) {
	s.mu.Lock()
	s.items = snapshot(items)
	items = snapshot(s.items)
	total := Total(s.items)
	onChange := s.OnChange
	s.mu.Unlock()
	if onChange != nil {
		onChange(items, total)
	}
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.Replace(nil)
}

func snapshot(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
