package cart

import (
	"fmt"
	"strings"

	"github.com/noah-isme/modelshop-checkout/internal/pricing"
)

// Store owns the ordered line items of one cart. It is not safe for
// concurrent use; the owning session serialises access.
type Store struct {
	items []LineItem
}

// NewStore returns a store seeded with the provided lines. Lines with a
// non-positive quantity are dropped and duplicate identifiers are merged.
func NewStore(items []LineItem) *Store {
	s := &Store{}
	for _, it := range items {
		if it.Quantity <= 0 || strings.TrimSpace(it.ID) == "" {
			continue
		}
		if idx := s.index(it.ID); idx >= 0 {
			s.items[idx].Quantity += it.Quantity
			continue
		}
		if it.Tags == nil {
			it.Tags = []string{}
		}
		s.items = append(s.items, it)
	}
	return s
}

// Add merges the item into an existing line with the same identifier,
// incrementing its quantity by one, or inserts a new line with quantity one.
func (s *Store) Add(item LineItem) LineItem {
	if idx := s.index(item.ID); idx >= 0 {
		s.items[idx].Quantity++
		return s.items[idx]
	}
	item.Quantity = 1
	item.Tags = append([]string{}, item.Tags...)
	s.items = append(s.items, item)
	return item
}

// Remove deletes the line with the provided identifier. It reports whether
// a line was removed.
func (s *Store) Remove(id string) bool {
	idx := s.index(id)
	if idx < 0 {
		return false
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	return true
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or below
// removes the line. It reports whether a line was found.
func (s *Store) UpdateQuantity(id string, qty int) bool {
	if qty <= 0 {
		return s.Remove(id)
	}
	idx := s.index(id)
	if idx < 0 {
		return false
	}
	s.items[idx].Quantity = qty
	return true
}

// Clear empties the store.
func (s *Store) Clear() {
	s.items = nil
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []LineItem {
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the line with the provided identifier.
func (s *Store) Get(id string) (LineItem, bool) {
	idx := s.index(id)
	if idx < 0 {
		return LineItem{}, false
	}
	return s.items[idx], true
}

// Len returns the number of distinct lines.
func (s *Store) Len() int {
	return len(s.items)
}

// PricingItems converts the lines for the pricing engine.
func (s *Store) PricingItems() []pricing.Item {
	out := make([]pricing.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, pricing.Item{Qty: it.Quantity, UnitPrice: it.Price})
	}
	return out
}

// Subtotal sums price times quantity over all lines.
func (s *Store) Subtotal() pricing.Money {
	return pricing.Subtotal(s.PricingItems())
}

// PhysicalKey fingerprints the physical lines so callers can tell when the
// shipped set changed.
func (s *Store) PhysicalKey() string {
	var b strings.Builder
	for _, it := range s.items {
		if !it.IsPhysical() {
			continue
		}
		fmt.Fprintf(&b, "%s:%d", it.ID, it.Quantity)
		if it.Weight != nil {
			fmt.Fprintf(&b, ":w%s", it.Weight.String())
		}
		if d := it.Dimensions; d != nil {
			fmt.Fprintf(&b, ":d%sx%sx%s", d.Length.String(), d.Width.String(), d.Height.String())
		}
		b.WriteByte(';')
	}
	return b.String()
}

func (s *Store) index(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
