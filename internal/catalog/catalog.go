// Package catalog indexes the read-only reference data the FIFO engine
// consults during cost resolution: the product catalog and the purchase
// records.
package catalog

import (
	"math"
	"sort"
	"time"

	"github.com/costwise/costwise/internal/dataset"
)

// MatchWindow is the maximum distance, in days, between a reception date
// and a purchase date for the purchase to fund the reception's cost.
const MatchWindow = 7

// Index holds products keyed by code and purchases grouped per product,
// sorted by date for deterministic window matching.
type Index struct {
	products  map[int64]dataset.Product
	purchases map[int64][]dataset.Purchase
}

// NewIndex builds the catalog index. Inputs are copied; later mutation of
// the slices does not affect the index.
func NewIndex(products []dataset.Product, purchases []dataset.Purchase) *Index {
	idx := &Index{
		products:  make(map[int64]dataset.Product, len(products)),
		purchases: make(map[int64][]dataset.Purchase),
	}
	for _, p := range products {
		idx.products[p.Code] = p
	}
	for _, c := range purchases {
		idx.purchases[c.ProductCode] = append(idx.purchases[c.ProductCode], c)
	}
	for code := range idx.purchases {
		list := idx.purchases[code]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Date.Equal(list[j].Date) {
				return list[i].Number < list[j].Number
			}
			return list[i].Date.Before(list[j].Date)
		})
	}
	return idx
}

// Product looks up a catalog entry by code.
func (idx *Index) Product(code int64) (dataset.Product, bool) {
	p, ok := idx.products[code]
	return p, ok
}

// ProductLabel returns the display label for a code, falling back to a
// generic name when the product is not in the catalog.
func (idx *Index) ProductLabel(code int64, fallback string) string {
	if p, ok := idx.products[code]; ok {
		if label := p.Label(); label != "" {
			return label
		}
	}
	return fallback
}

// DefaultUnitCost returns the catalog default cost for a product, if any.
func (idx *Index) DefaultUnitCost(code int64) (float64, bool) {
	p, ok := idx.products[code]
	if !ok || p.UnitCost == nil {
		return 0, false
	}
	return *p.UnitCost, true
}

// MatchPurchase finds the purchase that funds a reception's unit cost: the
// same product, a positive unit count, and a date within MatchWindow days
// (inclusive) of the reception date. Ties are broken by nearest date, then
// lowest sequence number, so resolution is reproducible for any input
// ordering.
func (idx *Index) MatchPurchase(code int64, date time.Time) (dataset.Purchase, bool) {
	var (
		best     dataset.Purchase
		bestDiff float64 = math.MaxFloat64
		found    bool
	)
	for _, c := range idx.purchases[code] {
		if c.Units <= 0 {
			continue
		}
		diff := math.Abs(date.Sub(c.Date).Hours() / 24)
		if diff > MatchWindow {
			continue
		}
		if !found || diff < bestDiff || (diff == bestDiff && c.Number < best.Number) {
			best = c
			bestDiff = diff
			found = true
		}
	}
	return best, found
}

// ProductCount reports the catalog size.
func (idx *Index) ProductCount() int {
	return len(idx.products)
}
