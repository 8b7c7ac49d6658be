package fifo

import "sort"

// Ledger owns the per-product lot collections. Lots are only ever appended
// and mutated through consumption; no lot is removed. External callers get
// copies, never the internal slices.
type Ledger struct {
	lots map[int64][]*Lot
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{lots: make(map[int64][]*Lot)}
}

// Append adds a lot to its product's collection in arrival order.
func (l *Ledger) Append(lot *Lot) {
	l.lots[lot.ProductCode] = append(l.lots[lot.ProductCode], lot)
}

// forConsumption returns the product's lots sorted ascending by entry date.
// The sort is stable so lots sharing a date keep their arrival order, which
// keeps draw order deterministic for any input ordering of receptions.
func (l *Ledger) forConsumption(code int64) []*Lot {
	lots := l.lots[code]
	sort.SliceStable(lots, func(i, j int) bool {
		return lots[i].EntryDate.Before(lots[j].EntryDate)
	})
	return lots
}

// Product returns copies of the product's lots in consumption order.
func (l *Ledger) Product(code int64) []Lot {
	lots := l.forConsumption(code)
	out := make([]Lot, len(lots))
	for i, lot := range lots {
		out[i] = *lot
	}
	return out
}

// All returns copies of every lot, ordered by product code then entry
// order, so snapshots are reproducible.
func (l *Ledger) All() []Lot {
	codes := make([]int64, 0, len(l.lots))
	for code := range l.lots {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	var out []Lot
	for _, code := range codes {
		for _, lot := range l.forConsumption(code) {
			out = append(out, *lot)
		}
	}
	return out
}

// Stock sums available quantity and value for one product. Depleted lots
// contribute nothing.
func (l *Ledger) Stock(code int64) ProductStock {
	var s ProductStock
	for _, lot := range l.lots[code] {
		if lot.Available > 0 {
			s.Qty += lot.Available
			s.Value += lot.Available * lot.UnitCost
		}
	}
	return s
}

// InventoryValue aggregates available value across all products. Products
// whose lots are fully depleted are omitted from the breakdown.
func (l *Ledger) InventoryValue() InventoryValue {
	inv := InventoryValue{ByProduct: make(map[int64]ProductStock)}
	for code := range l.lots {
		s := l.Stock(code)
		if s.Qty > 0 {
			inv.ByProduct[code] = s
			inv.Total += s.Value
		}
	}
	return inv
}

// meanUnitCost averages unit cost across all of the product's lots,
// including depleted ones. Zero when the product has no lots.
func (l *Ledger) meanUnitCost(code int64) float64 {
	lots := l.lots[code]
	if len(lots) == 0 {
		return 0
	}
	var sum float64
	for _, lot := range lots {
		sum += lot.UnitCost
	}
	return sum / float64(len(lots))
}

// ActiveLots counts lots with remaining stock.
func (l *Ledger) ActiveLots() int {
	n := 0
	for _, lots := range l.lots {
		for _, lot := range lots {
			if lot.Available > 0 {
				n++
			}
		}
	}
	return n
}
