package fifo

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/costwise/costwise/internal/catalog"
	"github.com/costwise/costwise/internal/dataset"
)

type phase int

const (
	phaseNew phase = iota
	phaseBuilding
	phaseConsuming
)

// Engine orchestrates lot creation from receptions and lot consumption for
// sales and shrinkage. One engine instance processes exactly one dataset
// end to end; it is not safe for concurrent use.
type Engine struct {
	catalog      *catalog.Index
	ledger       *Ledger
	consumptions []Consumption
	warnings     []Warning
	phase        phase
	logger       *slog.Logger
}

// NewEngine builds an engine over the given reference data.
func NewEngine(cat *catalog.Index, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog: cat,
		ledger:  NewLedger(),
		logger:  logger,
	}
}

// IngestReceptions creates one lot per reception with positive units,
// resolving unit costs through the fallback chain. Receptions are sorted
// by date before lot creation; non-positive quantities are skipped
// silently. Must complete before any consumption call.
func (e *Engine) IngestReceptions(receptions []dataset.Reception) error {
	if e.phase == phaseConsuming {
		return ErrLedgerSealed
	}
	e.phase = phaseBuilding

	sorted := make([]dataset.Reception, len(receptions))
	copy(sorted, receptions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	for _, rec := range sorted {
		if rec.Units <= 0 {
			continue
		}
		cost := e.resolveCost(rec)
		lot := &Lot{
			ID:          uuid.NewString(),
			ProductCode: rec.ProductCode,
			EntryDate:   rec.Date,
			Initial:     rec.Units,
			Available:   rec.Units,
			UnitCost:    cost,
			OriginRef:   fmt.Sprintf("RECEPTION-%d", rec.Number),
			Supplier:    rec.Supplier,
		}
		e.ledger.Append(lot)
	}
	return nil
}

// resolveCost applies the cost fallback chain for one reception: explicit
// cost, then a purchase for the same product within the match window, then
// the catalog default. When everything fails it records a NO_COST warning
// and returns zero so lot creation can proceed.
func (e *Engine) resolveCost(rec dataset.Reception) float64 {
	if rec.UnitCost != nil {
		return *rec.UnitCost
	}
	if p, ok := e.catalog.MatchPurchase(rec.ProductCode, rec.Date); ok {
		return p.TotalAmount / p.Units
	}
	if cost, ok := e.catalog.DefaultUnitCost(rec.ProductCode); ok {
		return cost
	}
	e.warnings = append(e.warnings, Warning{
		Kind:        WarningNoCost,
		ProductCode: rec.ProductCode,
		Product:     rec.Name,
		Message:     "reception has no determinable unit cost",
		Date:        rec.Date,
		Ref:         fmt.Sprintf("RECEPTION-%d", rec.Number),
	})
	e.logger.Warn("reception without cost", slog.Int64("product_code", rec.ProductCode), slog.Int64("reception", rec.Number))
	return 0
}

// consume walks the product's lots in FIFO order and draws the requested
// quantity, emitting one consumption record per lot touched. When stock is
// insufficient it records a NEGATIVE_STOCK warning and emits a single
// virtual record for the shortfall, costed at the mean unit cost across
// all of the product's lots.
func (e *Engine) consume(code int64, qty float64, date time.Time, kind OutgoingKind, ref string) float64 {
	remaining := math.Abs(qty)
	var total float64

	for _, lot := range e.ledger.forConsumption(code) {
		if remaining <= 0 {
			break
		}
		if lot.Available <= 0 {
			continue
		}
		drawn := math.Min(lot.Available, remaining)
		cost := drawn * lot.UnitCost
		lot.Available -= drawn
		remaining -= drawn
		total += cost

		e.consumptions = append(e.consumptions, Consumption{
			ID:          uuid.NewString(),
			LotID:       lot.ID,
			ProductCode: code,
			Date:        date,
			Qty:         drawn,
			UnitCost:    lot.UnitCost,
			TotalCost:   cost,
			Kind:        kind,
			Ref:         ref,
		})
	}

	if remaining > 0 {
		label := e.catalog.ProductLabel(code, fmt.Sprintf("product %d", code))
		e.warnings = append(e.warnings, Warning{
			Kind:        WarningNegativeStock,
			ProductCode: code,
			Product:     label,
			Message:     fmt.Sprintf("insufficient stock: %g units short", remaining),
			Date:        date,
			Ref:         ref,
		})
		e.logger.Warn("insufficient stock", slog.Int64("product_code", code), slog.Float64("short", remaining), slog.String("ref", ref))

		mean := e.ledger.meanUnitCost(code)
		total += remaining * mean
		e.consumptions = append(e.consumptions, Consumption{
			ID:          uuid.NewString(),
			LotID:       VirtualLotRef,
			ProductCode: code,
			Date:        date,
			Qty:         remaining,
			UnitCost:    mean,
			TotalCost:   remaining * mean,
			Kind:        kind,
			Ref:         ref,
		})
	}

	return total
}

// ConsumeShrinkage processes shrinkage records in global chronological
// order and returns them decorated with their FIFO cost.
func (e *Engine) ConsumeShrinkage(records []dataset.Shrinkage) ([]dataset.Shrinkage, error) {
	if err := e.startConsuming(); err != nil {
		return nil, err
	}

	sorted := make([]dataset.Shrinkage, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	out := make([]dataset.Shrinkage, 0, len(sorted))
	for _, rec := range sorted {
		if rec.Qty > 0 {
			rec.FIFOCost = e.consume(rec.ProductCode, rec.Qty, rec.Date, KindShrinkage, fmt.Sprintf("SHRINKAGE-%s", rec.ID))
		}
		out = append(out, rec)
	}
	return out, nil
}

// ConsumeSales processes sale items in caller order and returns them
// decorated with FIFO cost and gross margin. Chronological ordering across
// sale batches is the caller's responsibility; items are not re-sorted
// here so allocation matches the order the caller established.
func (e *Engine) ConsumeSales(items []dataset.SaleItem) ([]dataset.SaleItem, error) {
	if err := e.startConsuming(); err != nil {
		return nil, err
	}

	out := make([]dataset.SaleItem, 0, len(items))
	for _, item := range items {
		qty := item.TotalUnits
		if qty <= 0 {
			qty = math.Abs(item.Qty)
		}
		if qty <= 0 {
			item.FIFOCost = 0
			item.GrossMargin = 0
			out = append(out, item)
			continue
		}

		cost := e.consume(item.ProductCode, qty, item.Date, KindSale, fmt.Sprintf("SALE-%s", item.ID))
		item.FIFOCost = cost
		item.GrossMargin = item.Price*math.Abs(item.Qty) - cost
		out = append(out, item)
	}
	return out, nil
}

func (e *Engine) startConsuming() error {
	switch e.phase {
	case phaseNew:
		return ErrNotBuilt
	case phaseBuilding:
		e.phase = phaseConsuming
	}
	return nil
}

// State returns a full audit snapshot: copies of every lot, the
// consumption trail, and the warning log in insertion order.
func (e *Engine) State() State {
	consumptions := make([]Consumption, len(e.consumptions))
	copy(consumptions, e.consumptions)
	warnings := make([]Warning, len(e.warnings))
	copy(warnings, e.warnings)
	return State{
		Lots:         e.ledger.All(),
		Consumptions: consumptions,
		Warnings:     warnings,
	}
}

// InventoryValue sums available stock value in total and per product.
func (e *Engine) InventoryValue() InventoryValue {
	return e.ledger.InventoryValue()
}

// COGS sums total cost across sale-kind consumption records.
func (e *Engine) COGS() float64 {
	return e.costByKind(KindSale)
}

// ShrinkageCost sums total cost across shrinkage-kind consumption records.
func (e *Engine) ShrinkageCost() float64 {
	return e.costByKind(KindShrinkage)
}

func (e *Engine) costByKind(kind OutgoingKind) float64 {
	var total float64
	for _, c := range e.consumptions {
		if c.Kind == kind {
			total += c.TotalCost
		}
	}
	return total
}

// Explain returns the audit drill-down for one product, reflecting live
// engine state at call time.
func (e *Engine) Explain(code int64) ProductExplain {
	var consumptions []Consumption
	for _, c := range e.consumptions {
		if c.ProductCode == code {
			consumptions = append(consumptions, c)
		}
	}
	stock := e.ledger.Stock(code)
	return ProductExplain{
		ProductCode:  code,
		Lots:         e.ledger.Product(code),
		Consumptions: consumptions,
		CurrentStock: stock.Qty,
		CurrentValue: stock.Value,
	}
}

// ActiveLots counts lots that still have available stock.
func (e *Engine) ActiveLots() int {
	return e.ledger.ActiveLots()
}

// Warnings returns a copy of the warning log in insertion order.
func (e *Engine) Warnings() []Warning {
	out := make([]Warning, len(e.warnings))
	copy(out, e.warnings)
	return out
}
