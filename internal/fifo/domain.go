// Package fifo implements First-In-First-Out inventory valuation: a
// per-product lot ledger, a consumption engine with an auditable trail,
// and aggregate queries (inventory value, COGS, shrinkage cost, explain).
package fifo

import (
	"errors"
	"time"
)

// OutgoingKind enumerates the supported outgoing movements.
type OutgoingKind string

const (
	// KindSale represents a revenue-bearing outgoing movement.
	KindSale OutgoingKind = "SALE"
	// KindShrinkage represents inventory loss (damage, theft, spoilage).
	KindShrinkage OutgoingKind = "SHRINKAGE"
	// KindAdjustment represents manual stock corrections.
	KindAdjustment OutgoingKind = "ADJUSTMENT"
)

// WarningKind enumerates data-quality warning categories.
type WarningKind string

const (
	// WarningNegativeStock is emitted when an outgoing event could not be
	// fully satisfied by available lots.
	WarningNegativeStock WarningKind = "NEGATIVE_STOCK"
	// WarningNoCost is emitted when a reception has no cost derivable
	// from any source.
	WarningNoCost WarningKind = "NO_COST"
	// WarningInconsistentDate is reserved; current logic never emits it.
	WarningInconsistentDate WarningKind = "INCONSISTENT_DATE"
)

// VirtualLotRef marks consumption records that were not funded by a real
// lot. Callers must treat records with this lot reference as approximations
// costed at mean lot cost, not true FIFO draws.
const VirtualLotRef = "VIRTUAL_NEGATIVE"

// Lot is the fundamental FIFO unit: a cost-homogeneous batch of stock
// created from one reception. Available is monotonically non-increasing
// and stays within [0, Initial]. Depleted lots remain in the ledger for
// audit purposes.
type Lot struct {
	ID          string    `json:"id"`
	ProductCode int64     `json:"product_code"`
	EntryDate   time.Time `json:"entry_date"`
	Initial     float64   `json:"initial"`
	Available   float64   `json:"available"`
	UnitCost    float64   `json:"unit_cost"`
	OriginRef   string    `json:"origin_ref"`
	Supplier    string    `json:"supplier,omitempty"`
}

// Consumption is an immutable audit entry recording one draw from a lot
// (or from the virtual negative-stock source).
type Consumption struct {
	ID          string       `json:"id"`
	LotID       string       `json:"lot_id"`
	ProductCode int64        `json:"product_code"`
	Date        time.Time    `json:"date"`
	Qty         float64      `json:"qty"`
	UnitCost    float64      `json:"unit_cost"`
	TotalCost   float64      `json:"total_cost"`
	Kind        OutgoingKind `json:"kind"`
	Ref         string       `json:"ref"`
}

// Virtual reports whether the record was costed from the negative-stock
// sentinel rather than a real lot.
func (c Consumption) Virtual() bool {
	return c.LotID == VirtualLotRef
}

// Warning is a non-fatal data-quality signal. Warnings are recorded in
// insertion order and never abort processing.
type Warning struct {
	Kind        WarningKind `json:"kind"`
	ProductCode int64       `json:"product_code"`
	Product     string      `json:"product"`
	Message     string      `json:"message"`
	Date        time.Time   `json:"date"`
	Ref         string      `json:"ref"`
}

// State is a full audit snapshot of the engine.
type State struct {
	Lots         []Lot         `json:"lots"`
	Consumptions []Consumption `json:"consumptions"`
	Warnings     []Warning     `json:"warnings"`
}

// ProductStock summarises available stock for one product.
type ProductStock struct {
	Qty   float64 `json:"qty"`
	Value float64 `json:"value"`
}

// InventoryValue aggregates available stock value across lots.
type InventoryValue struct {
	Total     float64                `json:"total"`
	ByProduct map[int64]ProductStock `json:"by_product"`
}

// ProductExplain is the audit drill-down for one product.
type ProductExplain struct {
	ProductCode  int64         `json:"product_code"`
	Lots         []Lot         `json:"lots"`
	Consumptions []Consumption `json:"consumptions"`
	CurrentStock float64       `json:"current_stock"`
	CurrentValue float64       `json:"current_value"`
}

// ErrNotBuilt is returned when consumption is requested before any
// receptions were ingested; FIFO ordering would be undefined.
var ErrNotBuilt = errors.New("fifo: receptions must be ingested before consumption")

// ErrLedgerSealed is returned when receptions arrive after consumption has
// started; late lots would corrupt the already-established draw order.
var ErrLedgerSealed = errors.New("fifo: ledger is sealed once consumption starts")
