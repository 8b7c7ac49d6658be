package fifo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/costwise/costwise/internal/catalog"
	"github.com/costwise/costwise/internal/dataset"
)

func day(n int) time.Time {
	return time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func ptr(v float64) *float64 { return &v }

func newEngine(products []dataset.Product, purchases []dataset.Purchase) *Engine {
	return NewEngine(catalog.NewIndex(products, purchases), nil)
}

// twoLotEngine ingests lots [10 @ 2, 5 @ 3] for product 1 in date order.
func twoLotEngine(t *testing.T) *Engine {
	t.Helper()
	eng := newEngine(nil, nil)
	err := eng.IngestReceptions([]dataset.Reception{
		{Number: 1, Date: day(0), ProductCode: 1, Units: 10, UnitCost: ptr(2)},
		{Number: 2, Date: day(1), ProductCode: 1, Units: 5, UnitCost: ptr(3)},
	})
	require.NoError(t, err)
	return eng
}

func TestConsumeAcrossLotBoundary(t *testing.T) {
	eng := twoLotEngine(t)

	out, err := eng.ConsumeSales([]dataset.SaleItem{
		{ID: "s1", Date: day(2), ProductCode: 1, Qty: 12, TotalUnits: 12, Price: 5},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.InDelta(t, 26.0, out[0].FIFOCost, 1e-9)
	require.InDelta(t, 5*12-26.0, out[0].GrossMargin, 1e-9)

	state := eng.State()
	require.Len(t, state.Consumptions, 2)
	require.InDelta(t, 10, state.Consumptions[0].Qty, 1e-9)
	require.InDelta(t, 2, state.Consumptions[0].UnitCost, 1e-9)
	require.InDelta(t, 2, state.Consumptions[1].Qty, 1e-9)
	require.InDelta(t, 3, state.Consumptions[1].UnitCost, 1e-9)
	require.Empty(t, state.Warnings)

	require.InDelta(t, 0, state.Lots[0].Available, 1e-9)
	require.InDelta(t, 3, state.Lots[1].Available, 1e-9)
}

func TestConsumeBeyondStockEmitsSentinel(t *testing.T) {
	eng := twoLotEngine(t)

	out, err := eng.ConsumeSales([]dataset.SaleItem{
		{ID: "s1", Date: day(2), ProductCode: 1, Qty: 20, TotalUnits: 20},
	})
	require.NoError(t, err)
	require.InDelta(t, 47.5, out[0].FIFOCost, 1e-9)

	state := eng.State()
	require.Len(t, state.Consumptions, 3)

	sentinel := state.Consumptions[2]
	require.Equal(t, VirtualLotRef, sentinel.LotID)
	require.True(t, sentinel.Virtual())
	require.InDelta(t, 5, sentinel.Qty, 1e-9)
	require.InDelta(t, 2.5, sentinel.UnitCost, 1e-9)
	require.InDelta(t, 12.5, sentinel.TotalCost, 1e-9)

	require.Len(t, state.Warnings, 1)
	require.Equal(t, WarningNegativeStock, state.Warnings[0].Kind)
}

func TestConsumeUnknownProduct(t *testing.T) {
	eng := newEngine(nil, nil)
	require.NoError(t, eng.IngestReceptions(nil))

	out, err := eng.ConsumeShrinkage([]dataset.Shrinkage{
		{ID: "m1", Date: day(0), ProductCode: 99, Qty: 3},
	})
	require.NoError(t, err)
	// No lots at all: the sentinel record is costed at zero.
	require.InDelta(t, 0, out[0].FIFOCost, 1e-9)

	state := eng.State()
	require.Len(t, state.Consumptions, 1)
	require.Equal(t, VirtualLotRef, state.Consumptions[0].LotID)
	require.InDelta(t, 0, state.Consumptions[0].UnitCost, 1e-9)
	require.Len(t, state.Warnings, 1)
}

func TestCostResolutionChain(t *testing.T) {
	products := []dataset.Product{
		{Code: 1, Name: "Cola", Description: "Cola 355ml", UnitCost: ptr(9)},
		{Code: 2, Name: "Beer"},
	}
	purchases := []dataset.Purchase{
		{Number: 7, Date: day(5), ProductCode: 2, TotalAmount: 100, Units: 50},
	}
	eng := newEngine(products, purchases)

	err := eng.IngestReceptions([]dataset.Reception{
		// Explicit cost wins over everything.
		{Number: 1, Date: day(0), ProductCode: 1, Units: 5, UnitCost: ptr(4)},
		// Purchase within the 7-day window: 100 / 50 = 2.0.
		{Number: 2, Date: day(0), ProductCode: 2, Units: 5},
		// Catalog default cost.
		{Number: 3, Date: day(20), ProductCode: 1, Units: 5},
		// Nothing resolves: cost 0 plus a NO_COST warning.
		{Number: 4, Date: day(20), ProductCode: 2, Units: 5, Name: "Beer"},
	})
	require.NoError(t, err)

	state := eng.State()
	require.Len(t, state.Lots, 4)

	costs := map[string]float64{}
	for _, lot := range state.Lots {
		costs[lot.OriginRef] = lot.UnitCost
	}
	require.InDelta(t, 4.0, costs["RECEPTION-1"], 1e-9)
	require.InDelta(t, 2.0, costs["RECEPTION-2"], 1e-9)
	require.InDelta(t, 9.0, costs["RECEPTION-3"], 1e-9)
	require.InDelta(t, 0.0, costs["RECEPTION-4"], 1e-9)

	require.Len(t, state.Warnings, 1)
	require.Equal(t, WarningNoCost, state.Warnings[0].Kind)
	require.Equal(t, "RECEPTION-4", state.Warnings[0].Ref)
}

func TestNonPositiveReceptionsSkipped(t *testing.T) {
	eng := newEngine(nil, nil)
	err := eng.IngestReceptions([]dataset.Reception{
		{Number: 1, Date: day(0), ProductCode: 1, Units: 0, UnitCost: ptr(1)},
		{Number: 2, Date: day(0), ProductCode: 1, Units: -4, UnitCost: ptr(1)},
	})
	require.NoError(t, err)
	require.Empty(t, eng.State().Lots)
	require.Empty(t, eng.State().Warnings)
}

func TestPhaseGuards(t *testing.T) {
	eng := newEngine(nil, nil)

	_, err := eng.ConsumeSales([]dataset.SaleItem{{ID: "s1", ProductCode: 1, Qty: 1, TotalUnits: 1}})
	require.ErrorIs(t, err, ErrNotBuilt)

	require.NoError(t, eng.IngestReceptions([]dataset.Reception{
		{Number: 1, Date: day(0), ProductCode: 1, Units: 1, UnitCost: ptr(1)},
	}))
	_, err = eng.ConsumeSales(nil)
	require.NoError(t, err)

	err = eng.IngestReceptions([]dataset.Reception{
		{Number: 2, Date: day(1), ProductCode: 1, Units: 1, UnitCost: ptr(1)},
	})
	require.ErrorIs(t, err, ErrLedgerSealed)
}

func TestShrinkageSortedByDate(t *testing.T) {
	eng := newEngine(nil, nil)
	require.NoError(t, eng.IngestReceptions([]dataset.Reception{
		{Number: 1, Date: day(0), ProductCode: 1, Units: 10, UnitCost: ptr(2)},
	}))

	out, err := eng.ConsumeShrinkage([]dataset.Shrinkage{
		{ID: "late", Date: day(5), ProductCode: 1, Qty: 4},
		{ID: "early", Date: day(1), ProductCode: 1, Qty: 6},
	})
	require.NoError(t, err)
	require.Equal(t, "early", out[0].ID)
	require.Equal(t, "late", out[1].ID)

	state := eng.State()
	require.Equal(t, "SHRINKAGE-early", state.Consumptions[0].Ref)
	require.InDelta(t, 20.0, eng.ShrinkageCost(), 1e-9)
}

func TestSaleQuantityFallbacks(t *testing.T) {
	eng := newEngine(nil, nil)
	require.NoError(t, eng.IngestReceptions([]dataset.Reception{
		{Number: 1, Date: day(0), ProductCode: 1, Units: 10, UnitCost: ptr(2)},
	}))

	out, err := eng.ConsumeSales([]dataset.SaleItem{
		// TotalUnits missing: falls back to |Qty|.
		{ID: "a", Date: day(1), ProductCode: 1, Qty: -3, Price: 10},
		// Nothing positive: skipped with zero cost and margin.
		{ID: "b", Date: day(1), ProductCode: 1, Qty: 0},
	})
	require.NoError(t, err)
	require.InDelta(t, 6.0, out[0].FIFOCost, 1e-9)
	require.InDelta(t, 10*3-6.0, out[0].GrossMargin, 1e-9)
	require.InDelta(t, 0, out[1].FIFOCost, 1e-9)
	require.InDelta(t, 0, out[1].GrossMargin, 1e-9)

	require.Len(t, eng.State().Consumptions, 1)
}

func TestAggregatesAndIdempotence(t *testing.T) {
	eng := twoLotEngine(t)

	_, err := eng.ConsumeShrinkage([]dataset.Shrinkage{
		{ID: "m1", Date: day(2), ProductCode: 1, Qty: 2},
	})
	require.NoError(t, err)
	_, err = eng.ConsumeSales([]dataset.SaleItem{
		{ID: "s1", Date: day(3), ProductCode: 1, Qty: 4, TotalUnits: 4, Price: 10},
	})
	require.NoError(t, err)

	// 2 @ 2 shrinkage, then 4 @ 2 sale.
	require.InDelta(t, 4.0, eng.ShrinkageCost(), 1e-9)
	require.InDelta(t, 8.0, eng.COGS(), 1e-9)

	var saleCost float64
	for _, c := range eng.State().Consumptions {
		if c.Kind == KindSale {
			saleCost += c.TotalCost
		}
	}
	require.InDelta(t, saleCost, eng.COGS(), 1e-9)

	first := eng.InventoryValue()
	second := eng.InventoryValue()
	require.InDelta(t, first.Total, second.Total, 1e-9)
	require.Equal(t, first.ByProduct, second.ByProduct)

	// 4 left @ 2 plus 5 @ 3.
	require.InDelta(t, 4*2+5*3, first.Total, 1e-9)
}

func TestInventoryValueExcludesDepletedProducts(t *testing.T) {
	eng := newEngine(nil, nil)
	require.NoError(t, eng.IngestReceptions([]dataset.Reception{
		{Number: 1, Date: day(0), ProductCode: 1, Units: 5, UnitCost: ptr(2)},
		{Number: 2, Date: day(0), ProductCode: 2, Units: 3, UnitCost: ptr(4)},
	}))
	_, err := eng.ConsumeSales([]dataset.SaleItem{
		{ID: "s1", Date: day(1), ProductCode: 1, Qty: 5, TotalUnits: 5},
	})
	require.NoError(t, err)

	inv := eng.InventoryValue()
	require.NotContains(t, inv.ByProduct, int64(1))
	require.Contains(t, inv.ByProduct, int64(2))
	require.InDelta(t, 12.0, inv.Total, 1e-9)
}

func TestExplainReflectsLiveState(t *testing.T) {
	eng := twoLotEngine(t)

	before := eng.Explain(1)
	require.InDelta(t, 15, before.CurrentStock, 1e-9)
	require.InDelta(t, 35, before.CurrentValue, 1e-9)
	require.Len(t, before.Lots, 2)
	require.Empty(t, before.Consumptions)

	_, err := eng.ConsumeSales([]dataset.SaleItem{
		{ID: "s1", Date: day(2), ProductCode: 1, Qty: 12, TotalUnits: 12},
	})
	require.NoError(t, err)

	after := eng.Explain(1)
	require.InDelta(t, 3, after.CurrentStock, 1e-9)
	require.InDelta(t, 9, after.CurrentValue, 1e-9)
	require.Len(t, after.Consumptions, 2)

	// Mutating the returned lots must not leak into engine state.
	after.Lots[0].Available = 999
	require.InDelta(t, 3, eng.Explain(1).CurrentStock, 1e-9)
}

func TestConsumedNeverExceedsInitial(t *testing.T) {
	eng := twoLotEngine(t)
	for i := 0; i < 6; i++ {
		_, err := eng.ConsumeSales([]dataset.SaleItem{
			{ID: "s", Date: day(2 + i), ProductCode: 1, Qty: 4, TotalUnits: 4},
		})
		require.NoError(t, err)
	}

	state := eng.State()
	byLot := map[string]float64{}
	for _, c := range state.Consumptions {
		if !c.Virtual() {
			byLot[c.LotID] += c.Qty
		}
	}
	for _, lot := range state.Lots {
		require.LessOrEqual(t, byLot[lot.ID], lot.Initial+1e-9)
		require.GreaterOrEqual(t, lot.Available, 0.0)
	}
}
