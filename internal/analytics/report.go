// Package analytics computes the dashboard report over one processed
// workbook: sales and payment totals, FIFO-costed margins, inventory
// value, shrinkage, and per-period, per-entity and per-product rollups.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/costwise/costwise/internal/dataset"
	"github.com/costwise/costwise/internal/fifo"
	"github.com/costwise/costwise/internal/fx"
)

// Filter narrows a report to a date window, one entity, or one product.
// Zero values mean "no restriction".
type Filter struct {
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	Entity      string     `json:"entity,omitempty"`
	ProductCode int64      `json:"product_code,omitempty"`
}

func (f Filter) matchDate(d time.Time) bool {
	if f.From != nil && d.Before(*f.From) {
		return false
	}
	if f.To != nil && d.After(*f.To) {
		return false
	}
	return true
}

func (f Filter) matchProduct(code int64) bool {
	return f.ProductCode == 0 || f.ProductCode == code
}

// PeriodRow aggregates one calendar month.
type PeriodRow struct {
	Period    string  `json:"period"`
	SalesCUP  float64 `json:"sales_cup"`
	COGSUSD   float64 `json:"cogs_usd"`
	Units     float64 `json:"units"`
	SaleCount int     `json:"sale_count"`
}

// EntityRow aggregates one selling entity.
type EntityRow struct {
	Entity    string  `json:"entity"`
	SalesCUP  float64 `json:"sales_cup"`
	Units     float64 `json:"units"`
	SaleCount int     `json:"sale_count"`
}

// ProductRow aggregates one product across sales and shrinkage.
type ProductRow struct {
	ProductCode      int64   `json:"product_code"`
	Name             string  `json:"name"`
	Units            float64 `json:"units"`
	SalesCUP         float64 `json:"sales_cup"`
	COGSUSD          float64 `json:"cogs_usd"`
	MarginUSD        float64 `json:"margin_usd"`
	ShrinkageUnits   float64 `json:"shrinkage_units"`
	ShrinkageCostUSD float64 `json:"shrinkage_cost_usd"`
}

// PaymentBreakdown sums invoice payments per method.
type PaymentBreakdown struct {
	USD         float64 `json:"usd"`
	EUR         float64 `json:"eur"`
	CUPCash     float64 `json:"cup_cash"`
	CUPTransfer float64 `json:"cup_transfer"`
	TotalCUP    float64 `json:"total_cup"`
}

// WarningSummary counts engine warnings by kind.
type WarningSummary struct {
	NegativeStock int `json:"negative_stock"`
	NoCost        int `json:"no_cost"`
	Total         int `json:"total"`
}

// RecordCounts reports how many records of each kind were parsed.
type RecordCounts struct {
	Products    int `json:"products"`
	Sales       int `json:"sales"`
	SaleItems   int `json:"sale_items"`
	Purchases   int `json:"purchases"`
	Receptions  int `json:"receptions"`
	Shrinkages  int `json:"shrinkages"`
	Expenses    int `json:"expenses"`
	Withdrawals int `json:"withdrawals"`
	Issues      int `json:"issues"`
}

// DateRange spans the earliest and latest outgoing movement dates.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Report is the full dashboard payload for one analysis.
type Report struct {
	GeneratedAt   time.Time `json:"generated_at"`
	RateCUPPerUSD float64   `json:"rate_cup_per_usd"`

	SalesTotalCUP float64          `json:"sales_total_cup"`
	SalesTotalUSD float64          `json:"sales_total_usd"`
	SaleCount     int              `json:"sale_count"`
	AvgTicketCUP  float64          `json:"avg_ticket_cup"`
	Payments      PaymentBreakdown `json:"payments"`

	PurchasesTotalUSD   float64 `json:"purchases_total_usd"`
	COGSUSD             float64 `json:"cogs_usd"`
	GrossMarginUSD      float64 `json:"gross_margin_usd"`
	GrossMarginPct      float64 `json:"gross_margin_pct"`
	InventoryValueUSD   float64 `json:"inventory_value_usd"`
	ShrinkageUnits      float64 `json:"shrinkage_units"`
	ShrinkageCostUSD    float64 `json:"shrinkage_cost_usd"`
	ExpensesTotalCUP    float64 `json:"expenses_total_cup"`
	WithdrawalsTotalUSD float64 `json:"withdrawals_total_usd"`

	ByPeriod  []PeriodRow  `json:"by_period"`
	ByEntity  []EntityRow  `json:"by_entity"`
	ByProduct []ProductRow `json:"by_product"`

	TopSales     []ProductRow `json:"top_sales"`
	TopShrinkage []ProductRow `json:"top_shrinkage"`

	Warnings              WarningSummary `json:"warnings"`
	ActiveLots            int            `json:"active_lots"`
	NegativeStockProducts []int64        `json:"negative_stock_products"`
	Range                 *DateRange     `json:"range,omitempty"`
	Counts                RecordCounts   `json:"counts"`
}

// Inputs carries everything the report derives from: the parsed dataset
// plus engine output. Items and Shrinkage are the engine-decorated copies,
// never the raw parsed ones.
type Inputs struct {
	Dataset    *dataset.Dataset
	Items      []dataset.SaleItem
	Shrinkage  []dataset.Shrinkage
	Inventory  fifo.InventoryValue
	Warnings   []fifo.Warning
	ActiveLots int
}

// Compute builds the report. Pure function of its inputs except for the
// GeneratedAt stamp.
func Compute(in Inputs, conv fx.Converter, filter Filter) *Report {
	r := &Report{
		GeneratedAt:       time.Now().UTC(),
		RateCUPPerUSD:     conv.Rate(),
		ActiveLots:        in.ActiveLots,
		InventoryValueUSD: in.Inventory.Total,
	}
	if in.Dataset != nil {
		r.Counts = RecordCounts{
			Products:    len(in.Dataset.Products),
			Sales:       len(in.Dataset.Sales),
			SaleItems:   len(in.Dataset.SaleItems),
			Purchases:   len(in.Dataset.Purchases),
			Receptions:  len(in.Dataset.Receptions),
			Shrinkages:  len(in.Dataset.Shrinkages),
			Expenses:    len(in.Dataset.Expenses),
			Withdrawals: len(in.Dataset.Withdrawals),
			Issues:      len(in.Dataset.Issues),
		}
	}

	saleByID := make(map[string]dataset.Sale)
	if in.Dataset != nil {
		for _, s := range in.Dataset.Sales {
			saleByID[s.ID] = s
		}
	}

	countedSales := make(map[string]bool)
	periods := make(map[string]*PeriodRow)
	entities := make(map[string]*EntityRow)
	products := make(map[int64]*ProductRow)
	periodSales := make(map[string]map[string]bool)
	entitySales := make(map[string]map[string]bool)
	var minDate, maxDate time.Time

	track := func(d time.Time) {
		if minDate.IsZero() || d.Before(minDate) {
			minDate = d
		}
		if maxDate.IsZero() || d.After(maxDate) {
			maxDate = d
		}
	}
	productRow := func(code int64, name string) *ProductRow {
		row, ok := products[code]
		if !ok {
			row = &ProductRow{ProductCode: code, Name: name}
			products[code] = row
		}
		if row.Name == "" {
			row.Name = name
		}
		return row
	}

	for _, item := range in.Items {
		sale, hasSale := saleByID[item.SaleID]
		if !filter.matchDate(item.Date) || !filter.matchProduct(item.ProductCode) {
			continue
		}
		if filter.Entity != "" && (!hasSale || sale.Entity != filter.Entity) {
			continue
		}
		track(item.Date)

		revenue := item.Price * math.Abs(item.Qty)
		if item.Qty < 0 {
			revenue = -revenue
		}
		units := item.TotalUnits
		r.SalesTotalCUP += revenue
		r.COGSUSD += item.FIFOCost

		period := item.Date.Format("2006-01")
		pr, ok := periods[period]
		if !ok {
			pr = &PeriodRow{Period: period}
			periods[period] = pr
			periodSales[period] = make(map[string]bool)
		}
		pr.SalesCUP += revenue
		pr.COGSUSD += item.FIFOCost
		pr.Units += units
		if hasSale && !periodSales[period][sale.ID] {
			periodSales[period][sale.ID] = true
			pr.SaleCount++
		}

		if hasSale {
			entity := sale.Entity
			if entity == "" {
				entity = "Sin entidad"
			}
			er, ok := entities[entity]
			if !ok {
				er = &EntityRow{Entity: entity}
				entities[entity] = er
				entitySales[entity] = make(map[string]bool)
			}
			er.SalesCUP += revenue
			er.Units += units
			if !entitySales[entity][sale.ID] {
				entitySales[entity][sale.ID] = true
				er.SaleCount++
			}

			if !countedSales[sale.ID] {
				countedSales[sale.ID] = true
				r.SaleCount++
				r.Payments.USD += sale.USD
				r.Payments.EUR += sale.EUR
				r.Payments.CUPCash += sale.CUPCash
				r.Payments.CUPTransfer += sale.CUPTransfer
				r.Payments.TotalCUP += sale.TotalCUP
			}
		}

		row := productRow(item.ProductCode, label(item.Description, item.Name))
		row.Units += units
		row.SalesCUP += revenue
		row.COGSUSD += item.FIFOCost
	}

	for _, rec := range in.Shrinkage {
		if !filter.matchDate(rec.Date) || !filter.matchProduct(rec.ProductCode) {
			continue
		}
		if filter.Entity != "" && rec.Entity != filter.Entity {
			continue
		}
		track(rec.Date)
		r.ShrinkageUnits += rec.Qty
		r.ShrinkageCostUSD += rec.FIFOCost
		row := productRow(rec.ProductCode, label(rec.Description, rec.Name))
		row.ShrinkageUnits += rec.Qty
		row.ShrinkageCostUSD += rec.FIFOCost
	}

	if in.Dataset != nil {
		for _, p := range in.Dataset.Purchases {
			if filter.matchDate(p.Date) && filter.matchProduct(p.ProductCode) {
				r.PurchasesTotalUSD += p.TotalAmount
			}
		}
		for _, e := range in.Dataset.Expenses {
			if !filter.matchDate(e.Date) {
				continue
			}
			if e.Currency == "USD" {
				r.ExpensesTotalCUP += e.Amount * conv.Rate()
			} else {
				r.ExpensesTotalCUP += e.Amount
			}
		}
		for _, w := range in.Dataset.Withdrawals {
			if filter.matchDate(w.Date) {
				r.WithdrawalsTotalUSD += w.AmountUSD
			}
		}
	}

	negative := make(map[int64]bool)
	for _, w := range in.Warnings {
		r.Warnings.Total++
		switch w.Kind {
		case fifo.WarningNegativeStock:
			r.Warnings.NegativeStock++
			negative[w.ProductCode] = true
		case fifo.WarningNoCost:
			r.Warnings.NoCost++
		}
	}
	for code := range negative {
		r.NegativeStockProducts = append(r.NegativeStockProducts, code)
	}
	sort.Slice(r.NegativeStockProducts, func(i, j int) bool {
		return r.NegativeStockProducts[i] < r.NegativeStockProducts[j]
	})

	r.SalesTotalUSD = conv.CUPToUSD(r.SalesTotalCUP)
	r.GrossMarginUSD = conv.MarginUSD(r.SalesTotalCUP, r.COGSUSD)
	r.GrossMarginPct = conv.MarginPct(r.SalesTotalCUP, r.COGSUSD)
	if r.SaleCount > 0 {
		r.AvgTicketCUP = r.SalesTotalCUP / float64(r.SaleCount)
	}
	if !minDate.IsZero() {
		r.Range = &DateRange{From: minDate, To: maxDate}
	}

	for _, pr := range periods {
		r.ByPeriod = append(r.ByPeriod, *pr)
	}
	sort.Slice(r.ByPeriod, func(i, j int) bool { return r.ByPeriod[i].Period < r.ByPeriod[j].Period })

	for _, er := range entities {
		r.ByEntity = append(r.ByEntity, *er)
	}
	sort.Slice(r.ByEntity, func(i, j int) bool {
		if r.ByEntity[i].SalesCUP != r.ByEntity[j].SalesCUP {
			return r.ByEntity[i].SalesCUP > r.ByEntity[j].SalesCUP
		}
		return r.ByEntity[i].Entity < r.ByEntity[j].Entity
	})

	for _, row := range products {
		row.MarginUSD = conv.MarginUSD(row.SalesCUP, row.COGSUSD)
		r.ByProduct = append(r.ByProduct, *row)
	}
	sort.Slice(r.ByProduct, func(i, j int) bool { return r.ByProduct[i].ProductCode < r.ByProduct[j].ProductCode })

	r.TopSales = topBy(r.ByProduct, func(p ProductRow) float64 { return p.SalesCUP })
	r.TopShrinkage = topBy(r.ByProduct, func(p ProductRow) float64 { return p.ShrinkageCostUSD })

	return r
}

func label(description, name string) string {
	if description != "" {
		return description
	}
	return name
}

// topBy returns the ten largest rows by the given measure, skipping rows
// where the measure is zero or negative.
func topBy(rows []ProductRow, measure func(ProductRow) float64) []ProductRow {
	filtered := make([]ProductRow, 0, len(rows))
	for _, row := range rows {
		if measure(row) > 0 {
			filtered = append(filtered, row)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return measure(filtered[i]) > measure(filtered[j]) })
	if len(filtered) > 10 {
		filtered = filtered[:10]
	}
	return filtered
}
