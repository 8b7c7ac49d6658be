// Package dataset defines the normalized records produced by workbook
// ingestion and consumed by the FIFO engine and the analytics rollups.
package dataset

import "time"

// Product is a catalog entry. Reference data, never mutated downstream.
type Product struct {
	Code         int64    `json:"code" validate:"required"`
	Class        string   `json:"class,omitempty"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Unit         string   `json:"unit"`
	BoxFactor    *float64 `json:"box_factor,omitempty"`
	PalletFactor *float64 `json:"pallet_factor,omitempty"`
	UnitCost     *float64 `json:"unit_cost,omitempty"`
	ListPrice    *float64 `json:"list_price,omitempty"`
}

// Label returns a human readable identifier used in warning messages.
func (p Product) Label() string {
	if p.Description != "" {
		return p.Description
	}
	return p.Name
}

// Purchase is a procurement record used only for cost resolution.
type Purchase struct {
	ID          string    `json:"id"`
	Number      int64     `json:"number" validate:"required"`
	Date        time.Time `json:"date" validate:"required"`
	Supplier    string    `json:"supplier"`
	ProductCode int64     `json:"product_code" validate:"required"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UnitPrice   float64   `json:"unit_price"`
	Currency    string    `json:"currency"`
	Qty         float64   `json:"qty"`
	Packaging   string    `json:"packaging"`
	TotalAmount float64   `json:"total_amount"`
	Rate        *float64  `json:"rate,omitempty"`
	Units       float64   `json:"units"`
}

// Reception is a physical stock-in event. Each reception with positive
// units produces exactly one FIFO lot.
type Reception struct {
	ID             string    `json:"id"`
	Number         int64     `json:"number" validate:"required"`
	Date           time.Time `json:"date" validate:"required"`
	Supplier       string    `json:"supplier"`
	ProductCode    int64     `json:"product_code" validate:"required"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Qty            float64   `json:"qty"`
	Packaging      string    `json:"packaging"`
	Units          float64   `json:"units"`
	PurchaseNumber *int64    `json:"purchase_number,omitempty"`
	UnitCost       *float64  `json:"unit_cost,omitempty"`
}

// Sale is an invoice header. Payments are accumulated per currency across
// all of the invoice's lines during parsing.
type Sale struct {
	ID          string    `json:"id"`
	Invoice     string    `json:"invoice,omitempty"`
	Date        time.Time `json:"date"`
	Entity      string    `json:"entity,omitempty"`
	Customer    string    `json:"customer,omitempty"`
	Manager     string    `json:"manager,omitempty"`
	Commission  float64   `json:"commission"`
	USD         float64   `json:"usd"`
	USDRate     *float64  `json:"usd_rate,omitempty"`
	EUR         float64   `json:"eur"`
	EURRate     *float64  `json:"eur_rate,omitempty"`
	CUPTransfer float64   `json:"cup_transfer"`
	CUPCash     float64   `json:"cup_cash"`
	TotalCUP    float64   `json:"total_cup"`
}

// SaleItem is one invoice line. FIFOCost and GrossMargin are attached by
// the engine during consumption; they are zero until then.
type SaleItem struct {
	ID          string    `json:"id"`
	SaleID      string    `json:"sale_id"`
	Date        time.Time `json:"date"`
	ProductCode int64     `json:"product_code" validate:"required"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Qty         float64   `json:"qty"`
	Unit        string    `json:"unit"`
	Price       float64   `json:"price"`
	TotalUnits  float64   `json:"total_units"`
	FIFOCost    float64   `json:"fifo_cost"`
	GrossMargin float64   `json:"gross_margin"`
}

// Shrinkage is an inventory loss event. Qty is normalized to a positive
// magnitude during parsing. FIFOCost is attached by the engine.
type Shrinkage struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date" validate:"required"`
	Entity      string    `json:"entity"`
	ProductCode int64     `json:"product_code" validate:"required"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Qty         float64   `json:"qty"`
	Unit        string    `json:"unit"`
	FIFOCost    float64   `json:"fifo_cost"`
}

// Expense is an operating expense line.
type Expense struct {
	ID          string    `json:"id"`
	Number      int64     `json:"number" validate:"required"`
	Date        time.Time `json:"date" validate:"required"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
}

// Withdrawal is a shareholder withdrawal.
type Withdrawal struct {
	ID          string    `json:"id"`
	Number      int64     `json:"number" validate:"required"`
	Date        time.Time `json:"date" validate:"required"`
	Shareholder string    `json:"shareholder"`
	Currency    string    `json:"currency"`
	Amount      float64   `json:"amount"`
	Rate        float64   `json:"rate"`
	AmountUSD   float64   `json:"amount_usd"`
}

// ParseIssue records a row the parser could not normalize. Issues never
// abort ingestion; callers surface them alongside the result.
type ParseIssue struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// Dataset is one fully parsed workbook.
type Dataset struct {
	Products    []Product    `json:"products"`
	Sales       []Sale       `json:"sales"`
	SaleItems   []SaleItem   `json:"sale_items"`
	Purchases   []Purchase   `json:"purchases"`
	Receptions  []Reception  `json:"receptions"`
	Shrinkages  []Shrinkage  `json:"shrinkages"`
	Expenses    []Expense    `json:"expenses"`
	Withdrawals []Withdrawal `json:"withdrawals"`
	Sheets      []string     `json:"sheets"`
	Issues      []ParseIssue `json:"issues"`
}
