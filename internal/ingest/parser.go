// Package ingest maps loosely structured spreadsheet exports to the
// normalized dataset the FIFO engine and analytics consume. Parsing is
// best effort: rows that cannot be normalized become issues, never errors.
package ingest

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/costwise/costwise/internal/dataset"
)

// Parser reads one workbook into a Dataset.
type Parser struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewParser builds a Parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ParseWorkbook parses every recognized sheet. Only an unreadable workbook
// is an error; unrecognized sheets and broken rows are skipped.
func (p *Parser) ParseWorkbook(r io.Reader) (*dataset.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ingest: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	ds := &dataset.Dataset{Sheets: f.GetSheetList()}

	if name := findSheet(f, "productos", "producto"); name != "" {
		p.parseProducts(f, name, ds)
	}
	if name := findSheet(f, "ventas", "venta"); name != "" {
		p.parseSales(f, name, ds)
	}
	if name := findSheet(f, "compra"); name != "" {
		p.parsePurchases(f, name, ds)
	}
	if name := findSheet(f, "recepcion", "recepción"); name != "" {
		p.parseReceptions(f, name, ds)
	}
	if name := findSheet(f, "deterioro", "merma"); name != "" {
		p.parseShrinkage(f, name, ds)
	}
	if name := findSheet(f, "gastos", "gasto"); name != "" {
		p.parseExpenses(f, name, ds)
	}
	if name := findSheet(f, "retiros", "retiro"); name != "" {
		p.parseWithdrawals(f, name, ds)
	}

	p.logger.Info("workbook parsed",
		slog.Int("products", len(ds.Products)),
		slog.Int("sales", len(ds.Sales)),
		slog.Int("sale_items", len(ds.SaleItems)),
		slog.Int("purchases", len(ds.Purchases)),
		slog.Int("receptions", len(ds.Receptions)),
		slog.Int("shrinkages", len(ds.Shrinkages)),
		slog.Int("issues", len(ds.Issues)),
	)
	return ds, nil
}

func (p *Parser) sheetRows(f *excelize.File, sheet string, ds *dataset.Dataset) [][]string {
	rows, err := f.GetRows(sheet)
	if err != nil {
		ds.Issues = append(ds.Issues, dataset.ParseIssue{
			Sheet: sheet, Row: 0, Column: "-", Message: "unreadable sheet: " + err.Error(),
		})
		return nil
	}
	return rows
}

func (p *Parser) check(rec any, sheet string, row int, ds *dataset.Dataset) bool {
	if err := p.validate.Struct(rec); err != nil {
		ds.Issues = append(ds.Issues, dataset.ParseIssue{
			Sheet: sheet, Row: row + 1, Column: "-", Message: err.Error(),
		})
		return false
	}
	return true
}

func (p *Parser) parseProducts(f *excelize.File, sheet string, ds *dataset.Dataset) {
	rows := p.sheetRows(f, sheet, ds)
	if rows == nil {
		return
	}
	headerRow, headers := detectHeaders(rows, []string{
		"codigo", "producto", "descripcion", "clase", "um",
		"costo", "precio", "caja", "pallet", "palet", "paquete",
	})

	colCode := columnIndex(headers, "codigo")
	colClass := columnIndex(headers, "clase")
	colName := columnIndex(headers, "producto")
	colDescription := columnIndex(headers, "descripcion")
	colUnit := columnIndex(headers, "um")
	colBox := columnIndex(headers, "caja", "x caja", "unid caja", "unidades caja")
	colPallet := columnIndex(headers, "pallet", "palet", "x pallet", "unid pallet")
	colCost := columnIndex(headers, "costo por unidad", "costo")
	colPrice := columnIndex(headers, "precio venta", "precio")

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		code, ok := parseNumber(cell(row, colCode))
		if !ok {
			continue
		}
		name := cell(row, colName)
		description := cell(row, colDescription)
		if name == "" && description == "" {
			continue
		}
		if description == "" {
			description = name
		}

		prod := dataset.Product{
			Code:        int64(code),
			Class:       cell(row, colClass),
			Name:        name,
			Description: description,
			Unit:        defaultString(cell(row, colUnit), "u"),
		}
		if v, ok := parseNumber(cell(row, colBox)); ok {
			prod.BoxFactor = &v
		}
		if v, ok := parseNumber(cell(row, colPallet)); ok {
			prod.PalletFactor = &v
		}
		if v, ok := parseNumber(cell(row, colCost)); ok {
			prod.UnitCost = &v
		}
		if v, ok := parseNumber(cell(row, colPrice)); ok {
			prod.ListPrice = &v
		}
		if p.check(prod, sheet, i, ds) {
			ds.Products = append(ds.Products, prod)
		}
	}
}

func (p *Parser) parseSales(f *excelize.File, sheet string, ds *dataset.Dataset) {
	rows := p.sheetRows(f, sheet, ds)
	if rows == nil {
		return
	}
	headerRow, headers := detectHeaders(rows, []string{
		"no", "factura", "fecha", "entidad", "codigo", "producto",
		"cantidad", "precio", "usd", "cup", "um", "unidades",
		"gestor", "comision", "importe",
	})

	colInvoice := columnIndex(headers, "factura")
	colDate := columnIndex(headers, "fecha")
	colEntity := columnIndex(headers, "entidad")
	colCustomer := columnIndex(headers, "nombre", "cliente", "apellidos")
	colCode := columnIndex(headers, "codigo")
	colName := columnIndex(headers, "producto")
	colDescription := columnIndex(headers, "descripcion")
	colQty := columnIndex(headers, "cantidad")
	colUnit := columnIndex(headers, "um")
	colManager := columnIndex(headers, "gestor")
	colCommission := columnIndex(headers, "comision", "comisión")
	colPrice := columnIndex(headers, "precio")
	colUSD := columnIndex(headers, "usd")
	colUSDRate := columnIndex(headers, "tasa usd")
	colEUR := columnIndex(headers, "euro")
	colEURRate := columnIndex(headers, "tasa euro")
	colCUPTransfer := columnIndex(headers, "cup transferencia", "transferencia")
	colCUPCash := columnIndex(headers, "cup efectivo", "efectivo")
	colTotalCUP := columnIndex(headers, "importe cup", "importe")
	colTotalUnits := columnIndex(headers, "unidades total", "total")

	sales := make(map[string]*dataset.Sale)
	var order []string

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		date, ok := parseDate(cell(row, colDate))
		if !ok {
			continue
		}
		code, ok := parseNumber(cell(row, colCode))
		if !ok {
			continue
		}
		qty, ok := parseNumber(cell(row, colQty))
		if !ok {
			continue
		}

		invoice := cell(row, colInvoice)
		entity := normalizeEntity(cell(row, colEntity))

		key := fmt.Sprintf("%s_%s_%s",
			defaultString(invoice, "SIN"),
			date.Format("2006-01-02"),
			defaultString(entity, "SIN"),
		)
		sale, exists := sales[key]
		if !exists {
			sale = &dataset.Sale{
				ID:       uuid.NewString(),
				Invoice:  invoice,
				Date:     date,
				Entity:   entity,
				Customer: cell(row, colCustomer),
				Manager:  cell(row, colManager),
			}
			sales[key] = sale
			order = append(order, key)
		}

		// Payments accumulate per line; negative amounts (refunds) cancel
		// against positive ones.
		if v, ok := parseNumber(cell(row, colUSD)); ok && v != 0 {
			sale.USD += v
			if rate, ok := parseNumber(cell(row, colUSDRate)); ok && rate != 0 {
				sale.USDRate = &rate
			}
		}
		if v, ok := parseNumber(cell(row, colEUR)); ok && v != 0 {
			sale.EUR += v
			if rate, ok := parseNumber(cell(row, colEURRate)); ok && rate != 0 {
				sale.EURRate = &rate
			}
		}
		if v, ok := parseNumber(cell(row, colCUPTransfer)); ok && v != 0 {
			sale.CUPTransfer += v
		}
		if v, ok := parseNumber(cell(row, colCUPCash)); ok && v != 0 {
			sale.CUPCash += v
		}
		if v, ok := parseNumber(cell(row, colTotalCUP)); ok && v != 0 {
			sale.TotalCUP += v
		}
		if v, ok := parseNumber(cell(row, colCommission)); ok && v != 0 {
			sale.Commission += v
		}
		if sale.Customer == "" {
			sale.Customer = cell(row, colCustomer)
		}
		if sale.Manager == "" {
			sale.Manager = cell(row, colManager)
		}

		totalUnits, ok := parseNumber(cell(row, colTotalUnits))
		if !ok || totalUnits == 0 {
			totalUnits = abs(qty)
		}
		if qty < 0 && totalUnits > 0 {
			// Refund lines keep their negative sign.
			totalUnits = -totalUnits
		}

		price, _ := parseNumber(cell(row, colPrice))
		item := dataset.SaleItem{
			ID:          uuid.NewString(),
			SaleID:      sale.ID,
			Date:        date,
			ProductCode: int64(code),
			Name:        defaultString(cell(row, colName), "Sin nombre"),
			Description: cell(row, colDescription),
			Qty:         qty,
			Unit:        defaultString(cell(row, colUnit), "u"),
			Price:       price,
			TotalUnits:  totalUnits,
		}
		if p.check(item, sheet, i, ds) {
			ds.SaleItems = append(ds.SaleItems, item)
		}
	}

	for _, key := range order {
		ds.Sales = append(ds.Sales, *sales[key])
	}
}

// parsePurchases reads the purchases sheet positionally; column layout is
// fixed in the export: number, date, supplier, code, product, description,
// price, currency, qty, packaging, amount, rate, converted amount, units.
func (p *Parser) parsePurchases(f *excelize.File, sheet string, ds *dataset.Dataset) {
	rows := p.sheetRows(f, sheet, ds)
	if rows == nil {
		return
	}
	for i := positionalDataStart(rows); i < len(rows); i++ {
		row := rows[i]
		number, ok := parseNumber(cell(row, 0))
		if !ok {
			continue
		}
		date, ok := parseDate(cell(row, 1))
		if !ok {
			continue
		}
		code, ok := parseNumber(cell(row, 3))
		if !ok {
			continue
		}
		qty, okQty := parseNumber(cell(row, 8))
		total, okTotal := parseNumber(cell(row, 10))
		if !okQty || !okTotal {
			continue
		}

		units, ok := parseNumber(cell(row, 13))
		if !ok || units == 0 {
			units = qty
		}
		unitPrice, _ := parseNumber(cell(row, 6))

		purchase := dataset.Purchase{
			ID:          uuid.NewString(),
			Number:      int64(number),
			Date:        date,
			Supplier:    defaultString(cell(row, 2), "Sin proveedor"),
			ProductCode: int64(code),
			Name:        defaultString(cell(row, 4), "Sin nombre"),
			Description: cell(row, 5),
			UnitPrice:   unitPrice,
			Currency:    defaultString(cell(row, 7), "USD"),
			Qty:         qty,
			Packaging:   defaultString(cell(row, 9), "Caja"),
			TotalAmount: total,
			Units:       units,
		}
		if rate, ok := parseNumber(cell(row, 11)); ok {
			purchase.Rate = &rate
		}
		if p.check(purchase, sheet, i, ds) {
			ds.Purchases = append(ds.Purchases, purchase)
		}
	}
}

// parseReceptions reads the receptions sheet positionally: number, date,
// supplier, code, product, description, qty, packaging, units.
func (p *Parser) parseReceptions(f *excelize.File, sheet string, ds *dataset.Dataset) {
	rows := p.sheetRows(f, sheet, ds)
	if rows == nil {
		return
	}
	for i := positionalDataStart(rows); i < len(rows); i++ {
		row := rows[i]
		number, ok := parseNumber(cell(row, 0))
		if !ok {
			continue
		}
		date, ok := parseDate(cell(row, 1))
		if !ok {
			continue
		}
		code, ok := parseNumber(cell(row, 3))
		if !ok {
			continue
		}
		qty, ok := parseNumber(cell(row, 6))
		if !ok {
			continue
		}
		units, ok := parseNumber(cell(row, 8))
		if !ok || units == 0 {
			units = qty
		}

		rec := dataset.Reception{
			ID:          uuid.NewString(),
			Number:      int64(number),
			Date:        date,
			Supplier:    defaultString(cell(row, 2), "Sin proveedor"),
			ProductCode: int64(code),
			Name:        defaultString(cell(row, 4), "Sin nombre"),
			Description: cell(row, 5),
			Qty:         qty,
			Packaging:   defaultString(cell(row, 7), "Caja"),
			Units:       units,
		}
		// Optional trailing columns: linked purchase number and explicit
		// unit cost. Most exports omit both.
		if v, ok := parseNumber(cell(row, 9)); ok {
			n := int64(v)
			rec.PurchaseNumber = &n
		}
		if v, ok := parseNumber(cell(row, 10)); ok {
			rec.UnitCost = &v
		}
		if p.check(rec, sheet, i, ds) {
			ds.Receptions = append(ds.Receptions, rec)
		}
	}
}

func (p *Parser) parseShrinkage(f *excelize.File, sheet string, ds *dataset.Dataset) {
	rows := p.sheetRows(f, sheet, ds)
	if rows == nil {
		return
	}
	headerRow, headers := detectHeaders(rows, []string{
		"fecha", "entidad", "codigo", "producto", "cantidad",
	})

	colDate := columnIndex(headers, "fecha")
	colEntity := columnIndex(headers, "entidad")
	colCode := columnIndex(headers, "codigo")
	colName := columnIndex(headers, "producto")
	colDescription := columnIndex(headers, "descripcion")
	colQty := columnIndex(headers, "cantidad")
	colUnit := columnIndex(headers, "um")

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		date, ok := parseDate(cell(row, colDate))
		if !ok {
			continue
		}
		code, ok := parseNumber(cell(row, colCode))
		if !ok {
			continue
		}
		qty, ok := parseNumber(cell(row, colQty))
		if !ok || qty == 0 {
			continue
		}

		rec := dataset.Shrinkage{
			ID:          uuid.NewString(),
			Date:        date,
			Entity:      defaultString(normalizeEntity(cell(row, colEntity)), "Sin entidad"),
			ProductCode: int64(code),
			Name:        defaultString(cell(row, colName), "Sin nombre"),
			Description: cell(row, colDescription),
			Qty:         abs(qty),
			Unit:        defaultString(cell(row, colUnit), "u"),
		}
		if p.check(rec, sheet, i, ds) {
			ds.Shrinkages = append(ds.Shrinkages, rec)
		}
	}
}

func (p *Parser) parseExpenses(f *excelize.File, sheet string, ds *dataset.Dataset) {
	rows := p.sheetRows(f, sheet, ds)
	if rows == nil {
		return
	}
	for i := positionalDataStart(rows); i < len(rows); i++ {
		row := rows[i]
		number, ok := parseNumber(cell(row, 0))
		if !ok {
			continue
		}
		date, ok := parseDate(cell(row, 1))
		if !ok {
			continue
		}
		amount, ok := parseNumber(cell(row, 4))
		if !ok {
			continue
		}

		exp := dataset.Expense{
			ID:          uuid.NewString(),
			Number:      int64(number),
			Date:        date,
			Category:    defaultString(cell(row, 2), "Otros"),
			Description: defaultString(cell(row, 3), "Sin descripción"),
			Amount:      amount,
			Currency:    defaultString(cell(row, 5), "CUP"),
		}
		if p.check(exp, sheet, i, ds) {
			ds.Expenses = append(ds.Expenses, exp)
		}
	}
}

func (p *Parser) parseWithdrawals(f *excelize.File, sheet string, ds *dataset.Dataset) {
	rows := p.sheetRows(f, sheet, ds)
	if rows == nil {
		return
	}
	headerRow, headers := detectHeaders(rows, []string{
		"no", "fecha", "accionista", "moneda", "monto", "tasa", "retiros",
	})

	colNumber := fallbackCol(columnIndex(headers, "no"), 0)
	colDate := fallbackCol(columnIndex(headers, "fecha"), 1)
	colShareholder := fallbackCol(columnIndex(headers, "accionista"), 2)
	colCurrency := fallbackCol(columnIndex(headers, "moneda"), 4)
	colAmount := fallbackCol(columnIndex(headers, "monto"), 5)
	colRate := fallbackCol(columnIndex(headers, "tasa"), 6)
	colUSD := fallbackCol(columnIndex(headers, "retiros", "usd"), 7)

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		number, ok := parseNumber(cell(row, colNumber))
		if !ok {
			continue
		}
		date, ok := parseDate(cell(row, colDate))
		if !ok {
			continue
		}
		amount, ok := parseNumber(cell(row, colAmount))
		if !ok {
			continue
		}
		rate, ok := parseNumber(cell(row, colRate))
		if !ok || rate == 0 {
			rate = 1
		}
		amountUSD, ok := parseNumber(cell(row, colUSD))
		if !ok {
			amountUSD = amount / rate
		}

		wd := dataset.Withdrawal{
			ID:          uuid.NewString(),
			Number:      int64(number),
			Date:        date,
			Shareholder: defaultString(cell(row, colShareholder), "Sin nombre"),
			Currency:    defaultString(cell(row, colCurrency), "CUP"),
			Amount:      amount,
			Rate:        rate,
			AmountUSD:   amountUSD,
		}
		if p.check(wd, sheet, i, ds) {
			ds.Withdrawals = append(ds.Withdrawals, wd)
		}
	}
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func fallbackCol(idx, fallback int) int {
	if idx >= 0 {
		return idx
	}
	return fallback
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
