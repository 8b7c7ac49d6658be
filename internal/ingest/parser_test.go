package ingest

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type sheetFixture struct {
	name string
	rows [][]interface{}
}

func buildWorkbook(t *testing.T, sheets []sheetFixture) io.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r := range s.rows {
			row := s.rows[r]
			require.NoError(t, f.SetSheetRow(s.name, fmt.Sprintf("A%d", r+1), &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func TestParseWorkbookUnreadable(t *testing.T) {
	_, err := NewParser(nil).ParseWorkbook(bytes.NewReader([]byte("not a workbook")))
	require.Error(t, err)
}

func TestParseWorkbookEmpty(t *testing.T) {
	r := buildWorkbook(t, []sheetFixture{{name: "Resumen", rows: nil}})
	ds, err := NewParser(nil).ParseWorkbook(r)
	require.NoError(t, err)
	require.Empty(t, ds.Products)
	require.Empty(t, ds.Sales)
	require.Equal(t, []string{"Resumen"}, ds.Sheets)
}

func TestParseProducts(t *testing.T) {
	r := buildWorkbook(t, []sheetFixture{{
		name: "Productos",
		rows: [][]interface{}{
			{"Listado de productos"},
			{"Código", "Clase", "Producto", "Descripción", "UM", "Unid x Caja", "Unid x Pallet", "Costo por unidad", "Precio venta"},
			{1001, "Bebidas", "Cola", "Cola 355ml", "u", 24, 1728, "$0.35", 120},
			{1002, "Bebidas", "Malta", "", "", "", "", "", ""},
			{"", "", "Sin código", "ignored"},
		},
	}})

	ds, err := NewParser(nil).ParseWorkbook(r)
	require.NoError(t, err)
	require.Len(t, ds.Products, 2)

	cola := ds.Products[0]
	require.Equal(t, int64(1001), cola.Code)
	require.Equal(t, "Cola 355ml", cola.Description)
	require.NotNil(t, cola.UnitCost)
	require.InDelta(t, 0.35, *cola.UnitCost, 1e-9)
	require.NotNil(t, cola.BoxFactor)
	require.InDelta(t, 24, *cola.BoxFactor, 1e-9)

	malta := ds.Products[1]
	require.Equal(t, "Malta", malta.Description)
	require.Equal(t, "u", malta.Unit)
	require.Nil(t, malta.UnitCost)
}

func TestParseSalesGroupsInvoices(t *testing.T) {
	r := buildWorkbook(t, []sheetFixture{{
		name: "Ventas",
		rows: [][]interface{}{
			{"Registro de ventas"},
			{"No. Factura", "Fecha", "Entidad", "Nombre y Apellidos", "Código", "Producto", "Cantidad", "UM", "Precio", "Unidades Total", "USD", "Tasa USD", "CUP Efectivo", "CUP Transferencia", "Importe CUP"},
			{"F-001", "6/20/25", "A.Vagones", "Ana", 1001, "Cola", 2, "Caja", 120, 48, 10, 400, 1000, "", 5760},
			{"F-001", "6/20/25", "A.Vagones", "", 1002, "Malta", 1, "Caja", 150, 24, "", "", 600, "", 3600},
			{"F-002", "6/21/25", "Central", "Luis", 1001, "Cola", -1, "Caja", 120, 24, "", "", "(500)", "", "(2880)"},
		},
	}})

	ds, err := NewParser(nil).ParseWorkbook(r)
	require.NoError(t, err)
	require.Len(t, ds.Sales, 2)
	require.Len(t, ds.SaleItems, 3)

	first := ds.Sales[0]
	require.Equal(t, "F-001", first.Invoice)
	require.Equal(t, "A. Vagones", first.Entity)
	require.Equal(t, "Ana", first.Customer)
	require.InDelta(t, 10, first.USD, 1e-9)
	require.NotNil(t, first.USDRate)
	require.InDelta(t, 400, *first.USDRate, 1e-9)
	require.InDelta(t, 1600, first.CUPCash, 1e-9)
	require.InDelta(t, 9360, first.TotalCUP, 1e-9)

	require.Equal(t, first.ID, ds.SaleItems[0].SaleID)
	require.Equal(t, first.ID, ds.SaleItems[1].SaleID)
	require.InDelta(t, 48, ds.SaleItems[0].TotalUnits, 1e-9)

	// Refund line keeps its negative sign on total units.
	refund := ds.SaleItems[2]
	require.NotEqual(t, first.ID, refund.SaleID)
	require.InDelta(t, -1, refund.Qty, 1e-9)
	require.InDelta(t, -24, refund.TotalUnits, 1e-9)
}

func TestParseSalesQtyFallback(t *testing.T) {
	r := buildWorkbook(t, []sheetFixture{{
		name: "Ventas",
		rows: [][]interface{}{
			{"No. Factura", "Fecha", "Entidad", "Código", "Producto", "Cantidad", "Precio", "Unidades Total"},
			{"F-001", "6/20/25", "Central", 1001, "Cola", 3, 120, ""},
		},
	}})

	ds, err := NewParser(nil).ParseWorkbook(r)
	require.NoError(t, err)
	require.Len(t, ds.SaleItems, 1)
	require.InDelta(t, 3, ds.SaleItems[0].TotalUnits, 1e-9)
}

func TestParsePurchasesPositional(t *testing.T) {
	r := buildWorkbook(t, []sheetFixture{{
		name: "Compras",
		rows: [][]interface{}{
			{"Compras del período"},
			{"No", "Fecha", "Proveedor", "Código", "Producto", "Descripción", "Precio", "Moneda", "Cantidad", "Embalaje", "Importe", "Tasa", "Importe CUP", "Unidades"},
			{1, "6/10/25", "Acme", 1001, "Cola", "Cola 355ml", 8.5, "USD", 10, "Caja", 85, 400, 34000, 240},
			{2, "6/11/25", "Acme", 1002, "Malta", "", "", "USD", 5, "Caja", 60, "", "", ""},
			{"Total", "", "", "", "", "", "", "", "", "", 145},
		},
	}})

	ds, err := NewParser(nil).ParseWorkbook(r)
	require.NoError(t, err)
	require.Len(t, ds.Purchases, 2)

	first := ds.Purchases[0]
	require.Equal(t, int64(1), first.Number)
	require.Equal(t, int64(1001), first.ProductCode)
	require.InDelta(t, 85, first.TotalAmount, 1e-9)
	require.InDelta(t, 240, first.Units, 1e-9)
	require.NotNil(t, first.Rate)

	// Units column empty: falls back to qty.
	require.InDelta(t, 5, ds.Purchases[1].Units, 1e-9)
	require.Nil(t, ds.Purchases[1].Rate)
}

func TestParseReceptionsPositional(t *testing.T) {
	r := buildWorkbook(t, []sheetFixture{{
		name: "Recepción",
		rows: [][]interface{}{
			{"No", "Fecha", "Proveedor", "Código", "Producto", "Descripción", "Cantidad", "Embalaje", "Unidades", "Compra", "Costo"},
			{1, "6/12/25", "Acme", 1001, "Cola", "", 10, "Caja", 240, 7, 0.4},
			{2, "6/13/25", "Acme", 1002, "Malta", "", 5, "Caja", 120, "", ""},
		},
	}})

	ds, err := NewParser(nil).ParseWorkbook(r)
	require.NoError(t, err)
	require.Len(t, ds.Receptions, 2)

	first := ds.Receptions[0]
	require.Equal(t, int64(1001), first.ProductCode)
	require.InDelta(t, 240, first.Units, 1e-9)
	require.NotNil(t, first.PurchaseNumber)
	require.Equal(t, int64(7), *first.PurchaseNumber)
	require.NotNil(t, first.UnitCost)
	require.InDelta(t, 0.4, *first.UnitCost, 1e-9)

	require.Nil(t, ds.Receptions[1].PurchaseNumber)
	require.Nil(t, ds.Receptions[1].UnitCost)
}

func TestParseShrinkageNormalizesQty(t *testing.T) {
	r := buildWorkbook(t, []sheetFixture{{
		name: "Deterioro",
		rows: [][]interface{}{
			{"Fecha", "Entidad", "Código", "Producto", "Descripción", "Cantidad", "UM"},
			{"6/15/25", "Central", 1001, "Cola", "", -3, "u"},
			{"6/16/25", "", 1002, "Malta", "", 0, "u"},
		},
	}})

	ds, err := NewParser(nil).ParseWorkbook(r)
	require.NoError(t, err)
	require.Len(t, ds.Shrinkages, 1)
	require.InDelta(t, 3, ds.Shrinkages[0].Qty, 1e-9)
	require.Equal(t, "Central", ds.Shrinkages[0].Entity)
}

func TestParseExpensesAndWithdrawals(t *testing.T) {
	r := buildWorkbook(t, []sheetFixture{
		{
			name: "Gastos",
			rows: [][]interface{}{
				{"Gastos"},
				{"No", "Fecha", "Categoría", "Descripción", "Monto", "Moneda"},
				{1, "6/01/25", "Transporte", "Flete", 2000, "CUP"},
				{2, "6/02/25", "", "", 150, ""},
			},
		},
		{
			name: "Retiros",
			rows: [][]interface{}{
				{"No", "Fecha", "Accionista", "Concepto", "Moneda", "Monto", "Tasa", "Retiros USD"},
				{1, "6/05/25", "Pedro", "", "CUP", 40000, 400, ""},
				{2, "6/06/25", "María", "", "USD", 100, 1, 100},
			},
		},
	})

	ds, err := NewParser(nil).ParseWorkbook(r)
	require.NoError(t, err)

	require.Len(t, ds.Expenses, 2)
	require.Equal(t, "Transporte", ds.Expenses[0].Category)
	require.Equal(t, "Otros", ds.Expenses[1].Category)
	require.Equal(t, "CUP", ds.Expenses[1].Currency)

	require.Len(t, ds.Withdrawals, 2)
	require.Equal(t, "Pedro", ds.Withdrawals[0].Shareholder)
	require.InDelta(t, 100, ds.Withdrawals[0].AmountUSD, 1e-9)
	require.InDelta(t, 100, ds.Withdrawals[1].AmountUSD, 1e-9)
}
