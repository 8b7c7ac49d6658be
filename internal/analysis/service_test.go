package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/costwise/costwise/internal/analytics"
	"github.com/costwise/costwise/internal/fifo"
	"github.com/costwise/costwise/internal/ingest"
)

type fakeEnqueuer struct {
	ids []string
	err error
}

func (f *fakeEnqueuer) EnqueueCacheRefresh(_ context.Context, analysisID string) error {
	f.ids = append(f.ids, analysisID)
	return f.err
}

func newTestService(enqueuer TaskEnqueuer) *Service {
	return NewService(
		ingest.NewParser(nil),
		analytics.NewService(nil, nil),
		NewStore(10),
		enqueuer,
		400,
		nil,
	)
}

// fixtureWorkbook builds a small but complete export: two products, two
// receptions, one invoice with one line, and one shrinkage event.
func fixtureWorkbook(t *testing.T) io.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	write := func(sheet string, rows [][]interface{}) {
		for i := range rows {
			row := rows[i]
			require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &row))
		}
	}

	require.NoError(t, f.SetSheetName("Sheet1", "Productos"))
	write("Productos", [][]interface{}{
		{"Código", "Clase", "Producto", "Descripción", "UM", "Costo por unidad", "Precio venta"},
		{100, "Bebidas", "Cola", "Cola 355ml", "u", 2.0, 100},
		{200, "Bebidas", "Malta", "Malta 355ml", "u", "", 150},
	})

	_, err := f.NewSheet("Recepción")
	require.NoError(t, err)
	write("Recepción", [][]interface{}{
		{"No", "Fecha", "Proveedor", "Código", "Producto", "Descripción", "Cantidad", "Embalaje", "Unidades"},
		{1, "6/01/25", "Acme", 100, "Cola", "", 10, "Caja", 10},
		{2, "6/02/25", "Acme", 200, "Malta", "", 5, "Caja", 5},
	})

	_, err = f.NewSheet("Ventas")
	require.NoError(t, err)
	write("Ventas", [][]interface{}{
		{"No. Factura", "Fecha", "Entidad", "Código", "Producto", "Cantidad", "UM", "Precio", "Unidades Total", "CUP Efectivo", "Importe CUP"},
		{"F-1", "6/10/25", "Centro", 100, "Cola", 4, "u", 100, 4, 400, 400},
	})

	_, err = f.NewSheet("Deterioro")
	require.NoError(t, err)
	write("Deterioro", [][]interface{}{
		{"Fecha", "Entidad", "Código", "Producto", "Cantidad", "UM"},
		{"6/05/25", "Centro", 100, "Cola", 1, "u"},
	})

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func TestServiceProcess(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	svc := newTestService(enqueuer)

	res, err := svc.Process(context.Background(), fixtureWorkbook(t), "export.xlsx")
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	require.Equal(t, "export.xlsx", res.Filename)
	require.Equal(t, []string{res.ID}, enqueuer.ids)

	// Shrinkage consumed first: 1 unit at 2.0.
	require.Len(t, res.Shrinkage, 1)
	require.InDelta(t, 2.0, res.Shrinkage[0].FIFOCost, 1e-9)

	// Sale consumed 4 units at 2.0.
	require.Len(t, res.Items, 1)
	require.InDelta(t, 8.0, res.Items[0].FIFOCost, 1e-9)
	require.InDelta(t, 400-8, res.Items[0].GrossMargin, 1e-9)

	// 5 units of Cola left at 2.0; Malta had no cost source.
	require.InDelta(t, 10.0, res.Engine.InventoryValue().Total, 1e-9)

	warnings := res.Engine.Warnings()
	require.Len(t, warnings, 1)
	require.Equal(t, fifo.WarningNoCost, warnings[0].Kind)
	require.Equal(t, int64(200), warnings[0].ProductCode)
}

func TestServiceProcessRejectsGarbage(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.Process(context.Background(), bytes.NewReader([]byte("junk")), "export.xlsx")
	require.Error(t, err)
	require.Equal(t, 0, svc.store.Len())
}

func TestServiceReport(t *testing.T) {
	svc := newTestService(nil)
	res, err := svc.Process(context.Background(), fixtureWorkbook(t), "export.xlsx")
	require.NoError(t, err)

	report, err := svc.Report(context.Background(), res.ID, 0, analytics.Filter{})
	require.NoError(t, err)
	require.InDelta(t, 400, report.SalesTotalCUP, 1e-9)
	require.InDelta(t, 400, report.RateCUPPerUSD, 1e-9)
	require.Equal(t, 1, report.SaleCount)
	require.InDelta(t, 8, report.COGSUSD, 1e-9)
	require.InDelta(t, 10, report.InventoryValueUSD, 1e-9)
	require.InDelta(t, 1, report.ShrinkageUnits, 1e-9)
	require.Equal(t, 1, report.Warnings.NoCost)

	// Caller-supplied display rate.
	report, err = svc.Report(context.Background(), res.ID, 100, analytics.Filter{})
	require.NoError(t, err)
	require.InDelta(t, 4, report.SalesTotalUSD, 1e-9)
}

func TestServiceExplain(t *testing.T) {
	svc := newTestService(nil)
	res, err := svc.Process(context.Background(), fixtureWorkbook(t), "export.xlsx")
	require.NoError(t, err)

	explain, err := svc.Explain(res.ID, 100)
	require.NoError(t, err)
	require.Len(t, explain.Lots, 1)
	require.InDelta(t, 5, explain.CurrentStock, 1e-9)
	require.Len(t, explain.Consumptions, 2)
}

func TestServiceNotFound(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.Get("missing")
	require.ErrorIs(t, err, ErrAnalysisNotFound)
	_, err = svc.Report(context.Background(), "missing", 0, analytics.Filter{})
	require.ErrorIs(t, err, ErrAnalysisNotFound)
	_, err = svc.Explain("missing", 1)
	require.ErrorIs(t, err, ErrAnalysisNotFound)
	_, err = svc.State("missing")
	require.ErrorIs(t, err, ErrAnalysisNotFound)
	_, err = svc.Warnings("missing")
	require.ErrorIs(t, err, ErrAnalysisNotFound)
	require.ErrorIs(t, svc.Delete("missing"), ErrAnalysisNotFound)
}
