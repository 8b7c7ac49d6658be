package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1234.5", 1234.5, true},
		{"$1,234.56", 1234.56, true},
		{"(500)", 500, true},
		{"€ 12", 12, true},
		{"-3", -3, true},
		{"", 0, false},
		{"-", 0, false},
		{"n/a", 0, false},
	}
	for _, c := range cases {
		got, ok := parseNumber(c.in)
		require.Equal(t, c.ok, ok, c.in)
		if ok {
			require.InDelta(t, c.want, got, 1e-9, c.in)
		}
	}
}

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{
		"6/20/25",
		"6/20/2025",
		"20 Jun, 2025",
		"20 jun 2025",
		"2025-06-20",
		"2025-06-20T00:00:00Z",
	} {
		got, ok := parseDate(in)
		require.True(t, ok, in)
		require.True(t, want.Equal(got), in)
	}

	// Spanish-only month abbreviation.
	got, ok := parseDate("5 Ene, 2025")
	require.True(t, ok)
	require.Equal(t, time.January, got.Month())

	// Excel serial for 2025-01-01.
	got, ok = parseDate("45658")
	require.True(t, ok)
	require.True(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC).Equal(got))

	for _, in := range []string{"", "13/45/25", "pending", "99"} {
		_, ok := parseDate(in)
		require.False(t, ok, in)
	}
}

func TestNormalizeEntity(t *testing.T) {
	require.Equal(t, "A. Vagones", normalizeEntity("A.Vagones"))
	require.Equal(t, "A. Vagones", normalizeEntity(" A. Vagones "))
	require.Equal(t, "Central", normalizeEntity("Central"))
}

func TestCleanString(t *testing.T) {
	require.Equal(t, "Costo por unidad", cleanString("  Costo\npor\r\n unidad "))
}

func TestColumnIndexPriorities(t *testing.T) {
	headers := map[string]int{
		"No":                 0,
		"Fecha":              1,
		"Nombre y Apellidos": 2,
		"Código":             3,
		"Descripción":        4,
		"Importe CUP":        8,
	}

	require.Equal(t, 3, columnIndex(headers, "codigo"))
	require.Equal(t, 4, columnIndex(headers, "descripcion"))
	// "nombre" must not be hijacked by the bare "No" column.
	require.Equal(t, 2, columnIndex(headers, "nombre"))
	require.Equal(t, 8, columnIndex(headers, "importe cup", "importe"))
	require.Equal(t, -1, columnIndex(headers, "gestor"))
}
