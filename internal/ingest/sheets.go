package ingest

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

// headerScanLimit bounds how many leading rows are inspected when looking
// for a header row; exports often carry a title block above the table.
const headerScanLimit = 20

var accentFold = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

func normalizeHeader(s string) string {
	return accentFold.Replace(strings.ToLower(cleanString(s)))
}

// findSheet locates a sheet whose name contains any of the candidates,
// case-insensitive and accent-insensitive. Returns the exact sheet name
// or empty.
func findSheet(f *excelize.File, candidates ...string) string {
	for _, want := range candidates {
		for _, name := range f.GetSheetList() {
			if strings.Contains(normalizeHeader(name), normalizeHeader(want)) {
				return name
			}
		}
	}
	return ""
}

// detectHeaders scans the first rows for one matching at least three of
// the expected header fragments. It returns the header row index and a
// map from cleaned header name to column index holding every non-empty
// cell of that row. Falls back to row 0.
func detectHeaders(rows [][]string, expected []string) (int, map[string]int) {
	lowered := make([]string, len(expected))
	for i, h := range expected {
		lowered[i] = normalizeHeader(h)
	}

	limit := headerScanLimit
	if len(rows) < limit {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		matches := 0
		for _, raw := range rows[i] {
			cellNorm := normalizeHeader(raw)
			if cellNorm == "" {
				continue
			}
			for _, want := range lowered {
				if strings.Contains(cellNorm, want) || strings.Contains(want, cellNorm) {
					matches++
					break
				}
			}
		}
		if matches >= 3 {
			return i, rowHeaders(rows[i])
		}
	}

	if len(rows) > 0 {
		return 0, rowHeaders(rows[0])
	}
	return 0, map[string]int{}
}

func rowHeaders(row []string) map[string]int {
	headers := make(map[string]int)
	for j, raw := range row {
		if name := cleanString(raw); name != "" {
			if _, taken := headers[name]; !taken {
				headers[name] = j
			}
		}
	}
	return headers
}

// columnIndex resolves a column by header match, trying candidate names
// in priority order. An exact match wins over a substring match; among
// substring matches the leftmost column wins, keeping resolution stable
// across map iteration order. Very short headers only match exactly so
// that a bare "No" column cannot hijack "nombre".
func columnIndex(headers map[string]int, candidates ...string) int {
	for _, want := range candidates {
		w := normalizeHeader(want)
		exact := -1
		fuzzy := -1
		for name, idx := range headers {
			n := normalizeHeader(name)
			switch {
			case n == w:
				if exact == -1 || idx < exact {
					exact = idx
				}
			case strings.Contains(n, w), len(n) >= 3 && strings.Contains(w, n):
				if fuzzy == -1 || idx < fuzzy {
					fuzzy = idx
				}
			}
		}
		if exact >= 0 {
			return exact
		}
		if fuzzy >= 0 {
			return fuzzy
		}
	}
	return -1
}

// positionalDataStart finds where row data begins in sheets without usable
// headers by looking for two consecutive rows whose first cells hold
// sequential numbers. Returns the index of the first data row.
func positionalDataStart(rows [][]string) int {
	limit := headerScanLimit
	if len(rows)-1 < limit {
		limit = len(rows) - 1
	}
	for i := 0; i < limit; i++ {
		first, ok1 := parseNumber(cell(rows[i], 0))
		next, ok2 := parseNumber(cell(rows[i+1], 0))
		if ok1 && ok2 && next == first+1 {
			return i
		}
	}
	return 1
}
