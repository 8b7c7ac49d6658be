package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	shortDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
	longDateRe  = regexp.MustCompile(`^(\d{1,2})\s+([A-Za-z]{3,4})\.?,?\s+(\d{4})$`)
	isoDateRe   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	numberClean = strings.NewReplacer("$", "", "€", "", ",", "", "(", "", ")", "", " ", "", " ", "")
)

// monthNames maps English and Spanish month abbreviations.
var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
	"ene": time.January, "abr": time.April, "ago": time.August,
	"dic": time.December, "sept": time.September,
}

// cleanString trims whitespace and collapses embedded line breaks, which
// show up in multi-line spreadsheet headers.
func cleanString(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}

// parseNumber extracts a float from a loosely formatted cell: currency
// symbols, thousands separators, and parentheses are stripped.
func parseNumber(s string) (float64, bool) {
	s = numberClean.Replace(strings.TrimSpace(s))
	if s == "" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseDate accepts the date layouts seen in the exports: M/D/YY,
// "20 Jun, 2025" (English or Spanish month names), ISO prefixes, and raw
// Excel serial numbers.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if m := shortDateRe.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, false
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
	}

	if m := longDateRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		month, ok := monthNames[strings.ToLower(m[2])]
		if !ok {
			return time.Time{}, false
		}
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
	}

	// Excel serial date; 25569 is 1970-01-01.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 25569 && serial < 80000 {
		epoch := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
		return epoch.AddDate(0, 0, int(serial)), true
	}

	for _, layout := range []string{"02-01-2006", "2006/01/02", "Jan 2, 2006", "2 Jan 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeEntity folds known spelling variants of entity names.
func normalizeEntity(entity string) string {
	entity = cleanString(entity)
	if entity == "A.Vagones" || entity == "A. Vagones" {
		return "A. Vagones"
	}
	return entity
}

// cell returns the trimmed cell at idx, or empty when the row is short or
// the column was not detected.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return cleanString(row[idx])
}
