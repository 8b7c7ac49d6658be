// Package fx converts already-computed CUP amounts for display in USD.
// Conversion never feeds back into costing; the engine works in the
// currencies the source data carries.
package fx

import (
	"errors"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCUPPerUSD is the informal market rate applied when the caller
// does not supply one.
const DefaultCUPPerUSD = 400.0

// ErrInvalidRate is returned for zero or negative exchange rates.
var ErrInvalidRate = errors.New("fx: rate must be positive")

// Converter converts CUP amounts to USD at a fixed rate.
type Converter struct {
	rate decimal.Decimal
}

// NewConverter builds a converter for the given CUP-per-USD rate.
func NewConverter(cupPerUSD float64) (Converter, error) {
	if cupPerUSD <= 0 {
		return Converter{}, ErrInvalidRate
	}
	return Converter{rate: decimal.NewFromFloat(cupPerUSD)}, nil
}

// Default returns a converter at DefaultCUPPerUSD.
func Default() Converter {
	c, _ := NewConverter(DefaultCUPPerUSD)
	return c
}

// Rate reports the CUP-per-USD rate in use.
func (c Converter) Rate() float64 {
	f, _ := c.rate.Float64()
	return f
}

// CUPToUSD converts a CUP amount to USD, rounded to cents.
func (c Converter) CUPToUSD(amountCUP float64) float64 {
	usd := decimal.NewFromFloat(amountCUP).DivRound(c.rate, 2)
	f, _ := usd.Float64()
	return f
}

// MarginUSD recomputes a display margin from CUP revenue and USD cost.
func (c Converter) MarginUSD(revenueCUP, costUSD float64) float64 {
	m := decimal.NewFromFloat(revenueCUP).
		DivRound(c.rate, 6).
		Sub(decimal.NewFromFloat(costUSD)).
		Round(2)
	f, _ := m.Float64()
	return f
}

// MarginPct is the margin as a percentage of converted revenue. Zero
// revenue yields zero rather than a division error.
func (c Converter) MarginPct(revenueCUP, costUSD float64) float64 {
	revenue := decimal.NewFromFloat(revenueCUP).DivRound(c.rate, 6)
	if revenue.IsZero() {
		return 0
	}
	pct := revenue.Sub(decimal.NewFromFloat(costUSD)).
		Div(revenue).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	f, _ := pct.Float64()
	return f
}

// Formatter renders amounts with locale-aware digit grouping. The source
// data is a Spanish-language export, so Spanish is the default locale.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for the given locale tag.
func NewFormatter(tag language.Tag) Formatter {
	return Formatter{printer: message.NewPrinter(tag)}
}

// NewSpanishFormatter builds the default formatter.
func NewSpanishFormatter() Formatter {
	return NewFormatter(language.Spanish)
}

// USD renders an amount as a USD display string.
func (f Formatter) USD(amount float64) string {
	return f.printer.Sprintf("%.2f USD", amount)
}

// CUP renders an amount as a CUP display string.
func (f Formatter) CUP(amount float64) string {
	return f.printer.Sprintf("%.2f CUP", amount)
}
