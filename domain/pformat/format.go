// Package pformat renders p-values and percentages for the report tables.
//
// P-values are canonicalised by their decimal exponent e = floor(log10(|p|)):
//
//	e = 0, -1, -2   rescale by 10^|e|, suppress when above the tier cutoff
//	-9 <= e <= -3   10^{-0d}
//	e < -9          10^{e}
//	p == 0          0
//
// Suppression yields the empty string: the value is not significant enough to report.
package pformat

import (
	"math"
	"strconv"
	"strings"
)

// TruncateOneDecimal drops everything after the first decimal (12.37 -> 12.3).
// This is truncation toward zero, not rounding.
func TruncateOneDecimal(x float64) float64 {
	return math.Trunc(x*10) / 10
}

// Float prints x in its shortest form, always with a decimal point ("12.0", "0.05")
func Float(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// Percent prints a mean error rate truncated to one decimal
func Percent(x float64) string {
	return Float(TruncateOneDecimal(x))
}

// tier is one row of the rescaled-exponent table
type tier struct {
	exponent int
	cutoff   float64 // rescaled values strictly above are suppressed
	render   func(p float64) string
}

// rescaledTiers covers exponents 0, -1 and -2
var rescaledTiers = []tier{
	{exponent: 0, cutoff: 0.05, render: func(p float64) string { return Float(TruncateOneDecimal(p)) }},
	{exponent: -1, cutoff: 0.5, render: func(p float64) string { return Float(TruncateOneDecimal(p)) }},
	{exponent: -2, cutoff: 5, render: func(p float64) string { return Float(roundTo(p, 2)) }},
}

const (
	fixedPowerMin = -9
	fixedPowerMax = -3
)

// Formatter wraps formatted values in math delimiters (e.g. "$" for LaTeX)
type Formatter struct {
	Open  string
	Close string
}

// LaTeX formats for LaTeX math mode
var LaTeX = Formatter{Open: "$", Close: "$"}

// Plain formats without delimiters
var Plain = Formatter{}

// Result holds the display strings of one formatted p-value. Effect is empty
// unless an effect size was given; callers may place it in a separate cell.
type Result struct {
	PValue string
	Effect string
}

// Strings returns one string, or two when an effect size was formatted
func (r Result) Strings() []string {
	if r.Effect == "" {
		return []string{r.PValue}
	}
	return []string{r.PValue, r.Effect}
}

// Format canonicalises p. An empty PValue means "not reportable".
func (f Formatter) Format(p float64) Result {
	return Result{PValue: f.value(p)}
}

// FormatWithEffect canonicalises p and renders the effect size with two decimals
func (f Formatter) FormatWithEffect(p, effect float64) Result {
	return Result{
		PValue: f.value(p),
		Effect: " (" + f.wrap(strconv.FormatFloat(effect, 'f', 2, 64)) + ")",
	}
}

func (f Formatter) value(p float64) string {
	if math.IsNaN(p) {
		return ""
	}
	if p == 0 {
		return f.wrap("0")
	}

	e := Exponent(p)
	for _, t := range rescaledTiers {
		if t.exponent != e {
			continue
		}
		rescaled := math.Abs(p) * math.Pow10(-e)
		if rescaled > t.cutoff {
			return ""
		}
		return f.wrap(t.render(p))
	}

	switch {
	case e > 0:
		return ""
	case e >= fixedPowerMin && e <= fixedPowerMax:
		return f.wrap("10^{-0" + strconv.Itoa(-e) + "}")
	default:
		return f.wrap("10^{" + strconv.Itoa(e) + "}")
	}
}

func (f Formatter) wrap(s string) string {
	return f.Open + s + f.Close
}

// Exponent returns floor(log10(|p|)) for p != 0, corrected against
// floating-point error at exact powers of ten
func Exponent(p float64) int {
	a := math.Abs(p)
	e := int(math.Floor(math.Log10(a)))
	if a >= math.Pow10(e+1) {
		e++
	} else if a < math.Pow10(e) {
		e--
	}
	return e
}

// roundTo rounds the exact decimal value of x, half-cases included: 0.015 is
// stored as 0.01499... and rounds to 0.01
func roundTo(x float64, decimals int) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', decimals, 64), 64)
	if err != nil {
		return x
	}
	return v
}
