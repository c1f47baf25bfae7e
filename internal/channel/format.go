package channel

import (
	"math"
	"regexp"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/roach88/chartflow/internal/ir"
)

// formatPattern accepts the number formats charts declare: an optional
// "," for digit grouping followed by nothing, ".Nf" or "d".
var formatPattern = regexp.MustCompile(`^(,)?(?:\.(\d+)f|(d))?$`)

// ValidFormat reports whether f is a supported number format.
func ValidFormat(f string) bool {
	return f != "" && formatPattern.MatchString(f)
}

// Format renders v with a number format. Non-numeric values, and
// unsupported formats, render as plain strings.
//
//	","     grouped, up to six fraction digits   1234.5 -> "1,234.5"
//	".2f"   fixed fraction digits                3.14159 -> "3.14"
//	",.2f"  grouped and fixed                    1234.5 -> "1,234.50"
//	"d"     rounded integer                      7.6 -> "8"
func Format(v ir.Value, f string) string {
	n, ok := v.(ir.Number)
	if !ok || f == "" {
		return ir.ToString(v)
	}
	x := float64(n)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return ir.ToString(v)
	}
	m := formatPattern.FindStringSubmatch(f)
	if m == nil {
		return ir.ToString(v)
	}
	grouped := m[1] == ","

	var opts []number.Option
	switch {
	case m[2] != "":
		digits, _ := strconv.Atoi(m[2])
		opts = append(opts, number.Scale(digits))
		if !grouped {
			return strconv.FormatFloat(x, 'f', digits, 64)
		}
	case m[3] != "":
		x = math.Round(x)
		if !grouped {
			return strconv.FormatFloat(x, 'f', 0, 64)
		}
		opts = append(opts, number.MaxFractionDigits(0))
	default:
		opts = append(opts, number.MaxFractionDigits(6))
	}

	// Printers are cheap; one per call keeps Format safe for concurrent use.
	p := message.NewPrinter(language.English)
	return p.Sprint(number.Decimal(x, opts...))
}
