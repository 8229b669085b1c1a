package chunk

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var koPrinter = message.NewPrinter(language.Korean)

// FormatAmount renders a numeric value with thousands separators. Whole
// numbers drop the decimal point, so 1234567.0 becomes 1,234,567.
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= 1e18 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if v == math.Trunc(v) {
		return koPrinter.Sprintf("%d", int64(v))
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	whole, err := strconv.ParseInt(s[:dot], 10, 64)
	if err != nil {
		return s
	}
	out := koPrinter.Sprintf("%d", whole) + "." + s[dot+1:]
	if whole == 0 && strings.HasPrefix(s, "-") {
		out = "-" + out
	}
	return out
}

// NormalizeUnit folds reported unit strings such as "단위: 백만원" onto the
// canonical set 백만원, 천원 and 원. Unrecognized units pass through trimmed.
func NormalizeUnit(raw string) string {
	switch {
	case strings.Contains(raw, "백만원"):
		return "백만원"
	case strings.Contains(raw, "천원"):
		return "천원"
	case strings.Contains(raw, "원"):
		return "원"
	default:
		return strings.TrimSpace(raw)
	}
}
