package component

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value format tags accepted in column definitions.
const (
	FormatBoolean  = "boolean"
	FormatDate     = "date"
	FormatDatetime = "datetime"
	FormatCurrency = "currency"
	FormatNumber   = "number"
)

// dateLayouts are tried in order when a date arrives as a string.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatValue renders a raw scalar as a Danish display string according to
// the format tag. Unknown tags and unparsable values fall back to the plain
// string form; nil renders as an empty string.
func FormatValue(v any, format string) string {
	if v == nil {
		return ""
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch format {
	case FormatBoolean:
		return formatBoolean(v)
	case FormatDate:
		return formatTime(v, "02.01.2006")
	case FormatDatetime:
		return formatTime(v, "02.01.2006 15:04")
	case FormatCurrency:
		if f, ok := toFloat(v); ok {
			return formatDanishNumber(f, 2) + " kr."
		}
	case FormatNumber:
		if f, ok := toFloat(v); ok {
			decimals := 0
			if f != math.Trunc(f) {
				decimals = 2
			}
			return formatDanishNumber(f, decimals)
		}
	}

	return fmt.Sprintf("%v", v)
}

func formatBoolean(v any) string {
	truthy := false
	switch typed := v.(type) {
	case bool:
		truthy = typed
	case string:
		lower := strings.ToLower(typed)
		truthy = lower == "true" || lower == "t" || lower == "ja" || lower == "1"
	case int64:
		truthy = typed != 0
	case float64:
		truthy = typed != 0
	default:
		return fmt.Sprintf("%v", v)
	}
	if truthy {
		return "Ja"
	}
	return "Nej"
}

func formatTime(v any, layout string) string {
	switch typed := v.(type) {
	case time.Time:
		return typed.Format(layout)
	case string:
		for _, parse := range dateLayouts {
			if t, err := time.Parse(parse, typed); err == nil {
				return t.Format(layout)
			}
		}
		return typed
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatDanishNumber renders f with "." as thousands separator and "," as
// decimal mark.
func formatDanishNumber(f float64, decimals int) string {
	s := strconv.FormatFloat(f, 'f', decimals, 64)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
	}

	var grouped strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(digit)
	}

	out := sign + grouped.String()
	if fracPart != "" {
		out += "," + fracPart
	}
	return out
}

// toFloat coerces the numeric types the database driver may hand back.
func toFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case string:
		f, err := strconv.ParseFloat(typed, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(typed), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
