package engine

import (
	"fmt"

	"github.com/imagemath-lang/imagemath/core/image"
)

// Script values are dynamically typed: float64, string, bool, []any,
// map[string]any or *image.Image. Numeric literals always evaluate to
// float64.

// asNumber coerces a value to float64.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// asInt coerces a value to an integer, rejecting non-numeric input.
func asInt(v any) (int, bool) {
	n, ok := asNumber(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// asList returns the value as a list. The spread-list argument convention
// wraps variadic arguments into a single list value.
func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

// asImage returns the value as an image.
func asImage(v any) (*image.Image, bool) {
	img, ok := v.(*image.Image)
	return img, ok
}

// formatValue renders a value for logs and error messages.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return t
	case *image.Image:
		return t.String()
	case []any:
		return fmt.Sprintf("list(%d)", len(t))
	default:
		return fmt.Sprintf("%v", t)
	}
}
