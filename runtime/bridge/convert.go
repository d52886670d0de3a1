package bridge

import (
	"fmt"
	"reflect"

	"github.com/imagemath-lang/imagemath/core/image"
)

// ImageProxy is how guest code sees an image: dimensions plus the pixel
// buffer as nested rows. Guests build new images with the image(rows)
// constructor exposed in their environment.
type ImageProxy struct {
	Width  int
	Height int
	Pixels [][]float64
}

func proxyFor(img *image.Image) *ImageProxy {
	return &ImageProxy{
		Width:  img.Width,
		Height: img.Height,
		Pixels: img.Rows(),
	}
}

// toGuest converts a host value for the guest environment. Numbers widen to
// float64, lists and maps convert structurally, images become proxies.
func toGuest(v any) any {
	switch t := v.(type) {
	case *image.Image:
		return proxyFor(t)
	case int:
		return float64(t)
	case float32:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = toGuest(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = toGuest(item)
		}
		return out
	default:
		if out, ok, _ := convertTyped(v, func(item any) (any, error) {
			return toGuest(item), nil
		}); ok {
			return out
		}
		return v
	}
}

// fromGuest converts a guest result back to a host value. A nil guest
// result stays nil, which the engine reports as "no result".
func fromGuest(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *ImageProxy:
		return image.FromRows(t.Pixels)
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			converted, err := fromGuest(item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			converted, err := fromGuest(item)
			if err != nil {
				return nil, err
			}
			out[k] = converted
		}
		return out, nil
	default:
		if out, ok, err := convertTyped(v, fromGuest); ok {
			return out, err
		}
		return v, nil
	}
}

// convertTyped handles typed slices and string-keyed maps the concrete type
// switches miss, such as the []float64 a guest gets by slicing an
// ImageProxy row. Elements convert recursively; []byte stays opaque.
func convertTyped(v any, convert func(any) (any, error)) (any, bool, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			converted, err := convert(rv.Index(i).Interface())
			if err != nil {
				return nil, true, err
			}
			out[i] = converted
		}
		return out, true, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			converted, err := convert(iter.Value().Interface())
			if err != nil {
				return nil, true, err
			}
			out[iter.Key().String()] = converted
		}
		return out, true, nil
	}
	return nil, false, nil
}

// buildImage is the guest-side image constructor. Rows must be a non-empty
// list of equally sized numeric lists.
func buildImage(rows any) (*ImageProxy, error) {
	list, ok := rows.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("image() expects a non-empty list of rows")
	}
	converted := make([][]float64, len(list))
	for y, row := range list {
		cells, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("image() row %d is not a list", y)
		}
		converted[y] = make([]float64, len(cells))
		for x, cell := range cells {
			switch n := cell.(type) {
			case float64:
				converted[y][x] = n
			case int:
				converted[y][x] = float64(n)
			case int64:
				converted[y][x] = float64(n)
			default:
				return nil, fmt.Errorf("image() row %d column %d is not a number", y, x)
			}
		}
		if len(converted[y]) != len(converted[0]) {
			return nil, fmt.Errorf("image() rows must all have the same length")
		}
	}
	img, err := image.FromRows(converted)
	if err != nil {
		return nil, err
	}
	return proxyFor(img), nil
}
