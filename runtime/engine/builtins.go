package engine

import (
	"fmt"

	"github.com/imagemath-lang/imagemath/core/image"
)

// registerStandard installs the builtins implemented natively on the image
// primitives. Heavy algorithms (stacking, geometry correction, distortion)
// are registered by the host application through the same Registry.
func registerStandard(r *Registry) {
	r.Register(&Builtin{
		Name:   "img",
		Params: []Param{req("ps", "pixel shift")},
		Impl:   imgBuiltin,
	})
	r.Register(&Builtin{
		Name: "continuum",
		Impl: continuumBuiltin,
	})
	r.Register(&Builtin{
		Name:   "range",
		Params: []Param{req("from"), req("to"), opt("step")},
		Impl:   rangeBuiltin,
	})
	r.Register(&Builtin{Name: "list", Spread: true, Impl: listBuiltin})
	r.Register(&Builtin{Name: "concat", Spread: true, Impl: concatBuiltin})
	r.Register(&Builtin{Name: "avg", Spread: true, Impl: foldBuiltin(image.Average, avgNumbers)})
	r.Register(&Builtin{Name: "min", Spread: true, Impl: foldBuiltin(image.Min, minNumbers)})
	r.Register(&Builtin{Name: "max", Spread: true, Impl: foldBuiltin(image.Max, maxNumbers)})
	r.Register(&Builtin{Name: "median", Spread: true, Impl: foldBuiltin(image.Median, medianNumbers)})
	r.Register(&Builtin{
		Name:   "get_at",
		Params: []Param{req("list"), req("index", "index")},
		Impl:   getAtBuiltin,
	})
	r.Register(&Builtin{
		Name:   "invert",
		Params: []Param{imgParam},
		Impl:   imageFn1("invert", func(img *image.Image) (*image.Image, error) { return image.Invert(img), nil }),
	})
	r.Register(&Builtin{
		Name:   "crop",
		Params: []Param{imgParam, req("left"), req("top"), req("width"), req("height")},
		Impl:   cropBuiltin,
	})
	r.Register(&Builtin{
		Name:   "linear_stretch",
		Params: []Param{imgParam, opt("lo", "low value"), opt("hi", "high value")},
		Impl:   linearStretchBuiltin,
	})
	r.Register(&Builtin{
		Name:   "adjust_contrast",
		Params: []Param{imgParam, req("min", "min value"), req("max", "max value")},
		Impl:   adjustContrastBuiltin,
	})
	r.Register(&Builtin{
		Name:   "clahe",
		Params: []Param{imgParam, req("ts", "tile size"), req("bins", "bins"), req("clip", "clip limit")},
		Impl:   claheBuiltin,
	})
	r.Register(&Builtin{
		Name:   "expr",
		Params: []Param{req("script", "expression source")},
		Impl:   exprBuiltin,
	})
}

// imgBuiltin returns the input image at the given pixel shift. The shift is
// always recorded for collection, even in real evaluation.
func imgBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	shift, ok := asNumber(args["ps"])
	if !ok {
		return nil, &ValidationError{Function: "img", Argument: "ps", Reason: "pixel shift must be a number"}
	}
	return ctx.Evaluator.imageAtShift(shift)
}

// continuumBuiltin is treated as the image at shift zero.
func continuumBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	return ctx.Evaluator.imageAtShift(0)
}

// rangeBuiltin returns the list of input images over an inclusive shift
// range.
func rangeBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	from, ok := asNumber(args["from"])
	if !ok {
		return nil, &ValidationError{Function: "range", Argument: "from", Reason: "must be a number"}
	}
	to, ok := asNumber(args["to"])
	if !ok {
		return nil, &ValidationError{Function: "range", Argument: "to", Reason: "must be a number"}
	}
	step := 1.0
	if v, present := args["step"]; present {
		if step, ok = asNumber(v); !ok || step <= 0 {
			return nil, &ValidationError{Function: "range", Argument: "step", Reason: "must be a positive number"}
		}
	}
	if from > to {
		from, to = to, from
	}
	var out []any
	for shift := from; shift <= to; shift += step {
		img, err := ctx.Evaluator.imageAtShift(shift)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func listBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	list, _ := asList(args["list"])
	return list, nil
}

// concatBuiltin flattens its arguments into a single list.
func concatBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	list, _ := asList(args["list"])
	return flatten(list), nil
}

func getAtBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	list, ok := asList(args["list"])
	if !ok {
		return nil, &ValidationError{Function: "get_at", Argument: "list", Reason: "must be a list"}
	}
	index, ok := asInt(args["index"])
	if !ok {
		return nil, &ValidationError{Function: "get_at", Argument: "index", Reason: "must be a number"}
	}
	if index < 0 || index >= len(list) {
		return nil, &ValidationError{
			Function: "get_at",
			Argument: "index",
			Reason:   fmt.Sprintf("index %d out of bounds for list of size %d", index, len(list)),
		}
	}
	return list[index], nil
}

// foldBuiltin builds a spread builtin that reduces images pixelwise or
// numbers arithmetically, depending on the argument kinds.
func foldBuiltin(imageFold func([]*image.Image) (*image.Image, error), numberFold func([]float64) float64) BuiltinImpl {
	return func(ctx *CallContext, args map[string]any) (any, error) {
		values := flatten(mustList(args["list"]))
		if len(values) == 0 {
			return nil, &ValidationError{Function: ctx.Function, Reason: "requires at least one argument"}
		}
		var images []*image.Image
		var numbers []float64
		for _, v := range values {
			if img, ok := asImage(v); ok {
				images = append(images, img)
			} else if n, ok := asNumber(v); ok {
				numbers = append(numbers, n)
			} else {
				return nil, &ValidationError{
					Function: ctx.Function,
					Reason:   "arguments must be images or numbers, got " + formatValue(v),
				}
			}
		}
		if len(images) > 0 && len(numbers) > 0 {
			return nil, &ValidationError{Function: ctx.Function, Reason: "cannot mix images and numbers"}
		}
		if len(images) > 0 {
			return imageFold(images)
		}
		return numberFold(numbers), nil
	}
}

func cropBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	img, err := imageArg(ctx, args)
	if err != nil {
		return nil, err
	}
	left, _ := asInt(args["left"])
	top, _ := asInt(args["top"])
	width, okW := asInt(args["width"])
	height, okH := asInt(args["height"])
	if !okW || !okH || width <= 0 || height <= 0 {
		return nil, &ValidationError{Function: "crop", Argument: "width", Reason: "width and height must be positive numbers"}
	}
	if img.IsEmpty() {
		return img, nil
	}
	return image.Crop(img, left, top, width, height)
}

func linearStretchBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	img, err := imageArg(ctx, args)
	if err != nil {
		return nil, err
	}
	lo, hi := 0.0, image.MaxValue
	if v, present := args["lo"]; present {
		lo, _ = asNumber(v)
	}
	if v, present := args["hi"]; present {
		hi, _ = asNumber(v)
	}
	return image.LinearStretch(img, lo, hi), nil
}

func adjustContrastBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	img, err := imageArg(ctx, args)
	if err != nil {
		return nil, err
	}
	min, okMin := asNumber(args["min"])
	max, okMax := asNumber(args["max"])
	if !okMin || !okMax || min > max {
		return nil, &ValidationError{Function: "adjust_contrast", Argument: "min", Reason: "min and max must be numbers with min <= max"}
	}
	return image.AdjustContrast(img, min, max), nil
}

// claheBuiltin validates the tile/bin constraint before any pixel work.
func claheBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	img, err := imageArg(ctx, args)
	if err != nil {
		return nil, err
	}
	ts, okTs := asInt(args["ts"])
	bins, okBins := asInt(args["bins"])
	clip, okClip := asNumber(args["clip"])
	if !okTs || !okBins || !okClip || ts <= 0 || bins <= 0 {
		return nil, &ValidationError{Function: "clahe", Reason: "ts, bins and clip must be positive numbers"}
	}
	if float64(ts*ts)/float64(bins) < 1.0 {
		return nil, &ValidationError{
			Function: "clahe",
			Argument: "bins",
			Reason:   fmt.Sprintf("tile size squared (%d) must be at least the bin count (%d)", ts*ts, bins),
		}
	}
	if img.IsEmpty() {
		return img, nil
	}
	return image.Clahe(img, ts, bins, clip)
}

// exprBuiltin routes to the embedded foreign runtime.
func exprBuiltin(ctx *CallContext, args map[string]any) (any, error) {
	source, ok := args["script"].(string)
	if !ok {
		return nil, &ValidationError{Function: "expr", Argument: "script", Reason: "must be a string"}
	}
	return ctx.Evaluator.foreignCall(source, ctx.Env)
}

func imageFn1(name string, f func(*image.Image) (*image.Image, error)) BuiltinImpl {
	return func(ctx *CallContext, args map[string]any) (any, error) {
		img, err := imageArg(ctx, args)
		if err != nil {
			return nil, err
		}
		if img.IsEmpty() {
			return img, nil
		}
		return f(img)
	}
}

// imageArg reads the conventional img parameter, broadcasting over lists is
// handled one level up in the dispatcher.
func imageArg(ctx *CallContext, args map[string]any) (*image.Image, error) {
	img, ok := asImage(args["img"])
	if !ok {
		return nil, &ValidationError{Function: ctx.Function, Argument: "img", Reason: "must be an image, got " + formatValue(args["img"])}
	}
	return img, nil
}

func mustList(v any) []any {
	list, _ := asList(v)
	return list
}

func flatten(values []any) []any {
	var out []any
	for _, v := range values {
		if nested, ok := asList(v); ok {
			out = append(out, flatten(nested)...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

func avgNumbers(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func minNumbers(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxNumbers(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func medianNumbers(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
