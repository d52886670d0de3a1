package engine

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/imagemath-lang/imagemath/core/ast"
	"github.com/imagemath-lang/imagemath/core/image"
)

// applyBinary dispatches an arithmetic operator over the dynamic value
// kinds. Arithmetic on images is element-wise; a number combined with an
// image broadcasts the scalar over every pixel.
func applyBinary(op ast.BinaryOp, left, right any) (any, error) {
	switch op {
	case ast.OpAdd:
		return plus(left, right)
	case ast.OpSub:
		return minus(left, right)
	case ast.OpMul:
		return mulOrDiv(op, left, right)
	case ast.OpDiv:
		return mulOrDiv(op, left, right)
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

// plus concatenates lists and strings, adds numbers and images.
func plus(left, right any) (any, error) {
	if ll, ok := asList(left); ok {
		if rl, ok := asList(right); ok {
			out := make([]any, 0, len(ll)+len(rl))
			out = append(out, ll...)
			out = append(out, rl...)
			return out, nil
		}
	}
	ls, leftIsString := left.(string)
	rs, rightIsString := right.(string)
	if leftIsString && rightIsString {
		return ls + rs, nil
	}
	if leftIsString {
		return ls + formatOperand(right), nil
	}
	if rightIsString {
		return formatOperand(left) + rs, nil
	}
	return numericOrImage(left, right, ast.OpAdd)
}

// minus subtracts; on two lists it removes the right list's elements from
// the left one.
func minus(left, right any) (any, error) {
	if ll, ok := asList(left); ok {
		if rl, ok := asList(right); ok {
			var out []any
			for _, v := range ll {
				if !containsValue(rl, v) {
					out = append(out, v)
				}
			}
			return out, nil
		}
	}
	return numericOrImage(left, right, ast.OpSub)
}

// mulOrDiv applies elementwise to two lists of equal length.
func mulOrDiv(op ast.BinaryOp, left, right any) (any, error) {
	if ll, ok := asList(left); ok {
		if rl, ok := asList(right); ok && len(ll) == len(rl) {
			out := make([]any, len(ll))
			for i := range ll {
				v, err := applyBinary(op, ll[i], rl[i])
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}
	}
	return numericOrImage(left, right, op)
}

func numericOrImage(left, right any, op ast.BinaryOp) (any, error) {
	li, leftIsImage := asImage(left)
	ri, rightIsImage := asImage(right)
	ln, leftIsNumber := asNumber(left)
	rn, rightIsNumber := asNumber(right)

	switch {
	case leftIsImage && rightIsImage:
		return imageImage(op, li, ri)
	case leftIsImage && rightIsNumber:
		return imageScalar(op, li, rn)
	case leftIsNumber && rightIsImage:
		return scalarImage(op, ln, ri)
	case leftIsNumber && rightIsNumber:
		return scalarScalar(op, ln, rn)
	}
	return nil, fmt.Errorf("cannot apply '%s' to %s and %s", op, formatValue(left), formatValue(right))
}

func imageImage(op ast.BinaryOp, left, right *image.Image) (any, error) {
	switch op {
	case ast.OpAdd:
		return image.Add(left, right)
	case ast.OpSub:
		return image.Sub(left, right)
	case ast.OpMul:
		return image.Mul(left, right)
	default:
		return image.Div(left, right)
	}
}

func imageScalar(op ast.BinaryOp, img *image.Image, scalar float64) (any, error) {
	switch op {
	case ast.OpAdd:
		return image.AddScalar(img, scalar), nil
	case ast.OpSub:
		return image.AddScalar(img, -scalar), nil
	case ast.OpMul:
		return image.MulScalar(img, scalar), nil
	default:
		if scalar == 0 {
			return nil, fmt.Errorf("division of image by zero")
		}
		return image.MulScalar(img, 1/scalar), nil
	}
}

func scalarImage(op ast.BinaryOp, scalar float64, img *image.Image) (any, error) {
	switch op {
	case ast.OpAdd:
		return image.AddScalar(img, scalar), nil
	case ast.OpSub:
		return image.SubFromScalar(scalar, img), nil
	case ast.OpMul:
		return image.MulScalar(img, scalar), nil
	default:
		return image.DivIntoScalar(scalar, img), nil
	}
}

func scalarScalar(op ast.BinaryOp, left, right float64) (any, error) {
	switch op {
	case ast.OpAdd:
		return left + right, nil
	case ast.OpSub:
		return left - right, nil
	case ast.OpMul:
		return left * right, nil
	default:
		if right == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return left / right, nil
	}
}

// formatOperand renders a non-string operand for string concatenation.
// Numbers print with two decimals.
func formatOperand(v any) string {
	if n, ok := v.(float64); ok {
		return strconv.FormatFloat(n, 'f', 2, 64)
	}
	return formatValue(v)
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}
