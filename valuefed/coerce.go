// Type coercion promotion matrix: numeric, string, complex and vector
// payload values convert into each other along a fixed set of rules.
// Grounded on AIStore's cos/convert.go-style any-to-T helpers,
// generalized from "config value parsing" to "federated value coercion".
package valuefed

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/helioscore/cosim/cmn/cos"
)

// Complex is a minimal complex value representation independent of the
// stdlib complex128 so payloads round-trip through plain Go values
// without a reflect-based codec.
type Complex struct{ Re, Im float64 }

func (c Complex) Magnitude() float64 { return math.Hypot(c.Re, c.Im) }

// norm2 is the vector 2-norm, used by vector->double and vector->int
// coercion.
func norm2(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// CoerceToDouble converts an arbitrary published value to float64 per
// the runtime's fixed promotion matrix: complex -> magnitude, vector ->
// 2-norm, string -> parsed float or parsed complex's magnitude, bool ->
// 1/0. Values that cannot be coerced return TYPE_COERCION_FAIL and the
// zero value, per the sticky-bit contract inputs apply at the call site.
func CoerceToDouble(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case Complex:
		return x.Magnitude(), nil
	case []float64:
		return norm2(x), nil
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f, nil
		}
		if c, err := ParseComplex(x); err == nil {
			return c.Magnitude(), nil
		}
		return 0, cos.NewErrTypeCoercion(v, "double")
	default:
		return 0, cos.NewErrTypeCoercion(v, "double")
	}
}

// CoerceToInt follows the same matrix as CoerceToDouble, then floors.
func CoerceToInt(v any) (int64, error) {
	d, err := CoerceToDouble(v)
	if err != nil {
		return 0, cos.NewErrTypeCoercion(v, "int")
	}
	return int64(math.Floor(d)), nil
}

// CoerceToString stringifies any supported value kind.
func CoerceToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case Complex:
		return fmt.Sprintf("%g%+gj", x.Re, x.Im), nil
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	default:
		return "", cos.NewErrTypeCoercion(v, "string")
	}
}

// CoerceToComplex parses or reinterprets v as Complex.
func CoerceToComplex(v any) (Complex, error) {
	switch x := v.(type) {
	case Complex:
		return x, nil
	case float64:
		return Complex{Re: x}, nil
	case int64:
		return Complex{Re: float64(x)}, nil
	case string:
		return ParseComplex(x)
	default:
		return Complex{}, cos.NewErrTypeCoercion(v, "complex")
	}
}

// CoerceToVector expands scalars into a 1-element vector and passes
// vectors through unchanged.
func CoerceToVector(v any) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return x, nil
	case float64:
		return []float64{x}, nil
	case int64:
		return []float64{float64(x)}, nil
	default:
		return nil, cos.NewErrTypeCoercion(v, "vector")
	}
}

// ParseComplex parses strings of the form "re+imj" or "re-imj", the
// format CoerceToString emits and requestTime-adjacent test fixtures use
// (e.g. "3.14159+2j").
func ParseComplex(s string) (Complex, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "j") && !strings.HasSuffix(s, "J") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Complex{Re: f}, nil
		}
		return Complex{}, fmt.Errorf("valuefed: not a complex literal: %q", s)
	}
	body := s[:len(s)-1]
	// find the split between real and imaginary parts: the last +/- not
	// at index 0 and not immediately preceded by 'e'/'E' (exponent sign).
	splitAt := -1
	for i := len(body) - 1; i > 0; i-- {
		if (body[i] == '+' || body[i] == '-') && body[i-1] != 'e' && body[i-1] != 'E' {
			splitAt = i
			break
		}
	}
	if splitAt < 0 {
		im, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Complex{}, fmt.Errorf("valuefed: bad complex literal %q: %w", s, err)
		}
		return Complex{Im: im}, nil
	}
	re, err := strconv.ParseFloat(body[:splitAt], 64)
	if err != nil {
		return Complex{}, fmt.Errorf("valuefed: bad complex literal %q: %w", s, err)
	}
	im, err := strconv.ParseFloat(body[splitAt:], 64)
	if err != nil {
		return Complex{}, fmt.Errorf("valuefed: bad complex literal %q: %w", s, err)
	}
	return Complex{Re: re, Im: im}, nil
}
