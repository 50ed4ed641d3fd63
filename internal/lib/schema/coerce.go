package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// DateLayout is the canonical representation of date properties.
const DateLayout = "2006-01-02"

// Mode selects how Coerce treats keys that are absent from the input.
type Mode int

const (
	// ModeCreate applies defaults and enforces required properties.
	ModeCreate Mode = iota
	// ModeMerge coerces only the keys present in the input; the result is
	// meant to be merged over existing properties.
	ModeMerge
)

var errNotScalar = errors.New("must be a scalar value")

// Coerce validates input against s and returns the coerced property bag.
//
// Unknown keys are rejected. In ModeCreate defaults are applied to missing
// keys and required keys must end up with a value. A nil value clears an
// optional key: in ModeMerge it is kept as nil in the result so callers can
// delete it, in ModeCreate it is dropped.
func (s Schema) Coerce(input map[string]any, mode Mode) (map[string]any, error) {
	out := make(map[string]any, len(s))
	var problems FieldErrors

	for key := range input {
		if _, ok := s.Lookup(key); !ok {
			problems = append(problems, FieldError{Key: key, Message: "is not defined by the resource type"})
		}
	}

	for _, p := range s {
		raw, present := input[p.Key]

		if !present {
			if mode == ModeCreate {
				if p.HasDefault() {
					v, err := CoerceValue(p, p.Default)
					if err != nil {
						problems = append(problems, FieldError{Key: p.Key, Message: "default " + err.Error()})
						continue
					}
					out[p.Key] = v
				} else if p.Required {
					problems = append(problems, FieldError{Key: p.Key, Message: "is required"})
				}
			}
			continue
		}

		if raw == nil {
			if p.Required {
				problems = append(problems, FieldError{Key: p.Key, Message: "is required"})
				continue
			}
			if mode == ModeMerge {
				out[p.Key] = nil
			}
			continue
		}

		v, err := CoerceValue(p, raw)
		if err != nil {
			problems = append(problems, FieldError{Key: p.Key, Message: err.Error()})
			continue
		}
		out[p.Key] = v
	}

	if len(problems) > 0 {
		slices.SortFunc(problems, func(a, b FieldError) int { return strings.Compare(a.Key, b.Key) })
		return nil, problems
	}
	return out, nil
}

// Merge applies a ModeMerge patch onto current: nil values delete keys.
// Required properties are checked against the merged result.
func (s Schema) Merge(current, patch map[string]any) (map[string]any, error) {
	coerced, err := s.Coerce(patch, ModeMerge)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(current)+len(coerced))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range coerced {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	var problems FieldErrors
	for _, p := range s {
		if _, ok := merged[p.Key]; !ok && p.Required {
			problems = append(problems, FieldError{Key: p.Key, Message: "is required"})
		}
	}
	if len(problems) > 0 {
		return nil, problems
	}
	return merged, nil
}

// CoerceValue converts v into the canonical Go value for p.Type:
// string for string/text/enum/date, float64 for number, int64 for integer
// and bool for boolean.
func CoerceValue(p Property, v any) (any, error) {
	if v == nil {
		return nil, errors.New("must not be null")
	}

	switch p.Type {
	case TypeString, TypeText:
		s, err := coerceString(v)
		if err != nil {
			return nil, err
		}
		limit := MaxStringLength
		if p.Type == TypeText {
			limit = MaxTextLength
		}
		if p.Required && s == "" {
			return nil, errors.New("must not be blank")
		}
		if len([]rune(s)) > limit {
			return nil, fmt.Errorf("must not exceed %d characters", limit)
		}
		return s, nil

	case TypeNumber:
		f, err := coerceFloat(v)
		if err != nil {
			return nil, errors.New("must be a number")
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errors.New("must be a finite number")
		}
		return f, nil

	case TypeInteger:
		i, err := coerceInt(v)
		if err != nil {
			return nil, errors.New("must be an integer")
		}
		return i, nil

	case TypeBoolean:
		switch b := v.(type) {
		case string:
			v = strings.ToLower(strings.TrimSpace(b))
		case float64:
			if b != 0 && b != 1 {
				return nil, errors.New("must be a boolean")
			}
		case int:
			if b != 0 && b != 1 {
				return nil, errors.New("must be a boolean")
			}
		}
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, errors.New("must be a boolean")
		}
		return b, nil

	case TypeDate:
		return coerceDate(v)

	case TypeEnum:
		s, err := coerceString(v)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(p.Options, s) {
			return nil, fmt.Errorf("must be one of: %s", strings.Join(p.Options, ", "))
		}
		return s, nil
	}

	return nil, fmt.Errorf("has unknown type %q", p.Type)
}

// decimalPattern matches plain decimal numerals: no base prefixes, digit
// separators or Inf/NaN spellings.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// int64 bounds as float64; 2^63 itself is out of range.
const (
	minInt64Float = -(1 << 63)
	maxInt64Float = 1 << 63
)

func coerceFloat(v any) (float64, error) {
	switch n := v.(type) {
	case bool:
		return 0, errors.New("boolean")
	case json.Number:
		return parseDecimal(string(n))
	case string:
		return parseDecimal(n)
	}
	return cast.ToFloat64E(v)
}

func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}
	return strconv.ParseFloat(s, 64)
}

func coerceInt(v any) (int64, error) {
	switch n := v.(type) {
	case bool:
		return 0, errors.New("boolean")
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, errors.New("out of range")
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, errors.New("out of range")
		}
		return int64(n), nil
	case json.Number:
		return parseInteger(string(n))
	case string:
		return parseInteger(n)
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	return integralFloat(f)
}

// parseInteger accepts base-10 integers and decimal numerals with an
// integral value such as "5.0" or "1e3".
func parseInteger(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	return integralFloat(f)
}

func integralFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errors.New("not an integer")
	}
	if f < minInt64Float || f >= maxInt64Float {
		return 0, errors.New("out of range")
	}
	return int64(f), nil
}

func coerceString(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any:
		return "", errNotScalar
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", errNotScalar
	}
	return strings.TrimSpace(s), nil
}

func coerceDate(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(DateLayout), nil
	case string:
		s := strings.TrimSpace(t)
		if d, err := time.Parse(DateLayout, s); err == nil {
			return d.Format(DateLayout), nil
		}
		d, err := cast.ToTimeE(s)
		if err != nil {
			return nil, errors.New("must be a date (YYYY-MM-DD)")
		}
		return d.Format(DateLayout), nil
	}
	return nil, errors.New("must be a date (YYYY-MM-DD)")
}
