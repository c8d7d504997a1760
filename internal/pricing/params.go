package pricing

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"trip-provider/internal/domain"
)

// Upper bounds on counts read from requests. Prices are products of these
// counts, so they also keep every multiplication far from int overflow.
const (
	MaxPartySize     = 1000
	MaxNights        = 365
	MaxDurationHours = 24
)

// Params is a request parameter map as decoded from JSON or canonical form.
// Accessors accept several spellings of the same key and coerce numbers and
// strings so that 3, 3.0, "3" and json.Number("3") read identically.
type Params map[string]any

// String returns the first non-blank value among keys, or def.
func (p Params) String(def string, keys ...string) string {
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case float32:
			s = strconv.FormatFloat(float64(t), 'f', -1, 32)
		case int:
			s = strconv.Itoa(t)
		case int64:
			s = strconv.FormatInt(t, 10)
		case bool:
			s = strconv.FormatBool(t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return def
}

// Lower is String lower-cased, for enum-like parameters.
func (p Params) Lower(def string, keys ...string) string {
	return strings.ToLower(p.String(def, keys...))
}

// Int returns the first parseable integer among keys, or def.
func (p Params) Int(def int, keys ...string) int {
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case int:
			return t
		case int32:
			return int(t)
		case int64:
			return int(t)
		case float64:
			return floatToInt(t)
		case float32:
			return floatToInt(float64(t))
		case json.Number:
			if n, err := t.Int64(); err == nil || errors.Is(err, strconv.ErrRange) {
				return int(n)
			}
			if f, err := t.Float64(); err == nil {
				return floatToInt(f)
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil || errors.Is(err, strconv.ErrRange) {
				return n
			}
		}
	}
	return def
}

// floatToInt truncates f, saturating at the int range instead of wrapping.
func floatToInt(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	}
	return int(f)
}

// bounded clamps n up to one and rejects it above limit.
func bounded(n, limit int, what string) (int, error) {
	n = atLeastOne(n)
	if n > limit {
		return 0, domain.Validationf("%s must be at most %d", what, limit)
	}
	return n, nil
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
