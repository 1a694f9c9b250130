package internal

import (
	"fmt"
	"strconv"
)

// Scalar lists the types query and path values can be parsed into.
type Scalar interface {
	string | int | int64 | float64 | bool
}

// ContextValue returns the value stored under key, or the zero value.
func ContextValue[T any](c Context, key any) T {
	if v, ok := c.Get(key).(T); ok {
		return v
	}
	var zero T
	return zero
}

// QueryDefault parses a query parameter into T. An absent or empty value
// yields def; a value that does not parse is an error.
func QueryDefault[T Scalar](c Context, name string, def T) (T, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := parse[T](raw)
	if err != nil {
		return def, fmt.Errorf("query %q: %w", name, err)
	}
	return v, nil
}

// Param parses a path parameter into T.
func Param[T Scalar](c Context, name string) (T, error) {
	v, err := parse[T](c.Param(name))
	if err != nil {
		return v, fmt.Errorf("param %q: %w", name, err)
	}
	return v, nil
}

func parse[T Scalar](raw string) (T, error) {
	var out T
	var (
		v   any
		err error
	)
	switch any(out).(type) {
	case string:
		v = raw
	case int:
		v, err = strconv.Atoi(raw)
	case int64:
		v, err = strconv.ParseInt(raw, 10, 64)
	case float64:
		v, err = strconv.ParseFloat(raw, 64)
	case bool:
		v, err = strconv.ParseBool(raw)
	default:
		return out, fmt.Errorf("unsupported type %T", out)
	}
	if err != nil {
		return out, err
	}
	return v.(T), nil
}
