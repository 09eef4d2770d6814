// Package value implements the canonical serialization of literal values.
//
// Two values are content-equal iff their Type and canonical payload are equal.
// The canonical forms are:
//
//   - int:      base-10 integer, no leading zeros or plus sign
//   - float:    shortest 'g' representation that round-trips; -0 becomes 0;
//     NaN and infinities are rejected
//   - text:     Unicode NFC
//   - datetime: RFC 3339 in UTC with trailing zero nanoseconds trimmed
//   - date:     YYYY-MM-DD
//   - bool:     "true" or "false"
//
// An integral float keeps its float tag, so float 1 and int 1 are not equal.
package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Type tags the scalar kind held by a value.
type Type string

const (
	Int      Type = "int"
	Float    Type = "float"
	Text     Type = "text"
	DateTime Type = "datetime"
	Date     Type = "date"
	Bool     Type = "bool"
)

// Types lists every supported value type.
var Types = []Type{Int, Float, Text, DateTime, Date, Bool}

const dateLayout = "2006-01-02"

var (
	ErrUnsupported = errors.New("unsupported value type")
	ErrInvalid     = errors.New("invalid value payload")
)

// Valid reports whether t is a supported value type.
func (t Type) Valid() bool {
	switch t {
	case Int, Float, Text, DateTime, Date, Bool:
		return true
	}
	return false
}

// Encode infers the value type of v and returns its canonical payload.
// time.Time values are always encoded as datetime; use EncodeDate for dates.
func Encode(v any) (Type, string, error) {
	switch x := v.(type) {
	case int:
		return Int, strconv.FormatInt(int64(x), 10), nil
	case int32:
		return Int, strconv.FormatInt(int64(x), 10), nil
	case int64:
		return Int, strconv.FormatInt(x, 10), nil
	case float32:
		p, err := formatFloat(float64(x))
		return Float, p, err
	case float64:
		p, err := formatFloat(x)
		return Float, p, err
	case string:
		return Text, norm.NFC.String(x), nil
	case bool:
		return Bool, strconv.FormatBool(x), nil
	case time.Time:
		return DateTime, formatDateTime(x), nil
	}
	return "", "", fmt.Errorf("%w: %T", ErrUnsupported, v)
}

// EncodeDate encodes the calendar date of t.
func EncodeDate(t time.Time) (Type, string) {
	return Date, t.Format(dateLayout)
}

// Decode parses a payload into its Go representation.
func Decode(t Type, payload string) (any, error) {
	switch t {
	case Int:
		n, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return n, nil
	case Float:
		f, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite float", ErrInvalid)
		}
		return f, nil
	case Text:
		return payload, nil
	case DateTime:
		ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return ts.UTC(), nil
	case Date:
		d, err := time.Parse(dateLayout, strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return d, nil
	case Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, t)
}

// Canonicalize rewrites a payload of type t into its canonical form.
func Canonicalize(t Type, payload string) (string, error) {
	v, err := Decode(t, payload)
	if err != nil {
		return "", err
	}
	switch t {
	case Int:
		return strconv.FormatInt(v.(int64), 10), nil
	case Float:
		return formatFloat(v.(float64))
	case Text:
		return norm.NFC.String(v.(string)), nil
	case DateTime:
		return formatDateTime(v.(time.Time)), nil
	case Date:
		return v.(time.Time).Format(dateLayout), nil
	case Bool:
		return strconv.FormatBool(v.(bool)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, t)
}

// ContentKey returns the equality key of a canonical payload.
func ContentKey(t Type, payload string) string {
	return string(t) + "\x00" + payload
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: non-finite float", ErrInvalid)
	}
	if f == 0 {
		f = 0
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
