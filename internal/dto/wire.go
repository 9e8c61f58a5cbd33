package dto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The wire format drops fields with no value, so an absent numeric arrives
// as the empty string rather than as zero. The Optional* types keep that
// distinction intact in both directions: "" decodes to an unset value and
// an unset value encodes back to "", never to a default.

// OptionalFloat is a numeric wire field where absence is meaningful.
type OptionalFloat struct {
	Defined bool
	Value   float64
}

// Float wraps a concrete value.
func Float(v float64) OptionalFloat {
	return OptionalFloat{Defined: true, Value: v}
}

// FloatFrom converts a domain pointer into its wire representation.
func FloatFrom(p *float64) OptionalFloat {
	if p == nil {
		return OptionalFloat{}
	}
	return Float(*p)
}

// Ptr converts the wire value into a domain pointer (nil when absent).
func (f OptionalFloat) Ptr() *float64 {
	if !f.Defined {
		return nil
	}
	v := f.Value
	return &v
}

// UnmarshalJSON accepts a JSON number, a numeric string, the empty-string
// sentinel, or null. Parsing the same value twice is idempotent.
func (f *OptionalFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = OptionalFloat{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*f = OptionalFloat{}
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric value %q: %w", raw, err)
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// MarshalJSON renders an absent value as the empty-string sentinel.
func (f OptionalFloat) MarshalJSON() ([]byte, error) {
	if !f.Defined {
		return []byte(`""`), nil
	}
	return json.Marshal(f.Value)
}

// OptionalBool is a boolean wire field where absence is meaningful.
type OptionalBool struct {
	Defined bool
	Value   bool
}

// Bool wraps a concrete value.
func Bool(v bool) OptionalBool {
	return OptionalBool{Defined: true, Value: v}
}

// BoolFrom converts a domain pointer into its wire representation.
func BoolFrom(p *bool) OptionalBool {
	if p == nil {
		return OptionalBool{}
	}
	return Bool(*p)
}

// Ptr converts the wire value into a domain pointer (nil when absent).
func (f OptionalBool) Ptr() *bool {
	if !f.Defined {
		return nil
	}
	v := f.Value
	return &v
}

// UnmarshalJSON accepts true/false, 0/1, their string spellings, the
// empty-string sentinel, or null.
func (f *OptionalBool) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = OptionalBool{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.ToLower(strings.TrimSpace(raw))
		switch raw {
		case "":
			*f = OptionalBool{}
		case "true", "1":
			*f = Bool(true)
		case "false", "0":
			*f = Bool(false)
		default:
			return fmt.Errorf("invalid boolean value %q", raw)
		}
		return nil
	}
	switch s {
	case "true":
		*f = Bool(true)
		return nil
	case "false":
		*f = Bool(false)
		return nil
	case "0":
		*f = Bool(false)
		return nil
	case "1":
		*f = Bool(true)
		return nil
	}
	return fmt.Errorf("invalid boolean value %s", s)
}

// MarshalJSON renders an absent value as the empty-string sentinel.
func (f OptionalBool) MarshalJSON() ([]byte, error) {
	if !f.Defined {
		return []byte(`""`), nil
	}
	return json.Marshal(f.Value)
}

// wireTimeLayouts are the timestamp spellings accepted off the wire, most
// specific first.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// WireTime parses ISO-ish timestamps and marshals back as RFC3339 UTC. The
// zero time round-trips to the empty string.
type WireTime struct {
	time.Time
}

// TimeFrom wraps a time value.
func TimeFrom(t time.Time) WireTime {
	return WireTime{Time: t}
}

// ParseWireTime parses a single ISO-ish timestamp string.
func ParseWireTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *WireTime) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := ParseWireTime(raw)
	if err != nil {
		return err
	}
	w.Time = t
	return nil
}

// MarshalJSON implements json.Marshaler.
func (w WireTime) MarshalJSON() ([]byte, error) {
	if w.Time.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(w.Time.UTC().Format(time.RFC3339))
}
