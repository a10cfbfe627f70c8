package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Temp holds a target temperature. It is either a numeric value in the
// thermostat's unit or the special OFF marker that turns a thermostat off.
type Temp struct {
	off bool
	val float64
}

// Off is the Temp that turns a thermostat off.
var Off = Temp{off: true}

// NewTemp returns a numeric temperature.
func NewTemp(v float64) Temp {
	return Temp{val: v}
}

// ParseTemp converts raw into a Temp. Accepted inputs are numeric types,
// Temp itself and strings; the string "OFF" (any case, whitespace ignored)
// yields the OFF marker.
func ParseTemp(raw any) (Temp, error) {
	switch v := raw.(type) {
	case Temp:
		return v, nil
	case float64:
		return NewTemp(v), nil
	case float32:
		return NewTemp(float64(v)), nil
	case int:
		return NewTemp(float64(v)), nil
	case int64:
		return NewTemp(float64(v)), nil
	case string:
		s := strings.Join(strings.Fields(v), "")
		if strings.EqualFold(s, "OFF") {
			return Off, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Temp{}, fmt.Errorf("%q is no valid temperature", v)
		}
		return NewTemp(f), nil
	default:
		return Temp{}, fmt.Errorf("%v (%T) is no valid temperature", raw, raw)
	}
}

// IsOff reports whether this temperature means OFF.
func (t Temp) IsOff() bool { return t.off }

// Float returns the numeric value. Calling it on OFF is an error.
func (t Temp) Float() (float64, error) {
	if t.off {
		return 0, fmt.Errorf("OFF has no numeric value")
	}
	return t.val, nil
}

// Add returns t shifted by delta. OFF absorbs arithmetic on either side.
func (t Temp) Add(delta Temp) Temp {
	if t.off || delta.off {
		return Off
	}
	return NewTemp(t.val + delta.val)
}

// Sub returns t shifted by -delta. OFF absorbs arithmetic on either side.
func (t Temp) Sub(delta Temp) Temp {
	return t.Add(delta.Neg())
}

// Neg returns the negated temperature. OFF stays OFF.
func (t Temp) Neg() Temp {
	if t.off {
		return Off
	}
	return NewTemp(-t.val)
}

// Less orders temperatures; OFF sorts below every numeric value.
func (t Temp) Less(other Temp) bool {
	if t.off {
		return !other.off
	}
	if other.off {
		return false
	}
	return t.val < other.val
}

// Equal implements Value.
func (t Temp) Equal(other Value) bool {
	o, ok := other.(Temp)
	if !ok {
		return false
	}
	if t.off || o.off {
		return t.off == o.off
	}
	return t.val == o.val
}

// Serialize converts the temperature into a string ParseTemp accepts again.
func (t Temp) Serialize() string {
	if t.off {
		return "OFF"
	}
	return strconv.FormatFloat(t.val, 'f', -1, 64)
}

func (t Temp) String() string {
	if t.off {
		return "OFF"
	}
	return t.Serialize() + "°"
}
