package value

import (
	"fmt"
	"strings"
)

// OnOff is the value type of switch-like actors.
type OnOff bool

const (
	On        OnOff = true
	OffSwitch OnOff = false
)

// ParseOnOff converts raw into an OnOff value. Accepted inputs are bools
// and the strings "on"/"off"/"true"/"false" (any case).
func ParseOnOff(raw any) (OnOff, error) {
	switch v := raw.(type) {
	case OnOff:
		return v, nil
	case bool:
		return OnOff(v), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "on", "true":
			return On, nil
		case "off", "false":
			return OffSwitch, nil
		}
	}
	return OffSwitch, fmt.Errorf("%v (%T) is no valid on/off state", raw, raw)
}

// Equal implements Value.
func (o OnOff) Equal(other Value) bool {
	v, ok := other.(OnOff)
	return ok && v == o
}

// Serialize converts the state into a string ParseOnOff accepts again.
func (o OnOff) Serialize() string {
	if o {
		return "on"
	}
	return "off"
}

func (o OnOff) String() string { return o.Serialize() }
