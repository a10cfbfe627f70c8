// Package value holds the value types actors operate on.
package value

// Value is a concrete setting an actor can hold, such as a target
// temperature or an on/off state.
type Value interface {
	// Serialize converts the value into a string the owning actor can
	// deserialize again later.
	Serialize() string
	// Equal reports whether the receiver and other denote the same setting.
	Equal(other Value) bool
	String() string
}
