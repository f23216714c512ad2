package ble

import "fmt"

// StateKind enumerates the session states.
type StateKind int

const (
	StateDisconnected StateKind = iota
	StateScanning
	StateConnecting
	StateConnected
	StatePrinting
	StateError
)

var stateNames = [...]string{"disconnected", "scanning", "connecting", "connected", "printing", "error"}

func (k StateKind) String() string {
	if int(k) < len(stateNames) {
		return stateNames[k]
	}
	return fmt.Sprintf("StateKind(%d)", int(k))
}

func (k StateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ConnectionState is the session's current state. Message is set only for
// StateError.
type ConnectionState struct {
	Kind    StateKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

var (
	Disconnected = ConnectionState{Kind: StateDisconnected}
	Scanning     = ConnectionState{Kind: StateScanning}
	Connecting   = ConnectionState{Kind: StateConnecting}
	Connected    = ConnectionState{Kind: StateConnected}
	Printing     = ConnectionState{Kind: StatePrinting}
)

// Failed returns the error state carrying msg.
func Failed(msg string) ConnectionState {
	return ConnectionState{Kind: StateError, Message: msg}
}

// IsOperational reports whether a print job may start.
func (s ConnectionState) IsOperational() bool {
	return s.Kind == StateConnected
}

// String returns the display text shown to operators.
func (s ConnectionState) String() string {
	switch s.Kind {
	case StateDisconnected:
		return "Disconnected"
	case StateScanning:
		return "Scanning..."
	case StateConnecting:
		return "Connecting..."
	case StateConnected:
		return "Connected"
	case StatePrinting:
		return "Printing..."
	case StateError:
		return "Error: " + s.Message
	default:
		return s.Kind.String()
	}
}

// AdapterState mirrors the power/authorization state of the local radio.
type AdapterState int

const (
	AdapterUnknown AdapterState = iota
	AdapterResetting
	AdapterUnsupported
	AdapterUnauthorized
	AdapterPoweredOff
	AdapterPoweredOn
)

// Message is the operator-facing description of the adapter state.
func (s AdapterState) Message() string {
	switch s {
	case AdapterPoweredOn:
		return "Bluetooth ready"
	case AdapterPoweredOff:
		return "Bluetooth is turned off"
	case AdapterResetting:
		return "Bluetooth is resetting"
	case AdapterUnauthorized:
		return "Bluetooth access denied"
	case AdapterUnsupported:
		return "Bluetooth not supported"
	default:
		return "Bluetooth state unknown"
	}
}
