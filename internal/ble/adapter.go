// Package ble drives a Bluetooth Low Energy receipt printer. It handles
// discovery, connection and write-characteristic resolution, and streams
// ESC/POS jobs in paced chunks.
package ble

import "context"

// Property is a bit set of GATT characteristic capabilities.
type Property uint8

const (
	PropertyWrite Property = 1 << iota
	PropertyWriteWithoutResponse
	PropertyNotify
)

// Has reports whether all bits of q are set.
func (p Property) Has(q Property) bool { return p&q == q }

// Writable reports whether either write mode is supported.
func (p Property) Writable() bool {
	return p&(PropertyWrite|PropertyWriteWithoutResponse) != 0
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	UUID() string
	Properties() Property
	// Write sends data and waits for the peripheral's acknowledgement.
	Write(data []byte) error
	// WriteWithoutResponse sends data without acknowledgement.
	WriteWithoutResponse(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Service is a discovered GATT service.
type Service interface {
	UUID() string
	DiscoverCharacteristics() ([]Characteristic, error)
}

// Device is one advertisement seen during a scan.
type Device struct {
	Name    string
	Address string // MAC on Linux/Windows, CoreBluetooth UUID on macOS
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverServices lists every service the peripheral exposes.
	DiscoverServices() ([]Service, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// State returns the last known radio state.
	State() AdapterState
	// OnStateChange registers a callback for radio state transitions.
	OnStateChange(callback func(AdapterState))
	// Scan reports advertisements to found until ctx is done. It blocks.
	Scan(ctx context.Context, found func(Device)) error
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
