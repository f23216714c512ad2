package ble

import "errors"

// Errors returned by Session operations. Adapter-level causes are wrapped,
// so test with errors.Is.
var (
	ErrBluetoothNotAvailable = errors.New("ble: bluetooth is not available")
	ErrConnectionTimeout     = errors.New("ble: connection timed out")
	ErrConnectionFailed      = errors.New("ble: failed to connect to printer")
	ErrNoServicesFound       = errors.New("ble: no printer services found")
	ErrPrinterNotReady       = errors.New("ble: printer is not ready")
	ErrPrintTimeout          = errors.New("ble: print job timed out")
	ErrWriteFailed           = errors.New("ble: write failed")
	ErrBusy                  = errors.New("ble: operation already in progress")
	ErrDisconnected          = errors.New("ble: disconnected")
	ErrUnknownDevice         = errors.New("ble: device not found in last scan")
	ErrNoReceipt             = errors.New("ble: no receipt to print")
)
