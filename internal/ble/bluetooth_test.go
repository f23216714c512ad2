package ble

import (
	"testing"

	"tinygo.org/x/bluetooth"
)

func TestCharacteristicProperties(t *testing.T) {
	issc, err := bluetooth.ParseUUID("49535343-FE7D-4AE5-8FA9-9FAFD205E455")
	if err != nil {
		t.Fatalf("ParseUUID() error = %v", err)
	}
	tests := []struct {
		name string
		svc  bluetooth.UUID
		char string
		want Property
	}{
		{"device information", bluetooth.New16BitUUID(0x180A), "00002a29-0000-1000-8000-00805f9b34fb", 0},
		{"issc notify", issc, "49535343-1E4D-4BD9-BA61-23C647249616", PropertyNotify},
		{"nordic notify", issc, "6e400003-b5a3-f393-e0a9-e50e24dcca9e", PropertyNotify},
		{"issc write", issc, "49535343-8841-43F4-A8D4-ECBE34729BB3", PropertyWriteWithoutResponse | PropertyNotify},
		{"unknown vendor", issc, "0000ff02-0000-1000-8000-00805f9b34fb", PropertyWriteWithoutResponse | PropertyNotify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := characteristicProperties(tt.svc, tt.char)
			if got != tt.want {
				t.Errorf("characteristicProperties() = %v, want %v", got, tt.want)
			}
			// Acknowledged writes are not available on every platform.
			if got.Has(PropertyWrite) {
				t.Error("PropertyWrite must never be reported")
			}
		})
	}
}
