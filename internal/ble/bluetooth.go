package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// Standard SIG services that never carry the printer's data channel.
var sigServices = []bluetooth.UUID{
	bluetooth.New16BitUUID(0x1800), // Generic Access
	bluetooth.New16BitUUID(0x1801), // Generic Attribute
	bluetooth.New16BitUUID(0x180A), // Device Information
	bluetooth.New16BitUUID(0x180F), // Battery
}

// SystemAdapter wraps tinygo-org/bluetooth. On macOS device addresses are
// CoreBluetooth UUIDs, elsewhere they are MAC addresses; both are carried
// as strings.
type SystemAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects connections, state and stateCb.
	mu          sync.Mutex
	connections map[string]*systemConnection // keyed by address
	state       AdapterState
	stateCb     func(AdapterState)
}

// NewSystemAdapter creates an adapter backed by the host Bluetooth stack.
func NewSystemAdapter() *SystemAdapter {
	return &SystemAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*systemConnection),
	}
}

func (a *SystemAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		a.setState(AdapterPoweredOff)
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// The stack reports peripheral disconnects through the adapter-level
	// connect handler with connected=false.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[addr]
		delete(a.connections, addr)
		a.mu.Unlock()
		if ok {
			conn.fireDisconnect()
		}
	})

	a.setState(AdapterPoweredOn)
	return nil
}

func (a *SystemAdapter) State() AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *SystemAdapter) OnStateChange(cb func(AdapterState)) {
	a.mu.Lock()
	a.stateCb = cb
	a.mu.Unlock()
}

func (a *SystemAdapter) setState(st AdapterState) {
	a.mu.Lock()
	changed := a.state != st
	a.state = st
	cb := a.stateCb
	a.mu.Unlock()
	if changed && cb != nil {
		cb(st)
	}
}

func (a *SystemAdapter) Scan(ctx context.Context, found func(Device)) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		found(Device{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *SystemAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// The stack's Connect blocks with its own timeout; wrap it so ctx
	// cancellation returns early.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// A late success is torn down so the peripheral is not left linked.
		go func() {
			if res := <-ch; res.err == nil {
				res.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, res.err)
		}
		conn := &systemConnection{device: res.device}
		a.mu.Lock()
		a.connections[address] = conn
		a.mu.Unlock()
		return conn, nil
	}
}

// Compile-time check that SystemAdapter implements Adapter.
var _ Adapter = (*SystemAdapter)(nil)

type systemConnection struct {
	device bluetooth.Device

	mu           sync.Mutex
	disconnectCb func()
}

func (c *systemConnection) DiscoverServices() ([]Service, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	out := make([]Service, 0, len(svcs))
	for i := range svcs {
		out = append(out, &systemService{svc: svcs[i]})
	}
	return out, nil
}

func (c *systemConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *systemConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.disconnectCb = cb
	c.mu.Unlock()
}

func (c *systemConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type systemService struct {
	svc bluetooth.DeviceService
}

func (s *systemService) UUID() string { return s.svc.UUID().String() }

// DiscoverCharacteristics lists the service's characteristics. The stack
// does not expose GATT property flags portably, so they are inferred:
// standard SIG services report no capabilities, known printer notify
// endpoints report notify only, and every other vendor characteristic
// reports write-without-response and notify.
func (s *systemService) DiscoverCharacteristics() ([]Characteristic, error) {
	chars, err := s.svc.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	out := make([]Characteristic, 0, len(chars))
	for i := range chars {
		props := characteristicProperties(s.svc.UUID(), chars[i].UUID().String())
		out = append(out, &systemCharacteristic{char: chars[i], props: props})
	}
	return out, nil
}

// characteristicProperties infers the capabilities of characteristic char
// in service svc. PropertyWrite is never reported: write-with-response is
// not available on every platform the stack supports.
func characteristicProperties(svc bluetooth.UUID, char string) Property {
	switch {
	case isSIGService(svc):
		return 0
	case matchesUUID(char, knownNotifyCharacteristics):
		return PropertyNotify
	default:
		return PropertyWriteWithoutResponse | PropertyNotify
	}
}

func isSIGService(id bluetooth.UUID) bool {
	for _, sig := range sigServices {
		if id == sig {
			return true
		}
	}
	return false
}

type systemCharacteristic struct {
	char  bluetooth.DeviceCharacteristic
	props Property
}

func (c *systemCharacteristic) UUID() string         { return c.char.UUID().String() }
func (c *systemCharacteristic) Properties() Property { return c.props }

// Write sends without response. Acknowledged writes exist only in the
// darwin and windows backends, and no characteristic reports PropertyWrite.
func (c *systemCharacteristic) Write(data []byte) error {
	return c.WriteWithoutResponse(data)
}

func (c *systemCharacteristic) WriteWithoutResponse(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *systemCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}
