package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockCharacteristic records writes and allows subscribing.
type mockCharacteristic struct {
	uuid  string
	props Property

	mu         sync.Mutex
	writes     [][]byte
	withResp   int
	failAt     int           // 1-based write number that fails; 0 never fails
	block      chan struct{} // when set, writes wait for it to close
	callback   func([]byte)
	subscribed bool
}

func newWriteChar(uuid string) *mockCharacteristic {
	return &mockCharacteristic{uuid: uuid, props: PropertyWriteWithoutResponse}
}

func (c *mockCharacteristic) UUID() string         { return c.uuid }
func (c *mockCharacteristic) Properties() Property { return c.props }

func (c *mockCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	c.withResp++
	c.mu.Unlock()
	return c.WriteWithoutResponse(data)
}

func (c *mockCharacteristic) WriteWithoutResponse(data []byte) error {
	c.mu.Lock()
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.writes)+1 == c.failAt {
		c.failAt = 0
		return errors.New("mock: write rejected")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	c.subscribed = true
	return nil
}

// SimulateNotification sends a notification to the subscriber.
func (c *mockCharacteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (c *mockCharacteristic) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *mockCharacteristic) isSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

type mockService struct {
	uuid  string
	chars []Characteristic
	err   error
}

func (s *mockService) UUID() string { return s.uuid }

func (s *mockService) DiscoverCharacteristics() ([]Characteristic, error) {
	return s.chars, s.err
}

// mockConnection simulates a BLE connection.
type mockConnection struct {
	mu           sync.Mutex
	services     []Service
	discoverErr  error
	disconnectCb func()
	disconnected bool
	// dropOnRegister fires the disconnect callback as soon as it is
	// registered, before the session has stored the connection.
	dropOnRegister bool
}

// newMockConnection returns a connection exposing one vendor service with a
// single write characteristic.
func newMockConnection() (*mockConnection, *mockCharacteristic) {
	tx := newWriteChar("0000ff02-0000-1000-8000-00805f9b34fb")
	return &mockConnection{
		services: []Service{&mockService{uuid: "0000ff00-0000-1000-8000-00805f9b34fb", chars: []Characteristic{tx}}},
	}, tx
}

func (c *mockConnection) DiscoverServices() ([]Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.services, c.discoverErr
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.disconnectCb = cb
	drop := c.dropOnRegister
	c.mu.Unlock()
	if drop {
		cb()
	}
}

// SimulateDisconnect triggers the disconnect callback.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *mockConnection) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// advert is an advertisement delivered after a delay from scan start.
type advert struct {
	after  time.Duration
	device Device
}

// mockAdapter simulates the BLE adapter.
type mockAdapter struct {
	mu        sync.Mutex
	state     AdapterState
	enableErr error
	enables   int
	stateCb   func(AdapterState)
	adverts   []advert
	scanErr   error

	connection   *mockConnection
	connectErr   error
	connectDelay time.Duration
	connectBlock bool // wait for ctx instead of returning
	ignoreCtx    bool // return the connection after connectDelay even if ctx is done
	connectCtx   context.Context
}

func newMockAdapter(adverts ...advert) *mockAdapter {
	conn, _ := newMockConnection()
	return &mockAdapter{
		state:      AdapterPoweredOn,
		adverts:    adverts,
		connection: conn,
	}
}

func (a *mockAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enables++
	return a.enableErr
}

func (a *mockAdapter) State() AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *mockAdapter) OnStateChange(cb func(AdapterState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stateCb = cb
}

// SimulateStateChange updates the radio state and notifies the listener.
func (a *mockAdapter) SimulateStateChange(st AdapterState) {
	a.mu.Lock()
	a.state = st
	cb := a.stateCb
	a.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

func (a *mockAdapter) Scan(ctx context.Context, found func(Device)) error {
	a.mu.Lock()
	adverts := append([]advert(nil), a.adverts...)
	scanErr := a.scanErr
	a.mu.Unlock()
	if scanErr != nil {
		return scanErr
	}

	start := time.Now()
	for _, adv := range adverts {
		wait := time.Until(start.Add(adv.after))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		found(adv.device)
	}
	<-ctx.Done()
	return nil
}

func (a *mockAdapter) Connect(ctx context.Context, _ string) (Connection, error) {
	a.mu.Lock()
	a.connectCtx = ctx
	conn, err := a.connection, a.connectErr
	delay, block, ignore := a.connectDelay, a.connectBlock, a.ignoreCtx
	a.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		if ignore {
			time.Sleep(delay)
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (a *mockAdapter) lastConnectCtx() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectCtx
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}

func TestMockConnectionImplementsInterface(t *testing.T) {
	var _ Connection = (*mockConnection)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ Characteristic = (*mockCharacteristic)(nil)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
