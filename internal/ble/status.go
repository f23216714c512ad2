package ble

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultNameMarkers are the advertised-name fragments that identify a
// Rongta-compatible receipt printer.
var DefaultNameMarkers = []string{"RPP", "RONGTA", "PRINTER"}

// DiscoveredDevice is a printer seen during the most recent scan. Devices
// are identified by ID alone.
type DiscoveredDevice struct {
	ID           uuid.UUID `json:"id"`
	Address      string    `json:"address"`
	Name         string    `json:"name"`
	RSSI         int       `json:"rssi"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// DeviceID derives a stable identifier from an adapter address. CoreBluetooth
// addresses are already UUIDs; MAC addresses are hashed into a name-based
// UUID so the same printer keeps its ID across scans.
func DeviceID(address string) uuid.UUID {
	if id, err := uuid.Parse(address); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("ble://"+strings.ToUpper(address)))
}

// matchesMarker reports whether name contains any marker, ignoring case.
func matchesMarker(name string, markers []string) bool {
	if name == "" {
		return false
	}
	upper := strings.ToUpper(name)
	for _, m := range markers {
		if m != "" && strings.Contains(upper, strings.ToUpper(m)) {
			return true
		}
	}
	return false
}

// Status is a read-only snapshot of the session for UI and API consumers.
type Status struct {
	State     ConnectionState    `json:"state"`
	Message   string             `json:"status_message"`
	Connected bool               `json:"is_connected"`
	Scanning  bool               `json:"is_scanning"`
	Printing  bool               `json:"is_printing"`
	Devices   []DiscoveredDevice `json:"discovered_devices"`
	Printer   *DiscoveredDevice  `json:"printer,omitempty"`
}

// subscriber holds a buffered channel for one status listener.
type subscriber struct {
	ch chan Status
}

// broadcaster fans status snapshots out to listeners. Slow listeners miss
// snapshots rather than stalling the session.
type broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func (b *broadcaster) subscribe() (<-chan Status, func()) {
	sub := &subscriber{ch: make(chan Status, 16)}
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[*subscriber]struct{})
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}
	return sub.ch, unsub
}

func (b *broadcaster) publish(st Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- st:
		default:
		}
	}
}

// closeAll closes every listener channel.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
