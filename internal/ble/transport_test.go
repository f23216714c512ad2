package ble

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingWriter captures chunks and the time each arrived.
type recordingWriter struct {
	mu     sync.Mutex
	chunks [][]byte
	times  []time.Time
	failAt int
}

func (w *recordingWriter) WriteChunk(chunk []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAt > 0 && len(w.chunks)+1 == w.failAt {
		return errors.New("link lost")
	}
	w.chunks = append(w.chunks, append([]byte(nil), chunk...))
	w.times = append(w.times, time.Now())
	return nil
}

func TestTransportSendInOrder(t *testing.T) {
	data := make([]byte, 45)
	for i := range data {
		data[i] = byte(i)
	}
	w := &recordingWriter{}
	var progress [][2]int
	tr := NewTransport(20, time.Millisecond)

	err := tr.Send(context.Background(), data, w, func(sent, total int) {
		progress = append(progress, [2]int{sent, total})
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(w.chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(w.chunks))
	}
	if got := bytes.Join(w.chunks, nil); !bytes.Equal(got, data) {
		t.Error("chunks do not reassemble to the original payload")
	}
	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(progress) != len(want) {
		t.Fatalf("progress calls = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}
}

func TestTransportPacesWrites(t *testing.T) {
	w := &recordingWriter{}
	tr := NewTransport(10, 30*time.Millisecond)
	if err := tr.Send(context.Background(), make([]byte, 30), w, nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	for i := 1; i < len(w.times); i++ {
		if gap := w.times[i].Sub(w.times[i-1]); gap < 30*time.Millisecond {
			t.Errorf("gap before chunk %d = %v, want >= 30ms", i, gap)
		}
	}
}

func TestTransportNoDelayAfterLastChunk(t *testing.T) {
	tr := NewTransport(20, 500*time.Millisecond)
	start := time.Now()
	if err := tr.Send(context.Background(), []byte("short"), &recordingWriter{}, nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("single-chunk send took %v, want no pacing delay", elapsed)
	}
}

func TestTransportAbortsOnFirstError(t *testing.T) {
	w := &recordingWriter{failAt: 2}
	tr := NewTransport(5, time.Millisecond)
	err := tr.Send(context.Background(), make([]byte, 25), w, nil)
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("Send() error = %v, want ErrWriteFailed", err)
	}
	if len(w.chunks) != 1 {
		t.Errorf("%d chunks written after failure at chunk 2, want 1", len(w.chunks))
	}
}

func TestTransportStopsOnCancel(t *testing.T) {
	w := &recordingWriter{}
	tr := NewTransport(1, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := tr.Send(ctx, make([]byte, 100), w, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}
	if len(w.chunks) >= 100 {
		t.Error("cancelled send wrote every chunk")
	}
}

func TestTransportEmptyPayload(t *testing.T) {
	w := &recordingWriter{}
	if err := NewTransport(0, 0).Send(context.Background(), nil, w, nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(w.chunks) != 0 {
		t.Errorf("empty payload produced %d writes", len(w.chunks))
	}
}

func TestCharacteristicWriterPicksWriteMode(t *testing.T) {
	withResp := &mockCharacteristic{props: PropertyWrite | PropertyWriteWithoutResponse}
	if err := (characteristicWriter{char: withResp}).WriteChunk([]byte{1}); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}
	if withResp.withResp != 1 {
		t.Errorf("write-with-response count = %d, want 1", withResp.withResp)
	}

	noResp := &mockCharacteristic{props: PropertyWriteWithoutResponse}
	if err := (characteristicWriter{char: noResp}).WriteChunk([]byte{1}); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}
	if noResp.withResp != 0 || len(noResp.writes) != 1 {
		t.Errorf("withResp = %d, writes = %d, want 0 and 1", noResp.withResp, len(noResp.writes))
	}
}
