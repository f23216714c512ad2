// internal/ble/protocol/chunk_test.go
package protocol

import (
	"bytes"
	"testing"
)

const testChunkSize = 20

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestChunkBytesFitsInOne(t *testing.T) {
	chunks := ChunkBytes([]byte("hello"), testChunkSize)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if string(chunks[0]) != "hello" {
		t.Errorf("chunk[0] = %q, want %q", chunks[0], "hello")
	}
}

func TestChunkBytesEmpty(t *testing.T) {
	if chunks := ChunkBytes(nil, testChunkSize); len(chunks) != 0 {
		t.Errorf("got %d chunks for empty payload, want 0", len(chunks))
	}
}

func TestChunkBytesCountsAndSizes(t *testing.T) {
	for _, n := range []int{1, 19, 20, 21, 39, 40, 41, 100, 1001} {
		data := payload(n)
		chunks := ChunkBytes(data, testChunkSize)

		want := (n + testChunkSize - 1) / testChunkSize
		if len(chunks) != want {
			t.Errorf("len=%d: got %d chunks, want %d", n, len(chunks), want)
			continue
		}
		for i, c := range chunks {
			if i < len(chunks)-1 && len(c) != testChunkSize {
				t.Errorf("len=%d: chunk[%d] size=%d, want %d", n, i, len(c), testChunkSize)
			}
			if len(c) == 0 || len(c) > testChunkSize {
				t.Errorf("len=%d: chunk[%d] size=%d out of range", n, i, len(c))
			}
		}
		if got := bytes.Join(chunks, nil); !bytes.Equal(got, data) {
			t.Errorf("len=%d: reassembled payload differs from original", n)
		}
	}
}

func TestChunkBytesAppendDoesNotClobber(t *testing.T) {
	data := payload(40)
	chunks := ChunkBytes(data, testChunkSize)
	_ = append(chunks[0], 0xFF)
	if chunks[1][0] != 20 {
		t.Errorf("chunk[1][0] = %d after appending to chunk[0], want 20", chunks[1][0])
	}
}

func TestChunkBytesNonPositiveSize(t *testing.T) {
	chunks := ChunkBytes(payload(50), 0)
	if len(chunks) != 1 || len(chunks[0]) != 50 {
		t.Errorf("size=0: got %d chunks, want a single 50-byte chunk", len(chunks))
	}
}
