// internal/ble/protocol/chunk.go
package protocol

// DefaultChunkSize is the payload per BLE write. It stays below the
// 23-byte default ATT MTU minus the 3-byte header so no negotiation is
// needed.
const DefaultChunkSize = 20

// ChunkBytes splits data into consecutive chunks of size bytes; the last
// chunk may be shorter. The chunks alias data and have their capacity
// capped, so appending to one never overwrites the next. Returns nil for
// empty data. A non-positive size yields a single chunk.
func ChunkBytes(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if size <= 0 || len(data) <= size {
		return [][]byte{data[:len(data):len(data)]}
	}

	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		chunks = append(chunks, data[start:end:end])
	}
	return chunks
}
