package ble

import (
	"context"
	"fmt"
	"time"

	"github.com/Tabonx/papyrus/internal/ble/protocol"
)

// ChunkWriter accepts one frame of a print job at a time.
type ChunkWriter interface {
	WriteChunk(chunk []byte) error
}

// Progress is called after each chunk is issued.
type Progress func(sent, total int)

// Transport streams a byte buffer in fixed-size chunks with a pause
// between writes. It does not wait for application-level acknowledgement.
type Transport struct {
	chunkSize int
	delay     time.Duration
}

// NewTransport returns a Transport. Non-positive arguments fall back to
// 20-byte chunks and 50ms pacing.
func NewTransport(chunkSize int, delay time.Duration) *Transport {
	if chunkSize <= 0 {
		chunkSize = protocol.DefaultChunkSize
	}
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &Transport{chunkSize: chunkSize, delay: delay}
}

// Send writes data to w in order. The first failed write aborts the job;
// chunks already sent are not retried.
func (t *Transport) Send(ctx context.Context, data []byte, w ChunkWriter, progress Progress) error {
	chunks := protocol.ChunkBytes(data, t.chunkSize)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.WriteChunk(chunk); err != nil {
			return fmt.Errorf("%w: chunk %d/%d: %w", ErrWriteFailed, i+1, len(chunks), err)
		}
		if progress != nil {
			progress(i+1, len(chunks))
		}
		// Pace writes so the printer's input buffer does not overrun.
		if i < len(chunks)-1 {
			timer := time.NewTimer(t.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

// characteristicWriter writes with response when the characteristic
// supports it and falls back to write-without-response otherwise.
type characteristicWriter struct {
	char Characteristic
}

func (w characteristicWriter) WriteChunk(chunk []byte) error {
	if w.char.Properties().Has(PropertyWrite) {
		return w.char.Write(chunk)
	}
	return w.char.WriteWithoutResponse(chunk)
}
