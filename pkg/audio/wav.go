package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

const wavHeaderSize = 44

// WAVWriter records PCM16 mono frames to a WAV file. The header is rewritten
// with the final sizes on Close. It is safe for concurrent use.
type WAVWriter struct {
	mu         sync.Mutex
	file       *os.File
	sampleRate uint32
	dataBytes  uint32
	closed     bool
}

// NewWAVWriter creates filename and writes a provisional header.
func NewWAVWriter(filename string, sampleRate int) (*WAVWriter, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	w := &WAVWriter{
		file:       file,
		sampleRate: uint32(sampleRate),
	}
	if err := w.writeHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return w, nil
}

// Write appends raw PCM bytes.
func (w *WAVWriter) Write(pcm []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	n, err := w.file.Write(pcm)
	w.dataBytes += uint32(n)
	return n, err
}

// WriteFrame appends a frame. Frames at a different sample rate are rejected.
func (w *WAVWriter) WriteFrame(f Frame) error {
	if f.SampleRate != 0 && uint32(f.SampleRate) != w.sampleRate {
		return fmt.Errorf("frame sample rate %d does not match recording rate %d", f.SampleRate, w.sampleRate)
	}
	_, err := w.Write(f.Data)
	return err
}

// Close finalizes the header and closes the file.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to seek WAV header: %w", err)
	}
	if err := w.writeHeader(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to update WAV header: %w", err)
	}
	return w.file.Close()
}

func (w *WAVWriter) writeHeader() error {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	blockAlign := uint16(numChannels * bitsPerSample / 8)
	byteRate := w.sampleRate * uint32(blockAlign)

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+w.dataBytes)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], numChannels)
	binary.LittleEndian.PutUint32(header[24:28], w.sampleRate)
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], w.dataBytes)

	_, err := w.file.Write(header)
	return err
}
