// ABOUTME: Capture device abstraction yielding fixed-size PCM blocks
// ABOUTME: Defines Session/Backend interfaces and loopback-then-input open logic
package capture

import (
	"errors"
	"fmt"
	"log"
	"time"
)

var (
	// ErrNoDevice is returned when no candidate device could be opened.
	ErrNoDevice = errors.New("no usable capture device")

	// ErrSessionClosed is returned by ReadBlock after Close.
	ErrSessionClosed = errors.New("capture session closed")
)

// Format is the fixed PCM shape of one server run: interleaved signed
// 16-bit little-endian samples. It never changes once a session is open.
type Format struct {
	SampleRate int // samples per second per channel
	Channels   int // interleaved channel count
	BlockSize  int // samples per channel per block
}

// BlockBytes returns the byte length of one block on the wire.
func (f Format) BlockBytes() int {
	return f.BlockSize * f.Channels * 2
}

// BlockDuration returns the real-time span of one block.
func (f Format) BlockDuration() time.Duration {
	return time.Duration(f.BlockSize) * time.Second / time.Duration(f.SampleRate)
}

// Device describes one enumerated capture or playback endpoint.
type Device struct {
	Index             int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
}

// Block is one captured chunk of PCM. Data is exactly Format.BlockBytes()
// long and is never mutated after ReadBlock returns it. Overflow reports
// that the driver dropped samples before this read; the block itself is
// still complete and well-formed.
type Block struct {
	Data     []byte
	Overflow bool
}

// Session is one open capture stream. ReadBlock blocks until a full block
// is available or the device fails. Close is idempotent.
type Session interface {
	ReadBlock() (Block, error)
	Close() error
}

// Backend abstracts the audio host (PortAudio in production, fakes in
// tests). OpenStream with loopback=true requests a monitor/loopback
// capture of what the device is playing rather than a microphone input.
type Backend interface {
	Devices() ([]Device, error)
	OpenStream(dev Device, format Format, loopback bool) (Session, error)
}

// Open opens a capture session on one device, preferring loopback mode
// and falling back to a plain input stream with the identical format.
// Both attempts failing is an error for this device only; callers move
// on to the next candidate.
func Open(b Backend, dev Device, format Format) (Session, error) {
	s, lerr := b.OpenStream(dev, format, true)
	if lerr == nil {
		log.Printf("[AUDIO] Loopback capture started (device=%d %q)", dev.Index, dev.Name)
		return s, nil
	}

	s, ierr := b.OpenStream(dev, format, false)
	if ierr == nil {
		log.Printf("[AUDIO] Standard input stream started (device=%d %q)", dev.Index, dev.Name)
		return s, nil
	}

	return nil, fmt.Errorf("device %d %q: loopback: %v; input: %w", dev.Index, dev.Name, lerr, ierr)
}

// OpenFirst enumerates devices, orders them by the selection policy and
// returns the first session that opens, along with the device it opened.
// Exhausting every candidate is fatal to startup.
func OpenFirst(b Backend, format Format, explicitIndex int) (Session, Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return nil, Device{}, fmt.Errorf("enumerate capture devices: %w", err)
	}

	candidates := Candidates(devices, explicitIndex)
	if len(candidates) == 0 {
		return nil, Device{}, ErrNoDevice
	}

	var firstErr error
	for _, dev := range candidates {
		s, err := Open(b, dev, format)
		if err != nil {
			log.Printf("[AUDIO] Device %d unusable: %v", dev.Index, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return s, dev, nil
	}

	return nil, Device{}, fmt.Errorf("%w: %v", ErrNoDevice, firstErr)
}
