// ABOUTME: Test tone capture session
// ABOUTME: Generates a paced 440Hz sine wave for development without a capture device
package capture

import (
	"math"
	"sync"
	"time"
)

// ToneSession is a Session that synthesizes a 440Hz sine instead of
// reading a device. Blocks are paced at the real block rate so the
// broadcast loop behaves exactly as it would against hardware.
type ToneSession struct {
	format    Format
	frequency float64

	mu          sync.Mutex
	sampleIndex uint64
	next        time.Time
	closed      bool
}

// NewTone creates a tone session for the given format.
func NewTone(format Format) *ToneSession {
	return &ToneSession{
		format:    format,
		frequency: 440.0, // A4 note
	}
}

func (s *ToneSession) ReadBlock() (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Block{}, ErrSessionClosed
	}

	// A block is only "available" once its period has elapsed.
	period := s.format.BlockDuration()
	if s.next.IsZero() {
		s.next = time.Now()
	}
	s.next = s.next.Add(period)
	if d := time.Until(s.next); d > 0 {
		time.Sleep(d)
	}

	data := make([]byte, s.format.BlockBytes())
	for i := 0; i < s.format.BlockSize; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.format.SampleRate)
		v := int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * 0.5) // 50% volume
		for ch := 0; ch < s.format.Channels; ch++ {
			off := (i*s.format.Channels + ch) * 2
			data[off] = byte(v)
			data[off+1] = byte(v >> 8)
		}
	}
	s.sampleIndex += uint64(s.format.BlockSize)

	return Block{Data: data}, nil
}

func (s *ToneSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
