// ABOUTME: PortAudio-backed capture backend
// ABOUTME: Enumerates devices and reads fixed-size s16 blocks from an input stream
package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio implements Backend on top of the system PortAudio library.
// NewPortAudio initializes the library; Close terminates it and must not
// be called while sessions are open.
type PortAudio struct {
	mu    sync.Mutex
	infos []*portaudio.DeviceInfo
}

// NewPortAudio initializes the PortAudio host.
func NewPortAudio() (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &PortAudio{}, nil
}

// Devices enumerates every endpoint the host exposes.
func (p *PortAudio) Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}

	p.mu.Lock()
	p.infos = infos
	p.mu.Unlock()

	out := make([]Device, len(infos))
	for i, info := range infos {
		out[i] = Device{
			Index:             i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
		}
	}
	return out, nil
}

// OpenStream opens a started input stream on the given device.
//
// PortAudio's portable API has no loopback switch. Monitor endpoints
// (PulseAudio ".monitor", Stereo Mix) surface as readable input devices
// on hardware that also reports output channels, so loopback mode here
// requires the device to expose output channels and captures its input
// side; plain input mode requires real input channels instead.
func (p *PortAudio) OpenStream(dev Device, format Format, loopback bool) (Session, error) {
	info, err := p.deviceInfo(dev.Index)
	if err != nil {
		return nil, err
	}

	if loopback {
		if info.MaxOutputChannels < format.Channels {
			return nil, fmt.Errorf("device %q exposes no monitor output to capture", info.Name)
		}
	} else if info.MaxInputChannels < format.Channels {
		return nil, fmt.Errorf("device %q has %d input channels, need %d",
			info.Name, info.MaxInputChannels, format.Channels)
	}

	buf := make([]int16, format.BlockSize*format.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: format.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: format.BlockSize,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("open stream on %q: %w", info.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start stream on %q: %w", info.Name, err)
	}

	return &paSession{stream: stream, buf: buf}, nil
}

// Close terminates the PortAudio host.
func (p *PortAudio) Close() error {
	return portaudio.Terminate()
}

func (p *PortAudio) deviceInfo(index int) (*portaudio.DeviceInfo, error) {
	p.mu.Lock()
	infos := p.infos
	p.mu.Unlock()

	if infos == nil {
		if _, err := p.Devices(); err != nil {
			return nil, err
		}
		p.mu.Lock()
		infos = p.infos
		p.mu.Unlock()
	}

	if index < 0 || index >= len(infos) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", index, len(infos))
	}
	return infos[index], nil
}

// paSession owns one started PortAudio input stream. ReadBlock blocks
// inside Pa_ReadStream until a full block arrives, bounded by the block
// period.
type paSession struct {
	stream *portaudio.Stream
	buf    []int16

	mu     sync.Mutex
	closed bool
}

func (s *paSession) ReadBlock() (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Block{}, ErrSessionClosed
	}

	overflow := false
	if err := s.stream.Read(); err != nil {
		// The driver dropped samples before this read; the block we got
		// back is still complete. Anything else is fatal.
		if err != portaudio.InputOverflowed {
			return Block{}, fmt.Errorf("read capture block: %w", err)
		}
		overflow = true
	}

	data := make([]byte, len(s.buf)*2)
	for i, v := range s.buf {
		data[2*i] = byte(v)
		data[2*i+1] = byte(v >> 8)
	}
	return Block{Data: data, Overflow: overflow}, nil
}

func (s *paSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return fmt.Errorf("stop capture stream: %w", err)
	}
	return s.stream.Close()
}
