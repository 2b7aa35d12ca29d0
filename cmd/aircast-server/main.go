// ABOUTME: Entry point for the AirCast server
// ABOUTME: Parses CLI flags, selects a capture device and runs the server
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/utkarsh-deployes/AirCast/internal/capture"
	"github.com/utkarsh-deployes/AirCast/internal/discovery"
	"github.com/utkarsh-deployes/AirCast/internal/server"
)

var (
	httpPort = flag.Int("http", 5000, "Web player UI port")
	wsPort   = flag.Int("ws", 8765, "WebSocket stream port")
	device   = flag.Int("device", -1, "Capture device index (default: auto-select)")
	rate     = flag.Int("rate", 44100, "Sample rate in Hz")
	block    = flag.Int("block", 1024, "Samples per block")
	channels = flag.Int("channels", 2, "Channel count")
	name     = flag.String("name", "", "Server friendly name (default: hostname-aircast)")
	logFile  = flag.String("log-file", "aircast-server.log", "Log file path")
	tone     = flag.Bool("tone", false, "Stream a generated test tone instead of capturing a device")
	noMDNS   = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	useTUI   = flag.Bool("tui", false, "Show the status TUI instead of streaming logs")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *useTUI {
		// TUI mode: the terminal belongs to the dashboard.
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-aircast", hostname)
	}

	format := capture.Format{SampleRate: *rate, Channels: *channels, BlockSize: *block}
	log.Printf("[CONFIG] HTTP=%d, WS=%d, Rate=%d, Block=%d, Channels=%d",
		*httpPort, *wsPort, format.SampleRate, format.BlockSize, format.Channels)

	session, deviceName := openSource(format)

	host := discovery.LocalIP()
	log.Printf("[HTTP] Web UI available at: http://%s:%d", host, *httpPort)
	log.Printf("[WS] Stream at: ws://%s:%d/stream", host, *wsPort)

	srv := server.New(server.Config{
		Name:       serverName,
		HTTPPort:   *httpPort,
		StreamPort: *wsPort,
		Format:     format,
		DeviceName: deviceName,
		EnableMDNS: !*noMDNS,
		UseTUI:     *useTUI,
	}, session)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("[MAIN] Received %v, shutting down...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("[MAIN] AirCast stopped cleanly")
}

// openSource opens the capture session: a generated tone when requested,
// otherwise the first usable device per the selection policy. Failure to
// open any device is fatal.
func openSource(format capture.Format) (capture.Session, string) {
	if *tone {
		log.Printf("[AUDIO] Using generated test tone source")
		return capture.NewTone(format), "test tone"
	}

	backend, err := capture.NewPortAudio()
	if err != nil {
		log.Fatalf("[AUDIO] %v", err)
	}

	devices, err := backend.Devices()
	if err != nil {
		log.Fatalf("[AUDIO] Failed to query devices: %v", err)
	}
	if len(devices) == 0 {
		log.Fatalf("[AUDIO] No devices found")
	}
	listDevices(devices)

	session, dev, err := capture.OpenFirst(backend, format, *device)
	if err != nil {
		log.Fatalf("[AUDIO] Could not open any capture device (enable Stereo Mix or a monitor source): %v", err)
	}
	log.Printf("[AUDIO] Using device #%d: %s", dev.Index, dev.Name)
	return session, dev.Name
}

func listDevices(devices []capture.Device) {
	log.Printf("--- Available Audio Devices ---")
	for _, d := range devices {
		log.Printf("%3d: %s | Out: %2d | In: %2d", d.Index, d.Name, d.MaxOutputChannels, d.MaxInputChannels)
	}
	log.Printf("--- end devices ---")
}
