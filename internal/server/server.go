// ABOUTME: AirCast server: WebSocket fan-out endpoint plus the embedded web player
// ABOUTME: Owns the broadcast engine lifecycle and graceful shutdown
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utkarsh-deployes/AirCast/internal/broadcast"
	"github.com/utkarsh-deployes/AirCast/internal/capture"
	"github.com/utkarsh-deployes/AirCast/internal/discovery"
)

//go:embed web/index.html
var webFS embed.FS

var playerTmpl = template.Must(template.ParseFS(webFS, "web/index.html"))

// Config holds server configuration, fixed for the whole run.
type Config struct {
	Name       string
	HTTPPort   int // web player UI
	StreamPort int // WebSocket PCM delivery
	Format     capture.Format
	DeviceName string // chosen capture device, for logs and the TUI
	EnableMDNS bool
	UseTUI     bool
}

// Server accepts stream connections, serves the player page and runs the
// broadcast engine over the capture session it is given.
type Server struct {
	config   Config
	registry *broadcast.Registry
	engine   *broadcast.Engine
	upgrader websocket.Upgrader

	mu             sync.RWMutex
	streamListener net.Listener
	uiListener     net.Listener

	streamServer *http.Server
	uiServer     *http.Server

	mdnsManager *discovery.Manager
	tui         *StatusTUI
	startTime   time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a server over an open capture session. The server takes
// ownership of the session; the engine closes it on shutdown.
func New(config Config, session capture.Session) *Server {
	registry := broadcast.NewRegistry()
	return &Server{
		config:   config,
		registry: registry,
		engine:   broadcast.NewEngine(session, registry),
		upgrader: websocket.Upgrader{
			// LAN broadcast with no authentication: any origin may play.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
}

// Start runs the server until Stop is called, the TUI quits, or a fatal
// error occurs. A fatal capture or listener error is returned; a
// requested shutdown returns nil.
func (s *Server) Start() error {
	log.Printf("[MAIN] %s starting (device: %s, rate=%d, channels=%d, block=%d)",
		s.config.Name, s.config.DeviceName,
		s.config.Format.SampleRate, s.config.Format.Channels, s.config.Format.BlockSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamLn, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.StreamPort))
	if err != nil {
		return fmt.Errorf("listen on stream port %d: %w", s.config.StreamPort, err)
	}
	uiLn, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.HTTPPort))
	if err != nil {
		streamLn.Close()
		return fmt.Errorf("listen on HTTP port %d: %w", s.config.HTTPPort, err)
	}

	s.mu.Lock()
	s.streamListener = streamLn
	s.uiListener = uiLn
	s.mu.Unlock()

	if s.config.UseTUI {
		s.tui = NewStatusTUI()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.initialStatus()); err != nil {
				log.Printf("[TUI] %v", err)
			}
		}()
		s.startStatusUpdates(ctx)
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.streamPort(),
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("[MDNS] Advertisement failed: %v", err)
		}
	}

	streamMux := http.NewServeMux()
	streamMux.HandleFunc("/stream", s.handleStream)
	s.streamServer = &http.Server{Handler: streamMux}

	uiMux := http.NewServeMux()
	uiMux.HandleFunc("/", s.handleIndex)
	s.uiServer = &http.Server{Handler: uiMux}

	log.Printf("[WS] Listening on %s", streamLn.Addr())
	log.Printf("[HTTP] Web UI listening on %s", uiLn.Addr())

	engineErr := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		engineErr <- s.engine.Run(ctx)
	}()

	serveErr := make(chan error, 2)
	go func() {
		if err := s.streamServer.Serve(streamLn); err != http.ErrServerClosed {
			serveErr <- err
		}
	}()
	go func() {
		if err := s.uiServer.Serve(uiLn); err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	var tuiQuit <-chan struct{}
	if s.tui != nil {
		tuiQuit = s.tui.QuitChan()
	}

	var runErr error
	select {
	case <-s.stopChan:
		log.Printf("[MAIN] Shutting down...")
	case <-tuiQuit:
		log.Printf("[MAIN] Quit requested, shutting down...")
	case err := <-serveErr:
		log.Printf("[HTTP] Server error: %v", err)
		runErr = err
	case err := <-engineErr:
		// Run returns nil only on cancellation, which this select drives,
		// so anything arriving here is a fatal capture failure.
		log.Printf("[AUDIO] Fatal: %v", err)
		runErr = err
		engineErr = nil
	}

	// Engine observes cancellation within one block period and closes
	// the capture session on its way out.
	cancel()

	if s.tui != nil {
		s.tui.Stop()
	}
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	// Drop every client connection so reader loops and handlers unwind.
	s.registry.CloseAll()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := s.streamServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WS] Shutdown: %v", err)
	}
	if err := s.uiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[HTTP] Shutdown: %v", err)
	}

	s.wg.Wait()

	if engineErr != nil {
		select {
		case err := <-engineErr:
			if err != nil && runErr == nil {
				runErr = err
			}
		default:
		}
	}

	log.Printf("[MAIN] Stopped cleanly")
	return runErr
}

// Stop triggers a graceful shutdown. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// StreamAddr returns the bound stream listener address, or "" before Start.
func (s *Server) StreamAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.streamListener == nil {
		return ""
	}
	return s.streamListener.Addr().String()
}

// UIAddr returns the bound web UI listener address, or "" before Start.
func (s *Server) UIAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.uiListener == nil {
		return ""
	}
	return s.uiListener.Addr().String()
}

func (s *Server) streamPort() int {
	return boundPort(s.StreamAddr(), s.config.StreamPort)
}

func (s *Server) uiPort() int {
	return boundPort(s.UIAddr(), s.config.HTTPPort)
}

func boundPort(addr string, fallback int) int {
	if addr != "" {
		if _, portStr, err := net.SplitHostPort(addr); err == nil {
			if p, err := strconv.Atoi(portStr); err == nil {
				return p
			}
		}
	}
	return fallback
}

// handleStream upgrades one connection and streams PCM to it until it
// disconnects. Inbound messages carry no meaning; reading only detects
// closure.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.stopChan:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	client := broadcast.NewClient(conn, r.RemoteAddr)
	s.registry.Add(client)
	log.Printf("[WS] Client connected: %s (total=%d)", client.RemoteAddr, s.registry.Len())
	s.updateTUI()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		client.WriteLoop()
	}()

	defer func() {
		s.registry.Remove(client)
		client.Close()
		log.Printf("[WS] Client disconnected: %s (total=%d)", client.RemoteAddr, s.registry.Len())
		s.updateTUI()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleIndex serves the embedded player page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := playerTmpl.Execute(w, map[string]interface{}{
		"Name":       s.config.Name,
		"StreamPort": s.streamPort(),
		"SampleRate": s.config.Format.SampleRate,
		"Channels":   s.config.Format.Channels,
	})
	if err != nil {
		log.Printf("[HTTP] Rendering player page: %v", err)
	}
}
