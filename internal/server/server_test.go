// ABOUTME: End-to-end tests for the AirCast server over real WebSockets
// ABOUTME: Covers fan-out identity, join/leave mid-stream, shutdown and fatal errors
package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utkarsh-deployes/AirCast/internal/capture"
)

var testFormat = capture.Format{SampleRate: 44100, Channels: 2, BlockSize: 1024}

// gatedSession produces a block each time the test feeds one, so tests
// control capture pacing exactly. Closing the feed acts as a device
// failure.
type gatedSession struct {
	feed chan capture.Block

	mu     sync.Mutex
	closed bool
}

func newGatedSession() *gatedSession {
	return &gatedSession{feed: make(chan capture.Block)}
}

func (s *gatedSession) ReadBlock() (capture.Block, error) {
	b, ok := <-s.feed
	if !ok {
		return capture.Block{}, errors.New("device gone")
	}
	return b, nil
}

func (s *gatedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *gatedSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func blockData(i int) capture.Block {
	data := make([]byte, testFormat.BlockBytes())
	for j := range data {
		data[j] = byte(i)
	}
	return capture.Block{Data: data}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startTestServer runs a server on ephemeral ports over the given session.
func startTestServer(t *testing.T, sess capture.Session) (*Server, chan error) {
	t.Helper()
	srv := New(Config{
		Name:       "aircast-test",
		DeviceName: "fake device",
		Format:     testFormat,
	}, sess)

	startErr := make(chan error, 1)
	go func() { startErr <- srv.Start() }()

	waitFor(t, "listeners bound", func() bool {
		return srv.StreamAddr() != "" && srv.UIAddr() != ""
	})
	return srv, startErr
}

func dialStream(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d/stream", srv.streamPort())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func readBlocks(t *testing.T, conn *websocket.Conn, n int) [][]byte {
	t.Helper()
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read message %d: %v", i, err)
		}
		if messageType != websocket.BinaryMessage {
			t.Fatalf("message %d: got type %d, want binary", i, messageType)
		}
		out = append(out, data)
	}
	return out
}

func TestServerStreamsIdenticalBlocksToAllClients(t *testing.T) {
	sess := newGatedSession()
	srv, startErr := startTestServer(t, sess)

	c1 := dialStream(t, srv)
	defer c1.Close()
	c2 := dialStream(t, srv)
	defer c2.Close()
	waitFor(t, "two clients registered", func() bool { return srv.registry.Len() == 2 })

	for i := 0; i < 5; i++ {
		sess.feed <- blockData(i)
	}

	got1 := readBlocks(t, c1, 5)
	got2 := readBlocks(t, c2, 5)

	for i := 0; i < 5; i++ {
		want := blockData(i).Data
		if len(got1[i]) != testFormat.BlockBytes() {
			t.Errorf("message %d: got %d bytes, want %d", i, len(got1[i]), testFormat.BlockBytes())
		}
		if !bytes.Equal(got1[i], want) {
			t.Errorf("client 1 message %d differs from captured block", i)
		}
		if !bytes.Equal(got1[i], got2[i]) {
			t.Errorf("clients received different bytes for block %d", i)
		}
	}

	// A third client joins after block 5 and must only see later blocks.
	c3 := dialStream(t, srv)
	defer c3.Close()
	waitFor(t, "third client registered", func() bool { return srv.registry.Len() == 3 })

	for i := 5; i < 10; i++ {
		sess.feed <- blockData(i)
	}

	got3 := readBlocks(t, c3, 5)
	for i, b := range got3 {
		if b[0] != byte(5+i) {
			t.Errorf("late client message %d: got block %d, want %d", i, b[0], 5+i)
		}
	}
	readBlocks(t, c1, 5)
	readBlocks(t, c2, 5)

	// Client 1 disconnects; the rest keep streaming without a hiccup.
	c1.Close()
	waitFor(t, "client 1 removed", func() bool { return srv.registry.Len() == 2 })

	for i := 10; i < 13; i++ {
		sess.feed <- blockData(i)
	}
	for i, b := range readBlocks(t, c2, 3) {
		if b[0] != byte(10+i) {
			t.Errorf("client 2 message %d after disconnect: got block %d, want %d", i, b[0], 10+i)
		}
	}
	readBlocks(t, c3, 3)

	stopServer(t, srv, sess, startErr)
}

// stopServer shuts the server down, feeding blocks so the engine's
// blocking read keeps returning until it observes cancellation.
func stopServer(t *testing.T, srv *Server, sess *gatedSession, startErr chan error) {
	t.Helper()
	srv.Stop()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-startErr:
			if err != nil {
				t.Fatalf("shutdown must not report an error, got: %v", err)
			}
			if !sess.isClosed() {
				t.Error("capture session must be closed on shutdown")
			}
			return
		case <-deadline:
			t.Fatal("server did not stop")
		default:
		}

		select {
		case sess.feed <- blockData(0):
		default:
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerShutdownClosesClients(t *testing.T) {
	sess := newGatedSession()
	srv, startErr := startTestServer(t, sess)

	conn := dialStream(t, srv)
	defer conn.Close()
	waitFor(t, "client registered", func() bool { return srv.registry.Len() == 1 })

	stopServer(t, srv, sess, startErr)

	// The server side closed the connection; reads must fail promptly.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestServerFatalCaptureError(t *testing.T) {
	sess := newGatedSession()
	srv, startErr := startTestServer(t, sess)
	defer srv.Stop()

	close(sess.feed) // device failure

	select {
	case err := <-startErr:
		if err == nil {
			t.Fatal("fatal capture error must be returned by Start")
		}
		if !sess.isClosed() {
			t.Error("capture session must be closed after a fatal error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not terminate on capture failure")
	}
}

func TestServerServesPlayerPage(t *testing.T) {
	sess := newGatedSession()
	srv, startErr := startTestServer(t, sess)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", srv.uiPort()))
	if err != nil {
		t.Fatalf("GET player page: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("player page status: got %d, want 200", resp.StatusCode)
	}
	page := string(body)
	if !strings.Contains(page, "AudioContext") {
		t.Error("player page should contain the WebAudio player")
	}
	if !strings.Contains(page, fmt.Sprintf(":%d/stream", srv.streamPort())) {
		t.Error("player page should point at the stream port")
	}

	resp2, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/nope", srv.uiPort()))
	if err != nil {
		t.Fatalf("GET unknown path: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status: got %d, want 404", resp2.StatusCode)
	}

	stopServer(t, srv, sess, startErr)
}
