package eventloop

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Maruffly/webserv-sub000/pkg/config"
	"github.com/Maruffly/webserv-sub000/pkg/logging"
)

// startEngine wires a minimal single-vhost endpoint serving dir and runs
// the loop in a background goroutine, returning the listen address and a
// stop function. Mirrors the teacher's sandbox_test.go preference for
// exercising real OS resources (here, loopback sockets) over mocks.
func startEngine(t *testing.T, dir string) (addr string, stop func()) {
	t.Helper()
	if os.Getenv("WEBSERV_SKIP_SOCKET_TESTS") != "" {
		t.Skip("socket-backed eventloop tests disabled in this environment")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr = ln.Addr().String()
	ln.Close()

	endpoint := &config.ListeningEndpoint{
		Address: addr,
		VHosts: []*config.VHostConfig{{
			ServerNames:       []string{"example.com"},
			Root:              dir,
			Index:             []string{"index.html"},
			ClientMaxBodySize: 1 << 20,
			Locations: []*config.LocationConfig{
				{Mount: "/"},
			},
		}},
	}

	log := logging.New()
	cfg := DefaultConfig()
	cfg.PollTimeoutMs = 50
	engine := New(log, cfg)
	if err := engine.Listen([]*config.ListeningEndpoint{endpoint}); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Run()
	}()

	return addr, func() {
		engine.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop in time")
		}
	}
}

func TestEngineServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	addr, stop := startEngine(t, dir)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write([]byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))
	if err != nil {
		t.Fatalf("write request: %v", err)
	}

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.Contains(status, "200") {
		t.Fatalf("status line = %q, want 200", status)
	}

	var body strings.Builder
	sawBody := false
	for {
		line, err := reader.ReadString('\n')
		if sawBody {
			body.WriteString(line)
		}
		if strings.TrimRight(line, "\r\n") == "" {
			sawBody = true
		}
		if err != nil {
			break
		}
	}
	if !strings.Contains(body.String(), "hello world") {
		t.Fatalf("body = %q, want to contain hello world", body.String())
	}
}

func TestEngineRespondsNotFound(t *testing.T) {
	dir := t.TempDir()
	addr, stop := startEngine(t, dir)
	defer stop()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write([]byte("GET /missing.html HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))
	if err != nil {
		t.Fatalf("write request: %v", err)
	}

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.Contains(status, "404") {
		t.Fatalf("status line = %q, want 404", status)
	}
}
