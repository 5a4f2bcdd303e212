package metrics

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Maruffly/webserv-sub000/pkg/logging"
)

func TestRenderReflectsCounterState(t *testing.T) {
	c := &Counters{}
	c.IncConnections()
	c.IncConnections()
	c.DecConnections()
	c.IncCGI()
	c.AddRequest(128)
	c.AddRequest(256)

	text, err := Render(c)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	for _, want := range []string{
		"webserv_active_connections",
		"webserv_active_cgi_processes",
		"webserv_requests_served_total",
		"webserv_bytes_served_total",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("rendered text missing %q:\n%s", want, text)
		}
	}
	if !strings.Contains(text, "webserv_active_connections 1") {
		t.Fatalf("active connections should read 1 after inc/inc/dec:\n%s", text)
	}
	if !strings.Contains(text, "webserv_bytes_served_total 384") {
		t.Fatalf("bytes served should sum to 384:\n%s", text)
	}
}

func TestLogPeriodicallyStopsOnSignal(t *testing.T) {
	log := logging.New()
	log.SetOutput(io.Discard)

	c := &Counters{}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		LogPeriodically(log, c, time.Hour, stop)
		close(done)
	}()
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("LogPeriodically did not return after stop was closed")
	}
}
