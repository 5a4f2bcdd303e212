// Package metrics builds a small Prometheus text-exposition snapshot of
// the event loop's counters and writes it to the structured logger on a
// timer, rather than serving it over an HTTP endpoint — there is no
// metrics surface beyond the origin server's own routes.
package metrics

import (
	"bytes"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/Maruffly/webserv-sub000/pkg/logging"
)

// Counters is the process-wide counter set the event loop updates as it
// runs. Every field is mutated with sync/atomic since the periodic render
// reads it from a goroutine outside the loop.
type Counters struct {
	activeConnections int64
	activeCGI         int64
	requestsServed    int64
	bytesServed       int64
}

func (c *Counters) IncConnections() { atomic.AddInt64(&c.activeConnections, 1) }
func (c *Counters) DecConnections() { atomic.AddInt64(&c.activeConnections, -1) }
func (c *Counters) IncCGI()         { atomic.AddInt64(&c.activeCGI, 1) }
func (c *Counters) DecCGI()         { atomic.AddInt64(&c.activeCGI, -1) }

// AddRequest records one completed request and the bytes of its response
// body.
func (c *Counters) AddRequest(bodyBytes int) {
	atomic.AddInt64(&c.requestsServed, 1)
	atomic.AddInt64(&c.bytesServed, int64(bodyBytes))
}

func gaugeFamily(name, help string, value float64) *dto.MetricFamily {
	t := dto.MetricType_GAUGE
	return &dto.MetricFamily{
		Name: &name,
		Help: &help,
		Type: &t,
		Metric: []*dto.Metric{{
			Gauge: &dto.Gauge{Value: &value},
		}},
	}
}

func counterFamily(name, help string, value float64) *dto.MetricFamily {
	t := dto.MetricType_COUNTER
	return &dto.MetricFamily{
		Name: &name,
		Help: &help,
		Type: &t,
		Metric: []*dto.Metric{{
			Counter: &dto.Counter{Value: &value},
		}},
	}
}

// Render encodes a snapshot of c as Prometheus text exposition format.
func Render(c *Counters) (string, error) {
	families := []*dto.MetricFamily{
		gaugeFamily("webserv_active_connections", "Currently open client connections.", float64(atomic.LoadInt64(&c.activeConnections))),
		gaugeFamily("webserv_active_cgi_processes", "Currently running CGI children.", float64(atomic.LoadInt64(&c.activeCGI))),
		counterFamily("webserv_requests_served_total", "Total requests completed.", float64(atomic.LoadInt64(&c.requestsServed))),
		counterFamily("webserv_bytes_served_total", "Total response bytes written.", float64(atomic.LoadInt64(&c.bytesServed))),
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// LogPeriodically renders c to log every interval until stop is closed.
// It runs outside the event loop goroutine and only ever reads c's atomic
// counters, never the loop's connection or CGI maps.
func LogPeriodically(log logging.Logger, c *Counters, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			text, err := Render(c)
			if err != nil {
				log.WithError(err).Warn("metrics render failed")
				continue
			}
			log.WithField("component", "metrics").Info(text)
		}
	}
}
