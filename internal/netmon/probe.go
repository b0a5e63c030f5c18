package netmon

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"notesync-engine/internal/domain"
)

// Prober measures bandwidth and latency with lightweight timed probes.
// Bandwidth is re-measured at most once per window; the cached value is
// reused between windows.
type Prober struct {
	probeURL     string
	latencyAddr  string
	dialTimeout  time.Duration
	probeTimeout time.Duration
	window       time.Duration

	mu         sync.Mutex
	lastProbe  time.Time
	lastResult int64

	client *http.Client
}

func NewProber(probeURL, latencyAddr string, dialTimeout, probeTimeout, window time.Duration) *Prober {
	return &Prober{
		probeURL:     probeURL,
		latencyAddr:  latencyAddr,
		dialTimeout:  dialTimeout,
		probeTimeout: probeTimeout,
		window:       window,
		client:       &http.Client{Timeout: probeTimeout},
	}
}

// Bandwidth returns the most recent estimate in bytes/sec. A fresh probe
// runs only when the window has elapsed; failures keep the previous
// estimate and report ok=false.
func (p *Prober) Bandwidth(ctx context.Context) (int64, bool) {
	p.mu.Lock()
	if time.Since(p.lastProbe) < p.window {
		cached := p.lastResult
		p.mu.Unlock()
		return cached, cached > 0
	}
	p.lastProbe = time.Now()
	p.mu.Unlock()

	bps, err := p.measureBandwidth(ctx)
	if err != nil {
		log.Printf("bandwidth probe failed: %v", err)
		return 0, false
	}

	p.mu.Lock()
	p.lastResult = bps
	p.mu.Unlock()

	return bps, true
}

func (p *Prober) measureBandwidth(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.probeURL, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, err
	}

	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		elapsed = 0.001
	}

	return int64(float64(n) / elapsed), nil
}

// Latency times a TCP connect to the configured host. Connect failure maps
// to the unknown sentinel rather than an error; the caller treats it as
// "assume slow".
func (p *Prober) Latency(ctx context.Context) int64 {
	dialer := net.Dialer{Timeout: p.dialTimeout}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", p.latencyAddr)
	if err != nil {
		return domain.LatencyUnknown
	}
	conn.Close()

	return time.Since(start).Milliseconds()
}
