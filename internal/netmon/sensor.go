package netmon

import (
	"context"
	"net"
	"time"

	"notesync-engine/internal/domain"
)

// DialSensor is a minimal Sensor for hosts without a platform connectivity
// API: it decides "connected" by dialing a well-known address on an
// interval. Connection type is reported as ethernet since a wired host has
// no radio to introspect.
type DialSensor struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
}

func NewDialSensor(addr string, interval, timeout time.Duration) *DialSensor {
	return &DialSensor{addr: addr, interval: interval, timeout: timeout}
}

func (s *DialSensor) Snapshot(ctx context.Context) (domain.NetworkState, error) {
	return s.probe(ctx), nil
}

func (s *DialSensor) Watch(ctx context.Context) <-chan domain.NetworkState {
	ch := make(chan domain.NetworkState, 1)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Emit one sample immediately so the monitor never waits a full
		// interval for its first state.
		ch <- s.probe(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- s.probe(ctx):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func (s *DialSensor) probe(ctx context.Context) domain.NetworkState {
	dialer := net.Dialer{Timeout: s.timeout}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return domain.NetworkState{
			Connected:      false,
			ConnectionType: domain.ConnectionNone,
			LatencyMs:      domain.LatencyUnknown,
		}
	}
	conn.Close()

	return domain.NetworkState{
		Connected:      true,
		ConnectionType: domain.ConnectionEthernet,
		SignalStrength: 100,
		LatencyMs:      time.Since(start).Milliseconds(),
	}
}
