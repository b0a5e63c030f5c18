// Package netmon tracks connectivity and turns it into sync policy: when to
// sync, how much, and how often.
package netmon

import (
	"context"
	"log"
	"sync"
	"time"

	"notesync-engine/internal/domain"
)

type SyncRecommendation string

const (
	SyncAll       SyncRecommendation = "SYNC_ALL"
	SyncPriority  SyncRecommendation = "SYNC_PRIORITY"
	SyncEssential SyncRecommendation = "SYNC_ESSENTIAL"
	Wait          SyncRecommendation = "WAIT"
)

type ConnectivityPattern string

const (
	PatternStable          ConnectivityPattern = "STABLE"
	PatternOccasionalDrops ConnectivityPattern = "OCCASIONAL_DROPS"
	PatternUnstable        ConnectivityPattern = "UNSTABLE"
	PatternVeryUnstable    ConnectivityPattern = "VERY_UNSTABLE"
)

const historySize = 100

// Sensor supplies connectivity snapshots. Implementations live at the
// platform boundary; tests inject fakes.
type Sensor interface {
	Snapshot(ctx context.Context) (domain.NetworkState, error)
	Watch(ctx context.Context) <-chan domain.NetworkState
}

// Monitor holds the current network snapshot, a bounded sample history, and
// derives scheduling policy from them. Safe for concurrent use.
type Monitor struct {
	sensor Sensor
	prober *Prober

	mu      sync.RWMutex
	current domain.NetworkState
	history []domain.NetworkState

	subsMu sync.Mutex
	subs   []chan domain.NetworkState
}

func NewMonitor(sensor Sensor, prober *Prober) *Monitor {
	return &Monitor{
		sensor: sensor,
		prober: prober,
		// Conservative until the first sample arrives.
		current: domain.NetworkState{Connected: false, ConnectionType: domain.ConnectionNone, LatencyMs: domain.LatencyUnknown},
	}
}

// Run consumes the sensor stream until ctx is cancelled, enriching each
// sample with probe measurements and notifying subscribers.
func (m *Monitor) Run(ctx context.Context) {
	updates := m.sensor.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			m.update(ctx, state)
		}
	}
}

func (m *Monitor) update(ctx context.Context, state domain.NetworkState) {
	if m.prober != nil && state.Connected {
		if bw, ok := m.prober.Bandwidth(ctx); ok {
			state.BandwidthBps = bw
		}
		state.LatencyMs = m.prober.Latency(ctx)
	}

	m.mu.Lock()
	m.current = state
	m.history = append(m.history, state)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
	m.mu.Unlock()

	log.Printf("network state: connected=%v type=%s bandwidth=%dB/s metered=%v",
		state.Connected, state.ConnectionType, state.BandwidthBps, state.Metered)

	m.notify(state)
}

// Current returns the latest snapshot.
func (m *Monitor) Current() domain.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe returns a channel receiving every state update. Slow receivers
// drop updates rather than blocking the monitor.
func (m *Monitor) Subscribe() <-chan domain.NetworkState {
	ch := make(chan domain.NetworkState, 8)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Monitor) notify(state domain.NetworkState) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- state:
		default:
		}
	}
}

// GetSyncRecommendation maps the current snapshot to a coarse sync decision.
func (m *Monitor) GetSyncRecommendation() SyncRecommendation {
	state := m.Current()

	if !state.Connected {
		return Wait
	}

	switch state.ConnectionType {
	case domain.ConnectionWifi:
		switch {
		case state.BandwidthBps > 1_000_000:
			return SyncAll
		case state.BandwidthBps > 100_000:
			return SyncPriority
		default:
			return SyncEssential
		}
	case domain.ConnectionMobile:
		if state.Metered {
			return SyncEssential
		}
		if state.BandwidthBps > 500_000 {
			return SyncPriority
		}
		return SyncEssential
	default:
		return SyncEssential
	}
}

// GetOptimalBatchSize sizes an executable-operations fetch for the current
// recommendation.
func (m *Monitor) GetOptimalBatchSize() int {
	switch m.GetSyncRecommendation() {
	case SyncAll:
		return 50
	case SyncPriority:
		return 20
	case SyncEssential:
		return 5
	default:
		return 0
	}
}

// GetRecommendedSyncInterval picks the processing-loop cadence for the
// current connection.
func (m *Monitor) GetRecommendedSyncInterval() time.Duration {
	state := m.Current()

	if !state.Connected {
		return 5 * time.Minute
	}
	switch state.ConnectionType {
	case domain.ConnectionWifi:
		return 30 * time.Second
	case domain.ConnectionMobile:
		if state.Metered {
			return 5 * time.Minute
		}
		return time.Minute
	default:
		return 2 * time.Minute
	}
}

// ShouldExecuteOperation reports whether the current network satisfies the
// operation's requirement.
func (m *Monitor) ShouldExecuteOperation(req domain.NetworkRequirement) bool {
	return m.Current().Satisfies(req)
}

// ConnectivityPattern classifies link stability by counting connect/
// disconnect transitions across the sample history.
func (m *Monitor) ConnectivityPattern() ConnectivityPattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transitions := 0
	for i := 1; i < len(m.history); i++ {
		if m.history[i].Connected != m.history[i-1].Connected {
			transitions++
		}
	}

	switch {
	case transitions == 0:
		return PatternStable
	case transitions < 3:
		return PatternOccasionalDrops
	case transitions < 6:
		return PatternUnstable
	default:
		return PatternVeryUnstable
	}
}
