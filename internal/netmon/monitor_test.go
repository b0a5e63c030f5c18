package netmon

import (
	"context"
	"testing"
	"time"

	"notesync-engine/internal/domain"
)

func TestGetSyncRecommendation(t *testing.T) {
	tests := []struct {
		name  string
		state domain.NetworkState
		want  SyncRecommendation
	}{
		{"disconnected", domain.NetworkState{Connected: false}, Wait},
		{"fast wifi", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionWifi, BandwidthBps: 2_000_000}, SyncAll},
		{"medium wifi", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionWifi, BandwidthBps: 500_000}, SyncPriority},
		{"slow wifi", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionWifi, BandwidthBps: 50_000}, SyncEssential},
		{"metered mobile", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionMobile, Metered: true, BandwidthBps: 2_000_000}, SyncEssential},
		{"fast unmetered mobile", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionMobile, BandwidthBps: 600_000}, SyncPriority},
		{"slow unmetered mobile", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionMobile, BandwidthBps: 100_000}, SyncEssential},
		{"ethernet", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionEthernet, BandwidthBps: 10_000_000}, SyncEssential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(nil, nil)
			m.update(context.Background(), tt.state)

			if got := m.GetSyncRecommendation(); got != tt.want {
				t.Errorf("recommendation = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetOptimalBatchSize(t *testing.T) {
	tests := []struct {
		name  string
		state domain.NetworkState
		want  int
	}{
		{"disconnected", domain.NetworkState{Connected: false}, 0},
		{"fast wifi", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionWifi, BandwidthBps: 2_000_000}, 50},
		{"medium wifi", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionWifi, BandwidthBps: 500_000}, 20},
		{"metered mobile", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionMobile, Metered: true}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(nil, nil)
			m.update(context.Background(), tt.state)

			if got := m.GetOptimalBatchSize(); got != tt.want {
				t.Errorf("batch size = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetRecommendedSyncInterval(t *testing.T) {
	tests := []struct {
		name  string
		state domain.NetworkState
		want  time.Duration
	}{
		{"disconnected", domain.NetworkState{Connected: false}, 5 * time.Minute},
		{"wifi", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionWifi}, 30 * time.Second},
		{"metered mobile", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionMobile, Metered: true}, 5 * time.Minute},
		{"unmetered mobile", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionMobile}, time.Minute},
		{"ethernet", domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionEthernet}, 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(nil, nil)
			m.update(context.Background(), tt.state)

			if got := m.GetRecommendedSyncInterval(); got != tt.want {
				t.Errorf("interval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldExecuteOperation(t *testing.T) {
	m := NewMonitor(nil, nil)
	m.update(context.Background(), domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionMobile})

	if !m.ShouldExecuteOperation(domain.RequireAny) {
		t.Error("ANY should execute on mobile")
	}
	if !m.ShouldExecuteOperation(domain.RequireMobileDataOK) {
		t.Error("MOBILE_DATA_OK should execute on mobile")
	}
	if m.ShouldExecuteOperation(domain.RequireWifiOnly) {
		t.Error("WIFI_ONLY must not execute on mobile")
	}

	m.update(context.Background(), domain.NetworkState{Connected: false, ConnectionType: domain.ConnectionNone})
	if m.ShouldExecuteOperation(domain.RequireMobileDataOK) {
		t.Error("MOBILE_DATA_OK must not execute offline")
	}
	if !m.ShouldExecuteOperation(domain.RequireAny) {
		t.Error("ANY is executable even offline; the queue defers it elsewhere")
	}
}

func TestConnectivityPattern(t *testing.T) {
	sequences := []struct {
		name      string
		connected []bool
		want      ConnectivityPattern
	}{
		{"steady online", []bool{true, true, true, true}, PatternStable},
		{"one drop", []bool{true, false, true, true}, PatternOccasionalDrops},
		{"several drops", []bool{true, false, true, false, true}, PatternUnstable},
		{"flapping", []bool{true, false, true, false, true, false, true, false}, PatternVeryUnstable},
	}

	for _, tt := range sequences {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(nil, nil)
			for _, c := range tt.connected {
				m.update(context.Background(), domain.NetworkState{Connected: c})
			}

			if got := m.ConnectivityPattern(); got != tt.want {
				t.Errorf("pattern = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	m := NewMonitor(nil, nil)
	ch := m.Subscribe()

	state := domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionWifi}
	m.update(context.Background(), state)

	select {
	case got := <-ch:
		if got.ConnectionType != domain.ConnectionWifi {
			t.Errorf("received state %+v", got)
		}
	default:
		t.Fatal("expected a buffered update")
	}
}

func TestNetworkStateLabel(t *testing.T) {
	tests := []struct {
		state domain.NetworkState
		want  domain.NetworkRequirement
	}{
		{domain.NetworkState{Connected: false}, "NONE"},
		{domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionWifi}, domain.RequireWifiOnly},
		{domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionMobile}, domain.RequireMobileDataOK},
		{domain.NetworkState{Connected: true, ConnectionType: domain.ConnectionEthernet}, domain.RequireAny},
	}

	for _, tt := range tests {
		if got := tt.state.Label(); got != tt.want {
			t.Errorf("Label(%+v) = %s, want %s", tt.state, got, tt.want)
		}
	}
}
