package domain

type ConnectionType string

const (
	ConnectionNone     ConnectionType = "none"
	ConnectionWifi     ConnectionType = "wifi"
	ConnectionMobile   ConnectionType = "mobile"
	ConnectionEthernet ConnectionType = "ethernet"
	ConnectionUnknown  ConnectionType = "unknown"
)

// LatencyUnknown is the sentinel stored when the latency probe cannot
// connect.
const LatencyUnknown int64 = -1

// NetworkState is an ephemeral connectivity snapshot; it is never persisted.
type NetworkState struct {
	Connected      bool           `json:"connected"`
	ConnectionType ConnectionType `json:"connection_type"`
	BandwidthBps   int64          `json:"bandwidth_bps"`
	Metered        bool           `json:"metered"`
	SignalStrength int            `json:"signal_strength"`
	LatencyMs      int64          `json:"latency_ms"`
}

// Satisfies reports whether this network state meets an operation's
// requirement. WIFI_ONLY needs a wifi link; MOBILE_DATA_OK needs any link.
func (s NetworkState) Satisfies(req NetworkRequirement) bool {
	switch req {
	case RequireAny:
		return true
	case RequireWifiOnly:
		return s.Connected && s.ConnectionType == ConnectionWifi
	case RequireMobileDataOK:
		return s.Connected
	default:
		return false
	}
}

// Label collapses the snapshot into the coarse label the executable-
// operations query filters on.
func (s NetworkState) Label() NetworkRequirement {
	if !s.Connected {
		return "NONE"
	}
	if s.ConnectionType == ConnectionWifi {
		return RequireWifiOnly
	}
	if s.ConnectionType == ConnectionMobile {
		return RequireMobileDataOK
	}
	return RequireAny
}
