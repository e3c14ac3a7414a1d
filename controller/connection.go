package controller

import (
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-cubic/qlog"
)

const (
	// DefaultPacketLen is the UDP payload size used before path MTU discovery.
	DefaultPacketLen congestion.ByteCount = 1232

	DefaultInitCwndInMss                   = 10
	DefaultMinCwndInMss                    = 2
	DefaultMaxCwndInMss                    = 2000
	DefaultMaxBurstPackets                 = 10
	DefaultWriteConnectionDataPacketsLimit = 5
)

// TransportSettings are the connection level knobs a controller reads.
type TransportSettings struct {
	// Window sizes in units of PacketLen.
	InitCwndInMss uint64
	MinCwndInMss  uint64
	MaxCwndInMss  uint64

	// MaxBurstPackets caps the packets released per pacing interval.
	MaxBurstPackets uint64
	// WriteConnectionDataPacketsLimit is the number of packets written per
	// call when pacing is not possible.
	WriteConnectionDataPacketsLimit uint64
}

func DefaultTransportSettings() TransportSettings {
	return TransportSettings{
		InitCwndInMss:                   DefaultInitCwndInMss,
		MinCwndInMss:                    DefaultMinCwndInMss,
		MaxCwndInMss:                    DefaultMaxCwndInMss,
		MaxBurstPackets:                 DefaultMaxBurstPackets,
		WriteConnectionDataPacketsLimit: DefaultWriteConnectionDataPacketsLimit,
	}
}

// RTTProvider supplies the smoothed RTT. quic-go's congestion.RTTStatsProvider
// satisfies it.
type RTTProvider interface {
	SmoothedRTT() time.Duration
}

// Connection holds the read-only connection state a controller consults.
// The host may update PacketLen and RTTStats between calls.
type Connection struct {
	PacketLen congestion.ByteCount
	Settings  TransportSettings
	RTTStats  RTTProvider
	// QLogger receives diagnostic records. It may be nil.
	QLogger qlog.Logger
}

// NewConnection returns a Connection with default settings.
func NewConnection() *Connection {
	return &Connection{
		PacketLen: DefaultPacketLen,
		Settings:  DefaultTransportSettings(),
	}
}

// SmoothedRTT returns the current smoothed RTT, or zero without a sample.
func (c *Connection) SmoothedRTT() time.Duration {
	if c.RTTStats == nil {
		return 0
	}
	return c.RTTStats.SmoothedRTT()
}

// MinCwnd returns the smallest window in bytes.
func (c *Connection) MinCwnd() congestion.ByteCount {
	return congestion.ByteCount(c.Settings.MinCwndInMss) * c.PacketLen
}

// MaxCwnd returns the largest window in bytes.
func (c *Connection) MaxCwnd() congestion.ByteCount {
	return congestion.ByteCount(c.Settings.MaxCwndInMss) * c.PacketLen
}

// StaticRTT is an RTTProvider with a fixed value, for hosts that track the
// RTT elsewhere and push it in.
type StaticRTT struct {
	RTT time.Duration
}

func (r *StaticRTT) SmoothedRTT() time.Duration {
	return r.RTT
}
