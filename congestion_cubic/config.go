package congestion_cubic

import (
	"math"
	"time"

	"github.com/sagernet/quic-go/congestion"
	E "github.com/sagernet/sing/common/exceptions"
)

const (
	// TimeScalingFactor is C in W(t) = C*(t-K)^3 + Wmax, in packets per
	// second cubed.
	TimeScalingFactor = 0.4

	// DefaultReductionFactor is the multiplicative decrease for a single
	// flow. With N emulated flows the effective factor is (N-1+beta)/N.
	DefaultReductionFactor = 0.8

	// DefaultEmulatedConnections makes one connection back off like two.
	DefaultEmulatedConnections = 2

	// Pacing gains per state.
	HystartPacingGain  = 2.0
	RecoveryPacingGain = 1.25
	SteadyPacingGain   = 1.0

	DefaultMinimalPacingInterval = time.Millisecond
)

// Config contains the tunables of a Cubic controller.
type Config struct {
	// Initial congestion window in bytes. Zero means InitCwndInMss packets.
	InitialCongestionWindow congestion.ByteCount
	// Initial slow start threshold in bytes.
	InitialSlowStartThreshold congestion.ByteCount
	// Grow at least as fast as an emulated Reno flow in steady state.
	TCPFriendly bool
	// Release one packet per interval across the whole RTT instead of
	// bursting at the minimal interval.
	PacingSpreadAcrossRTT bool
	// Number of TCP flows the connection backs off like.
	EmulatedConnections int
	// Floor of the pacing interval. Below it the burst grows instead.
	MinimalPacingInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitialSlowStartThreshold: math.MaxInt64,
		EmulatedConnections:       DefaultEmulatedConnections,
		MinimalPacingInterval:     DefaultMinimalPacingInterval,
	}
}

func (c Config) Validate() error {
	if c.InitialCongestionWindow < 0 {
		return E.New("invalid initial congestion window: ", int64(c.InitialCongestionWindow))
	}
	if c.InitialSlowStartThreshold <= 0 {
		return E.New("invalid initial slow start threshold: ", int64(c.InitialSlowStartThreshold))
	}
	if c.EmulatedConnections <= 0 {
		return E.New("invalid emulated connections: ", c.EmulatedConnections)
	}
	if c.MinimalPacingInterval < 0 {
		return E.New("invalid minimal pacing interval: ", c.MinimalPacingInterval)
	}
	return nil
}

// reductionFactors derives beta, the fast convergence factor and the Reno
// estimation alpha for n emulated flows.
func reductionFactors(n int) (reduction, lastMaxReduction, renoIncrease float64) {
	flows := float64(n)
	reduction = (flows - 1 + DefaultReductionFactor) / flows
	lastMaxReduction = 0.5 * (1 + reduction)
	renoIncrease = 3 * flows * flows * (1 - reduction) / (1 + reduction)
	return
}
