package congestion_cubic

import (
	"testing"
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-cubic/controller"

	"github.com/stretchr/testify/require"
)

func TestPacingGain(t *testing.T) {
	t.Parallel()
	conn := controller.NewConnection()
	conn.PacketLen = 1500
	conn.RTTStats = &controller.StaticRTT{RTT: 3 * time.Millisecond}
	cubic := newTestCubic(t, conn, DefaultConfig())
	cubic.SetMinimalPacingInterval(time.Millisecond)
	now := testBaseTime

	packet := testPacket(0, 1500, 1500, now)
	cubic.OnPacketSent(packet)
	cubic.OnPacketAckOrLoss(controller.NewAckEvent(packet, 1500, now), nil)
	require.Equal(t, StateHystart, cubic.State())
	// ceil(11 * 2 / (3 / 1))
	require.Equal(t, time.Millisecond, cubic.GetPacingInterval())
	require.Equal(t, uint64(8), cubic.GetPacingRate(now))

	packet1 := testPacket(1, 1500, 3000, now)
	cubic.OnPacketSent(packet1)
	cubic.OnPacketAckOrLoss(nil, lossOf(now, packet1))
	require.Equal(t, StateFastRecovery, cubic.State())
	// ceil(9.9 * 1.25 / (3 / 1))
	require.Equal(t, time.Millisecond, cubic.GetPacingInterval())
	require.Equal(t, uint64(4), cubic.GetPacingRate(now))

	packet2 := testPacket(2, 1500, 4500, now)
	cubic.OnPacketSent(packet2)
	cubic.OnPacketAckOrLoss(controller.NewAckEvent(packet2, 1500, now), nil)
	require.Equal(t, StateSteady, cubic.State())
	// 9 / (3 / 1)
	require.Equal(t, time.Millisecond, cubic.GetPacingInterval())
	require.InDelta(t, 3, cubic.GetPacingRate(now), 1)
}

func TestPacingSpread(t *testing.T) {
	t.Parallel()
	conn := controller.NewConnection()
	conn.PacketLen = 1500
	conn.RTTStats = &controller.StaticRTT{RTT: 60 * time.Millisecond}
	config := DefaultConfig()
	config.PacingSpreadAcrossRTT = true
	cubic := newTestCubic(t, conn, config)
	cubic.SetMinimalPacingInterval(time.Millisecond)

	for i := 0; i < 5; i++ {
		packet := testPacket(congestion.PacketNumber(i), 1500, 4500+1500*congestion.ByteCount(1+i), testBaseTime)
		cubic.OnPacketSent(packet)
		cubic.OnPacketAckOrLoss(controller.NewAckEvent(packet, 1500, testBaseTime), nil)
	}
	require.Equal(t, congestion.ByteCount(1500*15), cubic.GetCongestionWindow())
	require.Equal(t, uint64(1), cubic.GetPacingRate(testBaseTime))
	require.Equal(t, 2*time.Millisecond, cubic.GetPacingInterval())
}

func TestLatePacingTimer(t *testing.T) {
	t.Parallel()
	conn := controller.NewConnection()
	conn.RTTStats = &controller.StaticRTT{RTT: 50 * time.Millisecond}
	cubic := newTestCubic(t, conn, DefaultConfig())
	cubic.SetMinimalPacingInterval(time.Millisecond)
	packet := testPacket(0, conn.PacketLen, conn.PacketLen, testBaseTime)
	cubic.OnPacketSent(packet)
	cubic.OnPacketAckOrLoss(controller.NewAckEvent(packet, conn.PacketLen, testBaseTime), nil)

	currentTime := testBaseTime.Add(time.Second)
	pacingRateWithoutCompensation := cubic.GetPacingRate(currentTime)
	cubic.MarkPacerTimeoutScheduled(currentTime)
	pacingRateWithCompensation := cubic.GetPacingRate(currentTime.Add(50 * time.Millisecond))
	require.Greater(t, pacingRateWithCompensation, pacingRateWithoutCompensation)

	// Never beyond the burst limit, no matter how late.
	cubic.MarkPacerTimeoutScheduled(currentTime)
	veryLatePacingRate := cubic.GetPacingRate(currentTime.Add(100 * time.Second))
	require.LessOrEqual(t, veryLatePacingRate, conn.Settings.MaxBurstPackets)

	// Compensation is consumed by the first call.
	pacingRateAgain := cubic.GetPacingRate(currentTime.Add(50 * time.Millisecond))
	require.Less(t, pacingRateAgain, pacingRateWithCompensation)
}

func TestTimerOnTimeNoCompensation(t *testing.T) {
	t.Parallel()
	conn := controller.NewConnection()
	conn.RTTStats = &controller.StaticRTT{RTT: 50 * time.Millisecond}
	cubic := newTestCubic(t, conn, DefaultConfig())
	cubic.SetMinimalPacingInterval(time.Millisecond)

	rate := cubic.GetPacingRate(testBaseTime)
	cubic.MarkPacerTimeoutScheduled(testBaseTime)
	require.Equal(t, rate, cubic.GetPacingRate(testBaseTime))
}

func TestRttSmallerThanInterval(t *testing.T) {
	t.Parallel()
	conn := controller.NewConnection()
	conn.PacketLen = 1500
	conn.RTTStats = &controller.StaticRTT{RTT: time.Microsecond}
	cubic := newTestCubic(t, conn, DefaultConfig())
	packet := testPacket(0, 1500, 1500, testBaseTime)
	cubic.OnPacketSent(packet)
	cubic.OnPacketAckOrLoss(controller.NewAckEvent(packet, 1500, testBaseTime), nil)
	require.False(t, cubic.CanBePaced())
	require.Zero(t, cubic.GetPacingInterval())
	require.Equal(t, conn.Settings.WriteConnectionDataPacketsLimit, cubic.GetPacingRate(testBaseTime))
}

func TestNoRttSampleDisablesPacing(t *testing.T) {
	t.Parallel()
	cubic := newTestCubic(t, controller.NewConnection(), DefaultConfig())
	require.False(t, cubic.CanBePaced())
	require.Equal(t, uint64(controller.DefaultWriteConnectionDataPacketsLimit), cubic.GetPacingRate(testBaseTime))
}

func TestPacingBurstCapped(t *testing.T) {
	t.Parallel()
	conn := controller.NewConnection()
	conn.RTTStats = &controller.StaticRTT{RTT: time.Millisecond}
	cubic := newTestCubic(t, conn, DefaultConfig())
	cubic.SetMinimalPacingInterval(time.Millisecond)
	// 20 packets per millisecond wanted, at most MaxBurstPackets released.
	require.True(t, cubic.CanBePaced())
	require.Equal(t, time.Millisecond, cubic.GetPacingInterval())
	require.Equal(t, conn.Settings.MaxBurstPackets, cubic.GetPacingRate(testBaseTime))
}
