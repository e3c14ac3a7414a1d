package congestion_cubic

import (
	"math"
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-cubic/controller"
	"github.com/sagernet/sing-cubic/qlog"
	E "github.com/sagernet/sing/common/exceptions"
)

const maxByteCount = congestion.ByteCount(math.MaxInt64)

type steadyState struct {
	// Window at the last reduction, the anchor of the cubic curve (Wmax).
	lastMaxCwnd    congestion.ByteCount
	hasLastMaxCwnd bool
	// Origin of the cubic curve. Shifted forward across app idle periods.
	lastReductionTime    time.Time
	hasLastReductionTime bool
	// K, in milliseconds.
	timeToOrigin float64
	// Sub-byte growth carried to the next ack.
	growthRemainder float64

	estRenoCwnd congestion.ByteCount

	reductionFactor        float64
	lastMaxReductionFactor float64
	renoIncreaseFactor     float64
}

type recoveryState struct {
	// Largest packet sent when the current recovery started.
	endOfRecovery    congestion.PacketNumber
	hasEndOfRecovery bool
	// Time of the last multiplicative reduction. Losses of packets sent
	// before it belong to the same congestion event.
	cutbackTime    time.Time
	hasCutbackTime bool
}

// Cubic is a CUBIC congestion controller for a single connection.
type Cubic struct {
	conn *controller.Connection

	state         State
	cwnd          congestion.ByteCount
	ssthresh      congestion.ByteCount
	bytesInFlight congestion.ByteCount

	largestSent    congestion.PacketNumber
	hasSentPackets bool

	steadyState   steadyState
	recoveryState recoveryState

	tcpFriendly            bool
	numEmulatedConnections int

	appIdle      bool
	appIdleSince time.Time

	minimalPacingInterval time.Duration
	spreadAcrossRTT       bool
	// One-shot expected fire time of the host's pacing timer.
	pendingPacerTimeout *time.Time
}

var _ controller.Controller = (*Cubic)(nil)

// NewCubic creates a Cubic controller reading its connection inputs from conn.
func NewCubic(conn *controller.Connection, config Config) (*Cubic, error) {
	if conn == nil {
		return nil, E.New("missing connection state")
	}
	if conn.PacketLen <= 0 {
		return nil, E.New("invalid packet length: ", int64(conn.PacketLen))
	}
	if conn.Settings.MinCwndInMss == 0 || conn.Settings.MinCwndInMss > conn.Settings.MaxCwndInMss {
		return nil, E.New("invalid congestion window bounds: min=", conn.Settings.MinCwndInMss, " max=", conn.Settings.MaxCwndInMss)
	}
	err := config.Validate()
	if err != nil {
		return nil, E.Cause(err, "cubic config")
	}
	cwnd := config.InitialCongestionWindow
	if cwnd == 0 {
		cwnd = congestion.ByteCount(conn.Settings.InitCwndInMss) * conn.PacketLen
	}
	c := &Cubic{
		conn:                  conn,
		state:                 StateHystart,
		ssthresh:              config.InitialSlowStartThreshold,
		tcpFriendly:           config.TCPFriendly,
		minimalPacingInterval: config.MinimalPacingInterval,
		spreadAcrossRTT:       config.PacingSpreadAcrossRTT,
	}
	c.cwnd = c.boundedCwnd(cwnd)
	c.steadyState.estRenoCwnd = c.cwnd
	c.SetConnectionEmulation(config.EmulatedConnections)
	return c, nil
}

func (c *Cubic) Type() controller.Type {
	return controller.TypeCubic
}

// SetConnectionEmulation makes the connection back off like n TCP flows.
func (c *Cubic) SetConnectionEmulation(n int) {
	if n < 1 {
		n = 1
	}
	c.numEmulatedConnections = n
	c.steadyState.reductionFactor, c.steadyState.lastMaxReductionFactor, c.steadyState.renoIncreaseFactor = reductionFactors(n)
}

// SetPacketLen switches to a new packet size, keeping the window and the
// curve anchor at the same number of packets.
func (c *Cubic) SetPacketLen(packetLen congestion.ByteCount) {
	if packetLen <= 0 || packetLen == c.conn.PacketLen {
		return
	}
	oldLen := c.packetLen()
	c.conn.PacketLen = packetLen
	c.cwnd = c.boundedCwnd(c.cwnd / oldLen * packetLen)
	if c.steadyState.hasLastMaxCwnd {
		c.steadyState.lastMaxCwnd = c.steadyState.lastMaxCwnd / oldLen * packetLen
	}
	if c.steadyState.estRenoCwnd > 0 {
		c.steadyState.estRenoCwnd = c.boundedCwnd(c.steadyState.estRenoCwnd / oldLen * packetLen)
	}
	if c.ssthresh < maxByteCount/packetLen {
		c.ssthresh = c.ssthresh / oldLen * packetLen
	}
}

func (c *Cubic) SetMinimalPacingInterval(interval time.Duration) {
	c.minimalPacingInterval = interval
}

func (c *Cubic) State() State {
	return c.state
}

func (c *Cubic) InSlowStart() bool {
	return c.state == StateHystart
}

func (c *Cubic) InRecovery() bool {
	return c.state == StateFastRecovery
}

func (c *Cubic) GetCongestionWindow() congestion.ByteCount {
	return c.cwnd
}

func (c *Cubic) SlowStartThreshold() congestion.ByteCount {
	return c.ssthresh
}

func (c *Cubic) BytesInFlight() congestion.ByteCount {
	return c.bytesInFlight
}

func (c *Cubic) GetWritableBytes() congestion.ByteCount {
	if c.cwnd > c.bytesInFlight {
		return c.cwnd - c.bytesInFlight
	}
	return 0
}

func (c *Cubic) OnPacketSent(packet controller.Packet) {
	if packet.Size > 0 {
		if maxByteCount-c.bytesInFlight < packet.Size {
			c.bytesInFlight = maxByteCount
		} else {
			c.bytesInFlight += packet.Size
		}
	}
	if !c.hasSentPackets || packet.PacketNumber > c.largestSent {
		c.largestSent = packet.PacketNumber
		c.hasSentPackets = true
	}
}

func (c *Cubic) OnPacketAckOrLoss(ack *controller.AckEvent, loss *controller.LossEvent) {
	var persistentCongestion bool
	if loss != nil {
		c.onPacketLoss(loss)
		persistentCongestion = loss.PersistentCongestion
	}
	if ack == nil {
		return
	}
	if persistentCongestion {
		// The window was just reset, the ack only releases its bytes.
		c.removeBytesFromInflight(ack.AckedBytes)
		c.logCongestionMetricUpdate(qlog.CongestionPacketAck)
		return
	}
	c.onPacketAcked(ack)
}

func (c *Cubic) onPacketLoss(loss *controller.LossEvent) {
	preLossCwnd := c.cwnd
	lossTime := loss.LossTime
	if lossTime.IsZero() {
		lossTime = loss.LargestLostSentTime
	}
	if loss.HasLostPackets() {
		c.removeBytesFromInflight(loss.LostBytes)
		c.logCongestionMetricUpdate(qlog.RemoveInflight)
		if c.isNewCongestionEvent(loss) {
			c.recoveryState.endOfRecovery = c.largestSent
			c.recoveryState.hasEndOfRecovery = true
			c.cubicReduction(lossTime)
			c.state = StateFastRecovery
			c.ssthresh = c.cwnd
			c.logCongestionMetricUpdate(qlog.CubicLoss)
		} else {
			c.logCongestionMetricUpdate(qlog.CubicSkipLoss)
		}
	}
	if loss.PersistentCongestion {
		c.onPersistentCongestion(preLossCwnd, lossTime)
	}
}

// isNewCongestionEvent reports whether the loss happened to a packet sent
// after the last reduction. Packet numbers stand in for unknown send times.
func (c *Cubic) isNewCongestionEvent(loss *controller.LossEvent) bool {
	if !c.recoveryState.hasCutbackTime {
		return true
	}
	if !loss.LargestLostSentTime.IsZero() {
		return loss.LargestLostSentTime.After(c.recoveryState.cutbackTime)
	}
	return !c.recoveryState.hasEndOfRecovery || loss.LargestLostPacketNumber > c.recoveryState.endOfRecovery
}

func (c *Cubic) cubicReduction(lossTime time.Time) {
	steadyState := &c.steadyState
	if !steadyState.hasLastMaxCwnd || c.cwnd >= steadyState.lastMaxCwnd {
		steadyState.lastMaxCwnd = c.cwnd
	} else {
		// Fast convergence: release bandwidth to newer flows.
		steadyState.lastMaxCwnd = congestion.ByteCount(float64(c.cwnd) * steadyState.lastMaxReductionFactor)
	}
	steadyState.hasLastMaxCwnd = true
	steadyState.lastReductionTime = lossTime
	steadyState.hasLastReductionTime = true
	steadyState.growthRemainder = 0

	c.cwnd = c.boundedCwndFloat(float64(c.cwnd) * steadyState.reductionFactor)
	steadyState.estRenoCwnd = c.cwnd
	c.updateTimeToOrigin()

	c.recoveryState.cutbackTime = lossTime
	c.recoveryState.hasCutbackTime = true
	if c.appIdle && lossTime.After(c.appIdleSince) {
		c.appIdleSince = lossTime
	}
}

// onPersistentCongestion collapses the window to the minimum and restarts
// slow start. The curve anchor is re-established by the next steady ack.
func (c *Cubic) onPersistentCongestion(preLossCwnd congestion.ByteCount, lossTime time.Time) {
	minCwnd := c.conn.MinCwnd()
	c.ssthresh = maxOf(preLossCwnd/2, minCwnd)
	c.cwnd = minCwnd

	c.steadyState.hasLastMaxCwnd = false
	c.steadyState.hasLastReductionTime = false
	c.steadyState.timeToOrigin = 0
	c.steadyState.growthRemainder = 0
	c.steadyState.estRenoCwnd = 0

	c.recoveryState.hasEndOfRecovery = false
	c.recoveryState.cutbackTime = lossTime
	c.recoveryState.hasCutbackTime = true

	c.state = StateHystart
	c.logCongestionMetricUpdate(qlog.PersistentCongestion)
}

func (c *Cubic) onPacketAcked(ack *controller.AckEvent) {
	currentCwnd := c.cwnd
	// Bytes that were never in flight release nothing and grow nothing.
	if released := minOf(ack.AckedBytes, c.bytesInFlight); released != ack.AckedBytes {
		trackedAck := *ack
		trackedAck.AckedBytes = released
		ack = &trackedAck
	}
	c.removeBytesFromInflight(ack.AckedBytes)
	switch c.state {
	case StateHystart:
		c.onPacketAckedInHystart(ack)
	case StateSteady:
		c.onPacketAckedInSteady(ack)
	case StateFastRecovery:
		c.onPacketAckedInRecovery(ack)
	}
	if c.cwnd == currentCwnd {
		c.logCongestionMetricUpdate(qlog.CwndNoChange)
	}
	c.logCongestionMetricUpdate(qlog.CongestionPacketAck)
}

func (c *Cubic) onPacketAckedInHystart(ack *controller.AckEvent) {
	if c.appIdle {
		c.logCongestionMetricUpdate(qlog.AckInQuiescence)
		return
	}
	if ack.AckedBytes > 0 {
		if maxByteCount-c.cwnd < ack.AckedBytes {
			c.cwnd = c.boundedCwnd(maxByteCount)
		} else {
			c.cwnd = c.boundedCwnd(c.cwnd + ack.AckedBytes)
		}
	}
	if c.cwnd >= c.ssthresh {
		c.state = StateSteady
	}
}

func (c *Cubic) onPacketAckedInRecovery(ack *controller.AckEvent) {
	if c.recoveryState.hasEndOfRecovery && ack.LargestAckedPacket <= c.recoveryState.endOfRecovery {
		c.logCongestionMetricUpdate(qlog.CubicSkipAck)
		return
	}
	c.recoveryState.hasEndOfRecovery = false
	c.state = StateSteady
	// Catch up with the curve once, so that acks in Steady only ever grow
	// the window. Reno estimation is left to the steady handler.
	steadyState := &c.steadyState
	if steadyState.hasLastMaxCwnd && steadyState.hasLastReductionTime && !c.appIdle {
		c.updateTimeToOrigin()
		c.cwnd = maxOf(c.cwnd, c.cubicTarget(ack.AckTime))
		steadyState.growthRemainder = 0
	}
}

func (c *Cubic) onPacketAckedInSteady(ack *controller.AckEvent) {
	if c.appIdle {
		c.logCongestionMetricUpdate(qlog.AckInQuiescence)
		return
	}
	steadyState := &c.steadyState
	if !steadyState.hasLastMaxCwnd {
		// Entered from Hystart, the curve starts at the current window.
		steadyState.timeToOrigin = 0
		steadyState.lastMaxCwnd = c.cwnd
		steadyState.hasLastMaxCwnd = true
		steadyState.estRenoCwnd = c.cwnd
		c.logCongestionMetricUpdate(qlog.ResetTimeToOrigin)
	}
	if !steadyState.hasLastReductionTime {
		steadyState.lastReductionTime = ack.AckTime
		steadyState.hasLastReductionTime = true
		steadyState.growthRemainder = 0
		c.logCongestionMetricUpdate(qlog.ResetLastReductionTime)
	}
	c.growTowardsCubicTarget(ack)
	if c.tcpFriendly && ack.AckedBytes > 0 {
		c.growRenoEstimate(ack)
	}
	c.logCongestionMetricUpdate(qlog.CubicSteadyCwnd)
}

// growTowardsCubicTarget moves cwnd towards the curve. With an RTT sample
// each ack may take only its share of the growth the curve makes over the
// next RTT.
func (c *Cubic) growTowardsCubicTarget(ack *controller.AckEvent) {
	steadyState := &c.steadyState
	target := c.cubicTarget(ack.AckTime)
	if target <= c.cwnd {
		return
	}
	smoothedRTT := c.conn.SmoothedRTT()
	if smoothedRTT <= 0 || c.cwnd <= 0 {
		c.cwnd = target
		steadyState.growthRemainder = 0
		return
	}
	nextTarget := c.cubicTarget(ack.AckTime.Add(smoothedRTT))
	allowance := float64(nextTarget-target)*float64(ack.AckedBytes)/float64(c.cwnd) + steadyState.growthRemainder
	increment := math.Floor(allowance)
	if gap := float64(target - c.cwnd); increment >= gap {
		c.cwnd = target
		steadyState.growthRemainder = 0
		return
	}
	steadyState.growthRemainder = allowance - increment
	c.cwnd += congestion.ByteCount(increment)
}

func (c *Cubic) growRenoEstimate(ack *controller.AckEvent) {
	steadyState := &c.steadyState
	if steadyState.estRenoCwnd <= 0 {
		steadyState.estRenoCwnd = c.cwnd
	}
	increase := steadyState.renoIncreaseFactor * float64(ack.AckedBytes) * float64(c.packetLen()) / float64(steadyState.estRenoCwnd)
	steadyState.estRenoCwnd = c.boundedCwndFloat(float64(steadyState.estRenoCwnd) + increase)
	c.cwnd = maxOf(c.cwnd, steadyState.estRenoCwnd)
}

func (c *Cubic) updateTimeToOrigin() {
	steadyState := &c.steadyState
	if steadyState.lastMaxCwnd <= c.cwnd {
		steadyState.timeToOrigin = 0
		return
	}
	bytesToOrigin := float64(steadyState.lastMaxCwnd - c.cwnd)
	steadyState.timeToOrigin = math.Cbrt(bytesToOrigin * 1e9 / (float64(c.packetLen()) * TimeScalingFactor))
}

// cubicTarget evaluates W(t) = Wmax + C * packetLen * (t - K)^3 with t and K
// in milliseconds.
func (c *Cubic) cubicTarget(at time.Time) congestion.ByteCount {
	steadyState := &c.steadyState
	elapsed := at.Sub(steadyState.lastReductionTime)
	if elapsed < 0 {
		elapsed = 0
	}
	offset := float64(elapsed.Milliseconds()) - steadyState.timeToOrigin
	delta := math.Floor(float64(c.packetLen()) * TimeScalingFactor * offset * offset * offset / 1e9)
	return c.boundedCwndFloat(float64(steadyState.lastMaxCwnd) + delta)
}

func (c *Cubic) packetLen() congestion.ByteCount {
	return maxOf(c.conn.PacketLen, 1)
}

func (c *Cubic) removeBytesFromInflight(bytes congestion.ByteCount) {
	if bytes <= 0 {
		return
	}
	if bytes >= c.bytesInFlight {
		c.bytesInFlight = 0
		return
	}
	c.bytesInFlight -= bytes
}

func (c *Cubic) boundedCwnd(cwnd congestion.ByteCount) congestion.ByteCount {
	return clamp(cwnd, c.conn.MinCwnd(), c.conn.MaxCwnd())
}

func (c *Cubic) boundedCwndFloat(cwnd float64) congestion.ByteCount {
	return congestion.ByteCount(clamp(cwnd, float64(c.conn.MinCwnd()), float64(c.conn.MaxCwnd())))
}

func (c *Cubic) logCongestionMetricUpdate(congestionEvent string) {
	if c.conn.QLogger == nil {
		return
	}
	c.conn.QLogger.AddCongestionMetricUpdate(c.bytesInFlight, c.cwnd, congestionEvent, c.state.String(), "")
}
