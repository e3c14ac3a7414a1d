package congestion_quic

import (
	"context"
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-cubic/controller"
	"github.com/sagernet/sing/common/logger"
)

type packetLenSetter interface {
	SetPacketLen(packetLen congestion.ByteCount)
}

// Sender drives a controller.Controller from quic-go's congestion control
// callbacks.
type Sender struct {
	ctx        context.Context
	logger     logger.ContextLogger
	clock      Clock
	conn       *controller.Connection
	controller controller.Controller
	pacer      *pacer

	sentPackets    *sentPacketQueue
	totalBytesSent congestion.ByteCount
}

var _ congestion.CongestionControl = (*Sender)(nil)

func NewSender(ctx context.Context, contextLogger logger.ContextLogger, clock Clock, conn *controller.Connection, controller controller.Controller) *Sender {
	return &Sender{
		ctx:         ctx,
		logger:      contextLogger,
		clock:       clock,
		conn:        conn,
		controller:  controller,
		pacer:       newPacer(controller),
		sentPackets: newSentPacketQueue(),
	}
}

func (s *Sender) Controller() controller.Controller {
	return s.controller
}

func (s *Sender) SetRTTStatsProvider(provider congestion.RTTStatsProvider) {
	s.conn.RTTStats = provider
}

func (s *Sender) TimeUntilSend(bytesInFlight congestion.ByteCount) time.Time {
	return s.pacer.TimeUntilSend()
}

func (s *Sender) HasPacingBudget(now time.Time) bool {
	return s.pacer.Budget(now) > 0
}

func (s *Sender) OnPacketSent(sentTime time.Time, bytesInFlight congestion.ByteCount, packetNumber congestion.PacketNumber, bytes congestion.ByteCount, isRetransmittable bool) {
	s.pacer.SentPacket(sentTime)
	if !isRetransmittable {
		return
	}
	if s.controller.IsAppLimited() {
		s.controller.SetAppIdle(false, sentTime)
	}
	s.totalBytesSent += bytes
	packet := controller.Packet{
		PacketNumber:   packetNumber,
		Size:           bytes,
		TotalBytesSent: s.totalBytesSent,
		SentTime:       sentTime,
	}
	if !s.sentPackets.Add(packet) {
		s.debug("ignore out of order packet ", int64(packetNumber))
		return
	}
	s.controller.OnPacketSent(packet)
}

func (s *Sender) CanSend(bytesInFlight congestion.ByteCount) bool {
	return bytesInFlight < s.controller.GetCongestionWindow()
}

// MaybeExitSlowStart does nothing. Slow start ends when the window reaches
// the slow start threshold.
func (s *Sender) MaybeExitSlowStart() {
}

func (s *Sender) OnPacketAcked(number congestion.PacketNumber, ackedBytes congestion.ByteCount, priorInFlight congestion.ByteCount, eventTime time.Time) {
	packet, loaded := s.sentPackets.Remove(number)
	if !loaded {
		return
	}
	s.controller.OnPacketAckOrLoss(controller.NewAckEvent(packet, ackedBytes, eventTime), nil)
	if s.sentPackets.IsEmpty() && priorInFlight <= ackedBytes {
		// Nothing left in flight, the application is the bottleneck now.
		s.controller.SetAppIdle(true, eventTime)
	}
}

func (s *Sender) OnPacketLost(number congestion.PacketNumber, lostBytes congestion.ByteCount, priorInFlight congestion.ByteCount) {
	packet, loaded := s.sentPackets.Remove(number)
	if !loaded {
		return
	}
	packet.Size = lostBytes
	loss := controller.NewLossEvent(s.clock.Now())
	loss.AddLostPacket(packet)
	s.controller.OnPacketAckOrLoss(nil, loss)
}

// OnRetransmissionTimeout treats a timeout that retransmitted packets as
// persistent congestion.
func (s *Sender) OnRetransmissionTimeout(packetsRetransmitted bool) {
	if !packetsRetransmitted {
		return
	}
	loss := controller.NewLossEvent(s.clock.Now())
	loss.PersistentCongestion = true
	s.controller.OnPacketAckOrLoss(nil, loss)
	s.debug("persistent congestion, cwnd=", int64(s.controller.GetCongestionWindow()))
}

// SetMaxDatagramSize grows the packet size. A smaller size is ignored, the
// window keeps its current packet size.
func (s *Sender) SetMaxDatagramSize(size congestion.ByteCount) {
	if size <= s.conn.PacketLen {
		if size < s.conn.PacketLen {
			s.debug("ignore decreased max datagram size ", int64(size))
		}
		return
	}
	if setter, isSetter := s.controller.(packetLenSetter); isSetter {
		setter.SetPacketLen(size)
	} else {
		s.conn.PacketLen = size
	}
}

func (s *Sender) debug(args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.DebugContext(s.ctx, append([]any{string(s.controller.Type()), ": "}, args...)...)
}

func (s *Sender) InSlowStart() bool {
	return s.controller.InSlowStart()
}

func (s *Sender) InRecovery() bool {
	return s.controller.InRecovery()
}

func (s *Sender) GetCongestionWindow() congestion.ByteCount {
	return s.controller.GetCongestionWindow()
}
