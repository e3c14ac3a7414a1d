package controller

import (
	"time"

	"github.com/sagernet/quic-go/congestion"
)

// Packet describes a packet written to the network.
type Packet struct {
	PacketNumber congestion.PacketNumber
	// Size is the encoded size of the packet.
	Size congestion.ByteCount
	// TotalBytesSent is the number of bytes sent on the connection so far,
	// including this packet.
	TotalBytesSent congestion.ByteCount
	SentTime       time.Time
}

// AckEvent reports newly acknowledged data.
type AckEvent struct {
	LargestAckedPacket         congestion.PacketNumber
	LargestAckedPacketSentTime time.Time
	AckedBytes                 congestion.ByteCount
	AckTime                    time.Time
}

// NewAckEvent builds an AckEvent for a single acknowledged packet.
func NewAckEvent(packet Packet, ackedBytes congestion.ByteCount, ackTime time.Time) *AckEvent {
	return &AckEvent{
		LargestAckedPacket:         packet.PacketNumber,
		LargestAckedPacketSentTime: packet.SentTime,
		AckedBytes:                 ackedBytes,
		AckTime:                    ackTime,
	}
}

// LossEvent reports packets declared lost by the loss detection pipeline.
type LossEvent struct {
	LostBytes   congestion.ByteCount
	LostPackets int

	LargestLostPacketNumber congestion.PacketNumber
	LargestLostSentTime     time.Time

	// PersistentCongestion forces a full window reset.
	PersistentCongestion bool
	LossTime             time.Time
}

// NewLossEvent creates an empty loss report detected at lossTime.
func NewLossEvent(lossTime time.Time) *LossEvent {
	return &LossEvent{LossTime: lossTime}
}

// AddLostPacket folds a lost packet into the report.
func (l *LossEvent) AddLostPacket(packet Packet) {
	if l.LostPackets == 0 || packet.PacketNumber > l.LargestLostPacketNumber {
		l.LargestLostPacketNumber = packet.PacketNumber
	}
	if packet.SentTime.After(l.LargestLostSentTime) {
		l.LargestLostSentTime = packet.SentTime
	}
	l.LostBytes += packet.Size
	l.LostPackets++
}

// HasLostPackets reports whether at least one packet was added.
func (l *LossEvent) HasLostPackets() bool {
	return l.LostPackets > 0
}
