// Package controller defines the congestion controller capability shared by
// every algorithm, together with the transient event records handed to it
// by the host transport.
package controller

import (
	"time"

	"github.com/sagernet/quic-go/congestion"
)

// Type identifies a congestion control algorithm.
type Type string

const (
	TypeCubic Type = "cubic"
)

// Controller is the capability a connection uses to decide how many bytes may
// be outstanding and how fast packets are paced onto the wire.
//
// A Controller is owned by a single connection and is not safe for
// concurrent use. Time is always supplied by the caller.
type Controller interface {
	Type() Type

	// OnPacketSent records a packet handed to the network.
	OnPacketSent(packet Packet)
	// OnPacketAckOrLoss applies an ack report, a loss report, or both as one
	// state transition. At least one of the two must be non-nil.
	OnPacketAckOrLoss(ack *AckEvent, loss *LossEvent)

	GetWritableBytes() congestion.ByteCount
	GetCongestionWindow() congestion.ByteCount

	// GetPacingRate returns the number of packets that may be written in the
	// current pacing interval.
	GetPacingRate(now time.Time) uint64
	GetPacingInterval() time.Duration
	CanBePaced() bool
	// MarkPacerTimeoutScheduled records when the host's pacing timer is
	// expected to fire. A later GetPacingRate call compensates once for
	// the timer firing late.
	MarkPacerTimeoutScheduled(scheduled time.Time)

	SetAppIdle(idle bool, now time.Time)
	IsAppLimited() bool

	InSlowStart() bool
	InRecovery() bool
}
