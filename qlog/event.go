// Package qlog carries the diagnostic records emitted by congestion
// controllers and the sinks that consume them.
package qlog

import (
	"github.com/sagernet/quic-go/congestion"
)

// Congestion event tags.
const (
	RemoveInflight         = "remove bytes in flight"
	CubicLoss              = "cubic loss"
	CubicSkipLoss          = "cubic skip loss"
	PersistentCongestion   = "persistent congestion"
	CongestionPacketAck    = "congestion packet ack"
	ResetTimeToOrigin      = "reset time to origin"
	ResetLastReductionTime = "reset last reduction time"
	CubicSteadyCwnd        = "cubic steady cwnd"
	CwndNoChange           = "cwnd no change"
	AckInQuiescence        = "ack in quiescence"
	CubicSkipAck           = "cubic skip ack"

	AppIdle = "app idle"
)

type EventType int

const (
	EventTypeCongestionMetricUpdate EventType = iota
	EventTypeAppIdleUpdate
)

func (t EventType) String() string {
	switch t {
	case EventTypeCongestionMetricUpdate:
		return "congestion_metric_update"
	case EventTypeAppIdleUpdate:
		return "app_idle_update"
	default:
		return "unknown"
	}
}

type Event interface {
	Type() EventType
}

// CongestionMetricUpdateEvent is emitted whenever the window or state changes.
type CongestionMetricUpdateEvent struct {
	BytesInFlight   congestion.ByteCount
	CurrentCwnd     congestion.ByteCount
	CongestionEvent string
	State           string
	RecoveryState   string
}

func (e *CongestionMetricUpdateEvent) Type() EventType {
	return EventTypeCongestionMetricUpdate
}

// AppIdleUpdateEvent is emitted on every app idle toggle.
type AppIdleUpdateEvent struct {
	IdleEvent string
	Idle      bool
}

func (e *AppIdleUpdateEvent) Type() EventType {
	return EventTypeAppIdleUpdate
}
