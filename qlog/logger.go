package qlog

import (
	"context"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing/common/logger"
)

// Logger is the sink a controller reports to.
type Logger interface {
	AddCongestionMetricUpdate(bytesInFlight, currentCwnd congestion.ByteCount, congestionEvent, state, recoveryState string)
	AddAppIdleUpdate(idleEvent string, idle bool)
}

// MemoryLogger keeps every record in order.
type MemoryLogger struct {
	Logs []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) AddCongestionMetricUpdate(bytesInFlight, currentCwnd congestion.ByteCount, congestionEvent, state, recoveryState string) {
	l.Logs = append(l.Logs, &CongestionMetricUpdateEvent{
		BytesInFlight:   bytesInFlight,
		CurrentCwnd:     currentCwnd,
		CongestionEvent: congestionEvent,
		State:           state,
		RecoveryState:   recoveryState,
	})
}

func (l *MemoryLogger) AddAppIdleUpdate(idleEvent string, idle bool) {
	l.Logs = append(l.Logs, &AppIdleUpdateEvent{
		IdleEvent: idleEvent,
		Idle:      idle,
	})
}

// EventIndices returns the positions of all records of the given type.
func (l *MemoryLogger) EventIndices(eventType EventType) []int {
	var indices []int
	for i, event := range l.Logs {
		if event.Type() == eventType {
			indices = append(indices, i)
		}
	}
	return indices
}

// CongestionMetricUpdates returns the congestion metric records in order.
func (l *MemoryLogger) CongestionMetricUpdates() []*CongestionMetricUpdateEvent {
	var events []*CongestionMetricUpdateEvent
	for _, event := range l.Logs {
		if update, isUpdate := event.(*CongestionMetricUpdateEvent); isUpdate {
			events = append(events, update)
		}
	}
	return events
}

// AppIdleUpdates returns the app idle records in order.
func (l *MemoryLogger) AppIdleUpdates() []*AppIdleUpdateEvent {
	var events []*AppIdleUpdateEvent
	for _, event := range l.Logs {
		if update, isUpdate := event.(*AppIdleUpdateEvent); isUpdate {
			events = append(events, update)
		}
	}
	return events
}

// Reset drops all recorded events.
func (l *MemoryLogger) Reset() {
	l.Logs = nil
}

// ContextLogger writes records to a sing logger. Metric updates go to trace
// level and idle toggles to debug level.
type ContextLogger struct {
	ctx    context.Context
	logger logger.ContextLogger
	tag    string
}

// NewContextLogger creates a ContextLogger. A nil contextLogger drops every
// record.
func NewContextLogger(ctx context.Context, contextLogger logger.ContextLogger, tag string) *ContextLogger {
	return &ContextLogger{
		ctx:    ctx,
		logger: contextLogger,
		tag:    tag,
	}
}

func (l *ContextLogger) AddCongestionMetricUpdate(bytesInFlight, currentCwnd congestion.ByteCount, congestionEvent, state, recoveryState string) {
	if l.logger == nil {
		return
	}
	if recoveryState == "" {
		l.logger.TraceContext(l.ctx, l.tag, ": ", congestionEvent, ", state=", state, ", cwnd=", int64(currentCwnd), ", inflight=", int64(bytesInFlight))
		return
	}
	l.logger.TraceContext(l.ctx, l.tag, ": ", congestionEvent, ", state=", state, ", recovery=", recoveryState, ", cwnd=", int64(currentCwnd), ", inflight=", int64(bytesInFlight))
}

func (l *ContextLogger) AddAppIdleUpdate(idleEvent string, idle bool) {
	if l.logger == nil {
		return
	}
	l.logger.DebugContext(l.ctx, l.tag, ": ", idleEvent, ", idle=", idle)
}

// MultiLogger fans records out to several sinks.
type MultiLogger []Logger

func (m MultiLogger) AddCongestionMetricUpdate(bytesInFlight, currentCwnd congestion.ByteCount, congestionEvent, state, recoveryState string) {
	for _, l := range m {
		l.AddCongestionMetricUpdate(bytesInFlight, currentCwnd, congestionEvent, state, recoveryState)
	}
}

func (m MultiLogger) AddAppIdleUpdate(idleEvent string, idle bool) {
	for _, l := range m {
		l.AddAppIdleUpdate(idleEvent, idle)
	}
}
