package congestion_quic

import (
	"math"
	"time"

	"github.com/sagernet/sing-cubic/controller"
)

// pacer releases packets in bursts of the controller's pacing rate, one burst
// per pacing interval.
type pacer struct {
	controller   controller.Controller
	budget       uint64
	nextSendTime time.Time
}

func newPacer(controller controller.Controller) *pacer {
	return &pacer{controller: controller}
}

// Budget returns the packets that may be sent at now, opening a new burst if
// the previous one is used up and its interval has passed.
func (p *pacer) Budget(now time.Time) uint64 {
	if !p.controller.CanBePaced() {
		return math.MaxUint64
	}
	if p.budget == 0 && !now.Before(p.nextSendTime) {
		p.budget = p.controller.GetPacingRate(now)
	}
	return p.budget
}

func (p *pacer) SentPacket(sendTime time.Time) {
	if !p.controller.CanBePaced() {
		p.budget = 0
		p.nextSendTime = time.Time{}
		return
	}
	if p.Budget(sendTime) == 0 {
		// Sent ahead of schedule, nothing left to consume.
		return
	}
	p.budget--
	if p.budget == 0 {
		p.nextSendTime = sendTime.Add(p.controller.GetPacingInterval())
		p.controller.MarkPacerTimeoutScheduled(p.nextSendTime)
	}
}

// TimeUntilSend returns when the next packet may be sent. It returns the zero
// value of time.Time if a packet can be sent immediately.
func (p *pacer) TimeUntilSend() time.Time {
	if p.budget > 0 || !p.controller.CanBePaced() {
		return time.Time{}
	}
	return p.nextSendTime
}
