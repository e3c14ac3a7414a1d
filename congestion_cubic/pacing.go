package congestion_cubic

import (
	"math"
	"time"
)

// pacingSchedule derives the pacing interval and the number of packets
// released per interval from the window and the smoothed RTT.
func (c *Cubic) pacingSchedule() (interval time.Duration, burst uint64, paced bool) {
	settings := &c.conn.Settings
	floor := maxDuration(c.minimalPacingInterval, time.Nanosecond)
	smoothedRTT := c.conn.SmoothedRTT()
	if smoothedRTT < floor {
		return 0, settings.WriteConnectionDataPacketsLimit, false
	}
	targetCwnd := float64(c.cwnd) * c.state.pacingGain()
	cwndPackets := maxOf(settings.MinCwndInMss, uint64(targetCwnd)/uint64(c.packetLen()))
	cwndPackets = maxOf(cwndPackets, 1)

	interval = smoothedRTT / time.Duration(cwndPackets)
	burst = 1
	if interval < floor {
		interval = floor
		if !c.spreadAcrossRTT {
			burst = uint64(math.Ceil(float64(cwndPackets) * float64(floor) / float64(smoothedRTT)))
		}
	}
	return interval, clamp(burst, 1, c.maxBurstPackets()), true
}

func (c *Cubic) maxBurstPackets() uint64 {
	return maxOf(c.conn.Settings.MaxBurstPackets, 1)
}

func (c *Cubic) CanBePaced() bool {
	_, _, paced := c.pacingSchedule()
	return paced
}

func (c *Cubic) GetPacingInterval() time.Duration {
	interval, _, _ := c.pacingSchedule()
	return interval
}

// GetPacingRate returns the packets to write now. If the pacing timer fired
// later than scheduled, the first call afterwards also releases the packets
// of the missed intervals, up to the burst limit.
func (c *Cubic) GetPacingRate(now time.Time) uint64 {
	interval, burst, paced := c.pacingSchedule()
	scheduled := c.pendingPacerTimeout
	c.pendingPacerTimeout = nil
	if !paced || scheduled == nil || !now.After(*scheduled) {
		return burst
	}
	late := now.Sub(*scheduled)
	compensated := math.Ceil(float64(burst) * (float64(interval) + float64(late)) / float64(interval))
	return uint64(clamp(compensated, float64(burst), float64(c.maxBurstPackets())))
}

func (c *Cubic) MarkPacerTimeoutScheduled(scheduled time.Time) {
	c.pendingPacerTimeout = &scheduled
}
