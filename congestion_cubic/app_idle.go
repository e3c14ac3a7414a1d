package congestion_cubic

import (
	"time"

	"github.com/sagernet/sing-cubic/qlog"
)

// SetAppIdle marks the connection as limited by the application. Acks
// received while idle do not grow the window, and the idle time is not
// credited to the cubic curve once the connection is busy again.
func (c *Cubic) SetAppIdle(idle bool, now time.Time) {
	if c.conn.QLogger != nil {
		c.conn.QLogger.AddAppIdleUpdate(qlog.AppIdle, idle)
	}
	if idle == c.appIdle {
		return
	}
	if idle {
		c.appIdle = true
		c.appIdleSince = now
		return
	}
	c.appIdle = false
	steadyState := &c.steadyState
	if steadyState.hasLastReductionTime && now.After(c.appIdleSince) {
		steadyState.lastReductionTime = steadyState.lastReductionTime.Add(now.Sub(c.appIdleSince))
	}
}

func (c *Cubic) IsAppLimited() bool {
	return c.appIdle
}
