package editlock

import (
	"time"

	"github.com/robfig/cron/v3"
)

// intervalSchedule fires every interval, reading the interval each time the
// scheduler asks for the next activation. A changed interval therefore takes
// effect for the activation after the one already queued.
type intervalSchedule struct {
	interval func() time.Duration
}

var _ cron.Schedule = intervalSchedule{}

func (s intervalSchedule) Next(t time.Time) time.Time {
	d := s.interval()
	if d <= 0 {
		d = DefaultHeartbeatInterval
	}
	return t.Add(d)
}

// heartbeatJob is the cron job bound to one generation of the session.
type heartbeatJob struct {
	session    *Session
	generation uint64
}

func (j heartbeatJob) Run() {
	j.session.beat(j.generation)
}
