package websocket

import (
	"time"

	"github.com/clementus360/proxy-share/loop"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

const statusDelay = time.Second

// statusDebouncer reports the last status after it has been stable for
// delay, skipping repeats of the value already reported.
type statusDebouncer struct {
	clock   loop.Clock
	delay   time.Duration
	sink    func(Status)
	last    Status
	pending Status
	timer   loop.Timer
}

func newStatusDebouncer(clock loop.Clock, delay time.Duration, sink func(Status)) *statusDebouncer {
	return &statusDebouncer{clock: clock, delay: delay, sink: sink}
}

func (d *statusDebouncer) report(s Status) {
	if d.sink == nil {
		return
	}
	d.pending = s
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, d.flush)
}

func (d *statusDebouncer) flush() {
	d.timer = nil
	if d.pending == d.last {
		return
	}
	d.last = d.pending
	d.sink(d.last)
}

func (d *statusDebouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
