package lifecycle

import (
	"fmt"
	"time"

	"github.com/clementus360/proxy-share/loop"
)

const ExpiredText = "Expired"

// Countdown shows the time left until the session expires and fires the
// expiry exactly once.
type Countdown struct {
	clock     loop.Clock
	expiresAt time.Time
	display   func(string)
	onExpire  func()

	ticker loop.Timer
	fired  bool
}

func NewCountdown(clock loop.Clock, expiresAt time.Time, display func(string), onExpire func()) *Countdown {
	return &Countdown{clock: clock, expiresAt: expiresAt, display: display, onExpire: onExpire}
}

// Start ticks once right away and then every second. A zero expiry never ticks.
func (c *Countdown) Start() {
	if c.expiresAt.IsZero() || c.ticker != nil || c.fired {
		return
	}
	c.tick()
	if c.fired {
		return
	}
	c.ticker = loop.Every(c.clock, time.Second, c.tick)
}

func (c *Countdown) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Countdown) Remaining() time.Duration {
	if c.expiresAt.IsZero() {
		return 0
	}
	left := c.expiresAt.Sub(c.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

func (c *Countdown) tick() {
	left := c.expiresAt.Sub(c.clock.Now())
	if left <= 0 {
		c.show(ExpiredText)
		c.Stop()
		if !c.fired {
			c.fired = true
			if c.onExpire != nil {
				c.onExpire()
			}
		}
		return
	}
	c.show(FormatRemaining(left))
}

func (c *Countdown) show(text string) {
	if c.display != nil {
		c.display(text)
	}
}

// FormatRemaining renders d as HH:MM:SS, rounding seconds down.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}
