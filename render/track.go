package render

import (
	"time"

	"github.com/clementus360/proxy-share/geo"
	"github.com/clementus360/proxy-share/loop"
)

type sample struct {
	pos      geo.LatLng
	at       time.Time
	accuracy float64
}

// track is everything the renderer keeps for one participant. It is created
// on first sight and torn down as a whole.
type track struct {
	id string

	marker    Marker
	direction Marker
	accuracy  Circle
	ripple    Circle

	anim        loop.Timer
	rippleAnim  loop.Timer
	rippleTimer loop.Timer

	rendered  geo.LatLng
	truePos   *geo.LatLng
	lastStamp time.Time
	clustered bool
	color     string
	rippleMax float64

	history  []sample
	speeds   []float64
	speed    float64
	reliable bool
	moving   bool
	bearing  float64
}

func stopTimer(t *loop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (t *track) cancelAnimation() {
	stopTimer(&t.anim)
}

func (t *track) stopRipple() {
	stopTimer(&t.rippleAnim)
	stopTimer(&t.rippleTimer)
	if t.ripple != nil {
		t.ripple.Remove()
		t.ripple = nil
	}
}

func (t *track) removeAccuracy() {
	if t.accuracy != nil {
		t.accuracy.Remove()
		t.accuracy = nil
	}
}

func (t *track) removeDirection() {
	if t.direction != nil {
		t.direction.Remove()
		t.direction = nil
	}
}

// resetMotion forgets speed state and drops the heading arrow.
func (t *track) resetMotion() {
	t.history = nil
	t.speeds = nil
	t.speed = 0
	t.reliable = false
	t.moving = false
	t.removeDirection()
}

// settle stops every effect and leaves only the marker.
func (t *track) settle() {
	t.cancelAnimation()
	t.stopRipple()
	t.removeAccuracy()
	t.resetMotion()
}

func (t *track) remove() {
	t.settle()
	if t.marker != nil {
		t.marker.Remove()
		t.marker = nil
	}
}

func (t *track) jump(pos geo.LatLng) {
	t.cancelAnimation()
	t.rendered = pos
	t.marker.SetPosition(pos)
	if t.direction != nil {
		t.direction.SetPosition(pos)
	}
}
