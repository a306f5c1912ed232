package render

import (
	"math"
	"time"

	"github.com/clementus360/proxy-share/geo"
)

const (
	historyWindow    = 15 * time.Second
	stationaryWindow = 3 * time.Second
	speedSamples     = 3
	minSpeedSpan     = 2 * time.Second
	minSpeedDistance = 2.0
	reliableSpan     = 5 * time.Second
	reliableAccuracy = 50.0
	defaultAccuracy  = 50.0
	minSpeedKmh      = 0.5
	maxSpeedKmh      = 200.0
)

// motion is the outcome of feeding one accepted sample to a track.
type motion struct {
	first      bool
	stationary bool
	moving     bool
}

// observe appends a sample and recomputes stationary/moving state and speed.
// The caller has already rejected sub-threshold jitter.
func (t *track) observe(pos geo.LatLng, at time.Time, accuracy float64, threshold float64) motion {
	first := t.truePos == nil
	var moved float64
	if !first {
		moved = geo.Distance(*t.truePos, pos)
	}

	t.history = append(t.history, sample{pos: pos, at: at, accuracy: accuracy})
	cutoff := at.Add(-historyWindow)
	for len(t.history) > 0 && t.history[0].at.Before(cutoff) {
		t.history = t.history[1:]
	}

	m := motion{first: first}
	m.stationary = first || isStationary(t.history, at, threshold)
	m.moving = !first && !m.stationary && moved >= threshold

	if m.moving {
		t.estimateSpeed()
	} else {
		t.speeds = nil
		t.speed = 0
		t.reliable = false
	}
	t.moving = m.moving
	return m
}

// isStationary is true when the samples of the last few seconds barely moved.
func isStationary(history []sample, now time.Time, threshold float64) bool {
	cutoff := now.Add(-stationaryWindow)
	var recent []sample
	for _, s := range history {
		if !s.at.Before(cutoff) {
			recent = append(recent, s)
		}
	}
	if len(recent) < 2 {
		return false
	}
	return geo.Distance(recent[0].pos, recent[len(recent)-1].pos) < threshold
}

func (t *track) estimateSpeed() {
	if len(t.history) < 2 {
		return
	}
	oldest, newest := t.history[0], t.history[len(t.history)-1]
	span := newest.at.Sub(oldest.at)
	dist := geo.Distance(oldest.pos, newest.pos)
	if span < minSpeedSpan || dist < minSpeedDistance {
		return
	}

	raw := dist / span.Seconds() * 3.6
	if raw < minSpeedKmh || raw >= maxSpeedKmh {
		return
	}
	avgAccuracy := (oldest.accuracy + newest.accuracy) / 2
	confidence := math.Max(0.5, math.Min(1, reliableAccuracy/avgAccuracy))

	t.speeds = append(t.speeds, raw*confidence)
	if len(t.speeds) > speedSamples {
		t.speeds = t.speeds[len(t.speeds)-speedSamples:]
	}
	var sum float64
	for _, s := range t.speeds {
		sum += s
	}
	t.speed = math.Round(sum/float64(len(t.speeds))*10) / 10
	t.reliable = span >= reliableSpan && avgAccuracy <= reliableAccuracy
}

// easeOut is the cubic ease-out curve.
func easeOut(p float64) float64 {
	return 1 - math.Pow(1-p, 3)
}
