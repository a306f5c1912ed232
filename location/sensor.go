// Package location shares my own position: it watches a sensor, decides
// which fixes are worth sending and handles sensor failures.
package location

import (
	"fmt"
	"time"

	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/models"
)

type ErrorCode int

const (
	PermissionDenied    ErrorCode = 1
	PositionUnavailable ErrorCode = 2
	Timeout             ErrorCode = 3
)

func (c ErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "permission denied"
	case PositionUnavailable:
		return "position unavailable"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("code %d", int(c))
}

// SensorError is a failure reported by the location sensor.
type SensorError struct {
	Code    ErrorCode
	Message string
}

func (e *SensorError) Error() string {
	if e.Message == "" {
		return "location: " + e.Code.String()
	}
	return "location: " + e.Code.String() + ": " + e.Message
}

// Sensor delivers fixes and failures on the event loop until the returned
// stop function is called.
type Sensor interface {
	Watch(onFix func(models.Position), onError func(error)) (stop func())
}

// PushSensor forwards positions pushed by the host, for example over the
// local HTTP API.
type PushSensor struct {
	onFix   func(models.Position)
	onError func(error)
}

func NewPushSensor() *PushSensor {
	return &PushSensor{}
}

func (s *PushSensor) Watch(onFix func(models.Position), onError func(error)) func() {
	s.onFix, s.onError = onFix, onError
	return func() {
		s.onFix, s.onError = nil, nil
	}
}

// Watching reports whether somebody listens for fixes.
func (s *PushSensor) Watching() bool {
	return s.onFix != nil
}

// Push delivers a fix. It reports false when nobody is watching.
func (s *PushSensor) Push(p models.Position) bool {
	if s.onFix == nil {
		return false
	}
	s.onFix(p)
	return true
}

// Fail delivers a sensor failure.
func (s *PushSensor) Fail(err error) bool {
	if s.onError == nil {
		return false
	}
	s.onError(err)
	return true
}

// StaticSensor reports a fixed position at a steady interval.
type StaticSensor struct {
	Clock     loop.Clock
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Interval  time.Duration
}

func (s *StaticSensor) Watch(onFix func(models.Position), _ func(error)) func() {
	emit := func() {
		onFix(models.Position{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Accuracy:  s.Accuracy,
			Timestamp: s.Clock.Now(),
		})
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	first := s.Clock.AfterFunc(0, emit)
	ticker := loop.Every(s.Clock, interval, emit)
	return func() {
		first.Stop()
		ticker.Stop()
	}
}
