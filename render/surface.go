// Package render groups nearby participants into clusters, estimates their
// speed and heading from noisy samples, and draws the result onto a Surface.
package render

import "github.com/clementus360/proxy-share/geo"

type MarkerKind string

const (
	KindParticipant  MarkerKind = "participant"
	KindMeetingPoint MarkerKind = "meeting-point"
	KindDirection    MarkerKind = "direction"
)

// Icon describes how a marker looks.
type Icon struct {
	Kind          MarkerKind `json:"kind"`
	ParticipantID string     `json:"participant_id,omitempty"`
	ClusterID     string     `json:"cluster_id,omitempty"`
	Label         string     `json:"label,omitempty"`
	Color         string     `json:"color,omitempty"`
	IsMe          bool       `json:"is_me,omitempty"`
	Offline       bool       `json:"offline,omitempty"`
	Background    bool       `json:"background,omitempty"`
	Clustered     bool       `json:"clustered,omitempty"`
	StayMinutes   int        `json:"stay_minutes,omitempty"`
	Moving        bool       `json:"moving,omitempty"`
	SpeedKmh      float64    `json:"speed_kmh,omitempty"`
	SpeedReliable bool       `json:"speed_reliable,omitempty"`
	Bearing       float64    `json:"bearing,omitempty"`
	Count         int        `json:"count,omitempty"`
	Online        int        `json:"online,omitempty"`
}

type PopupMember struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Color         string `json:"color"`
	Online        bool   `json:"online"`
}

type Popup struct {
	Title         string        `json:"title"`
	Lines         []string      `json:"lines,omitempty"`
	Members       []PopupMember `json:"members,omitempty"`
	NavigationURL string        `json:"navigation_url,omitempty"`
}

type CircleKind string

const (
	CircleAccuracy CircleKind = "accuracy"
	CircleRipple   CircleKind = "ripple"
)

type CircleStyle struct {
	Kind          CircleKind `json:"kind"`
	ParticipantID string     `json:"participant_id"`
	Color         string     `json:"color"`
}

type LineStyle struct {
	ClusterID     string `json:"cluster_id"`
	ParticipantID string `json:"participant_id"`
	Color         string `json:"color"`
	Dashed        bool   `json:"dashed,omitempty"`
}

type Marker interface {
	SetPosition(geo.LatLng)
	SetIcon(Icon)
	SetPopup(Popup)
	OpenPopup()
	ClosePopup()
	Remove()
}

type Circle interface {
	SetCenter(geo.LatLng)
	SetRadius(meters float64)
	Remove()
}

type Line interface {
	Remove()
}

// Surface is the drawing primitive set of a map widget.
type Surface interface {
	PlaceMarker(pos geo.LatLng, icon Icon) Marker
	DrawCircle(center geo.LatLng, radius float64, style CircleStyle) Circle
	DrawLine(from, to geo.LatLng, style LineStyle) Line
	PanTo(center geo.LatLng)
	SetView(center geo.LatLng, zoom int)
	FitBounds(sw, ne geo.LatLng)
}
