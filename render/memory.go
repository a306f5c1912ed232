package render

import (
	"sort"
	"sync"

	"github.com/clementus360/proxy-share/geo"
)

type MarkerState struct {
	ID        int        `json:"id"`
	Position  geo.LatLng `json:"position"`
	Icon      Icon       `json:"icon"`
	Popup     *Popup     `json:"popup,omitempty"`
	PopupOpen bool       `json:"popup_open,omitempty"`
}

type CircleState struct {
	ID     int         `json:"id"`
	Center geo.LatLng  `json:"center"`
	Radius float64     `json:"radius"`
	Style  CircleStyle `json:"style"`
}

type LineState struct {
	ID    int        `json:"id"`
	From  geo.LatLng `json:"from"`
	To    geo.LatLng `json:"to"`
	Style LineStyle  `json:"style"`
}

type View struct {
	Center geo.LatLng `json:"center"`
	Zoom   int        `json:"zoom"`
}

// Snapshot is the full content of a MemorySurface.
type Snapshot struct {
	View    View          `json:"view"`
	Markers []MarkerState `json:"markers"`
	Circles []CircleState `json:"circles"`
	Lines   []LineState   `json:"lines"`
}

// MemorySurface is a map model kept in memory. It backs the local map API
// and the tests.
type MemorySurface struct {
	mu      sync.Mutex
	seq     int
	view    View
	markers map[int]*MarkerState
	circles map[int]*CircleState
	lines   map[int]*LineState
	pans    int
}

var _ Surface = (*MemorySurface)(nil)

func NewMemorySurface() *MemorySurface {
	return &MemorySurface{
		view:    View{Zoom: 15},
		markers: make(map[int]*MarkerState),
		circles: make(map[int]*CircleState),
		lines:   make(map[int]*LineState),
	}
}

func (s *MemorySurface) next() int {
	s.seq++
	return s.seq
}

func (s *MemorySurface) PlaceMarker(pos geo.LatLng, icon Icon) Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next()
	s.markers[id] = &MarkerState{ID: id, Position: pos, Icon: icon}
	return &memMarker{surface: s, id: id}
}

func (s *MemorySurface) DrawCircle(center geo.LatLng, radius float64, style CircleStyle) Circle {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next()
	s.circles[id] = &CircleState{ID: id, Center: center, Radius: radius, Style: style}
	return &memCircle{surface: s, id: id}
}

func (s *MemorySurface) DrawLine(from, to geo.LatLng, style LineStyle) Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next()
	s.lines[id] = &LineState{ID: id, From: from, To: to, Style: style}
	return &memLine{surface: s, id: id}
}

func (s *MemorySurface) PanTo(center geo.LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Center = center
	s.pans++
}

func (s *MemorySurface) SetView(center geo.LatLng, zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = View{Center: center, Zoom: zoom}
}

func (s *MemorySurface) FitBounds(sw, ne geo.LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Center = geo.LatLng{Lat: (sw.Lat + ne.Lat) / 2, Lng: (sw.Lng + ne.Lng) / 2}
}

// Pans counts PanTo calls.
func (s *MemorySurface) Pans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pans
}

func (s *MemorySurface) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{View: s.view}
	for _, m := range s.markers {
		copied := *m
		if m.Popup != nil {
			p := *m.Popup
			copied.Popup = &p
		}
		snap.Markers = append(snap.Markers, copied)
	}
	for _, c := range s.circles {
		snap.Circles = append(snap.Circles, *c)
	}
	for _, l := range s.lines {
		snap.Lines = append(snap.Lines, *l)
	}
	sort.Slice(snap.Markers, func(i, j int) bool { return snap.Markers[i].ID < snap.Markers[j].ID })
	sort.Slice(snap.Circles, func(i, j int) bool { return snap.Circles[i].ID < snap.Circles[j].ID })
	sort.Slice(snap.Lines, func(i, j int) bool { return snap.Lines[i].ID < snap.Lines[j].ID })
	return snap
}

// Markers returns the markers of a kind, optionally for one participant.
func (s *MemorySurface) Markers(kind MarkerKind, participantID string) []MarkerState {
	var out []MarkerState
	for _, m := range s.Snapshot().Markers {
		if m.Icon.Kind == kind && (participantID == "" || m.Icon.ParticipantID == participantID) {
			out = append(out, m)
		}
	}
	return out
}

// Circles returns the circles of a kind, optionally for one participant.
func (s *MemorySurface) Circles(kind CircleKind, participantID string) []CircleState {
	var out []CircleState
	for _, c := range s.Snapshot().Circles {
		if c.Style.Kind == kind && (participantID == "" || c.Style.ParticipantID == participantID) {
			out = append(out, c)
		}
	}
	return out
}

type memMarker struct {
	surface *MemorySurface
	id      int
}

func (m *memMarker) with(f func(*MarkerState)) {
	m.surface.mu.Lock()
	defer m.surface.mu.Unlock()
	if st, ok := m.surface.markers[m.id]; ok {
		f(st)
	}
}

func (m *memMarker) SetPosition(p geo.LatLng) { m.with(func(st *MarkerState) { st.Position = p }) }
func (m *memMarker) SetIcon(icon Icon)        { m.with(func(st *MarkerState) { st.Icon = icon }) }
func (m *memMarker) SetPopup(p Popup)         { m.with(func(st *MarkerState) { st.Popup = &p }) }
func (m *memMarker) OpenPopup()               { m.with(func(st *MarkerState) { st.PopupOpen = true }) }
func (m *memMarker) ClosePopup()              { m.with(func(st *MarkerState) { st.PopupOpen = false }) }

func (m *memMarker) Remove() {
	m.surface.mu.Lock()
	defer m.surface.mu.Unlock()
	delete(m.surface.markers, m.id)
}

type memCircle struct {
	surface *MemorySurface
	id      int
}

func (c *memCircle) with(f func(*CircleState)) {
	c.surface.mu.Lock()
	defer c.surface.mu.Unlock()
	if st, ok := c.surface.circles[c.id]; ok {
		f(st)
	}
}

func (c *memCircle) SetCenter(p geo.LatLng) { c.with(func(st *CircleState) { st.Center = p }) }
func (c *memCircle) SetRadius(r float64)    { c.with(func(st *CircleState) { st.Radius = r }) }

func (c *memCircle) Remove() {
	c.surface.mu.Lock()
	defer c.surface.mu.Unlock()
	delete(c.surface.circles, c.id)
}

type memLine struct {
	surface *MemorySurface
	id      int
}

func (l *memLine) Remove() {
	l.surface.mu.Lock()
	defer l.surface.mu.Unlock()
	delete(l.surface.lines, l.id)
}
