package render

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/clementus360/proxy-share/geo"
	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/models"
	"github.com/clementus360/proxy-share/state"
)

const (
	animationDuration   = time.Second
	frameInterval       = 50 * time.Millisecond
	instantMove         = 1.0
	rippleStart         = 8.0
	rippleDuration      = 1500 * time.Millisecond
	rippleRepeat        = 3 * time.Second
	popupGrace          = 5 * time.Second
	groupFollowInterval = time.Second
	offlineColor        = "#999999"
)

type Options struct {
	ClusterDistance   float64
	MovementThreshold float64
}

type clusterView struct {
	cluster   Cluster
	signature string
	centroid  Marker
	lines     []Line
	popupOpen bool
}

func (v *clusterView) teardown() {
	v.centroid.Remove()
	for _, l := range v.lines {
		l.Remove()
	}
	v.lines = nil
}

type closedPopup struct {
	members []string
	at      time.Time
}

// Renderer owns every map primitive and the per-participant render state.
type Renderer struct {
	surface Surface
	clock   loop.Clock
	st      *state.Store
	opts    Options

	tracks     map[string]*track
	clusters   map[string]*clusterView
	memberOf   map[string]string
	closed     []closedPopup
	roster     []models.Participant
	groupTimer loop.Timer
}

func New(surface Surface, clock loop.Clock, st *state.Store, opts Options) *Renderer {
	if opts.ClusterDistance <= 0 {
		opts.ClusterDistance = DefaultClusterDistance
	}
	if opts.MovementThreshold <= 0 {
		opts.MovementThreshold = 3
	}
	return &Renderer{
		surface:  surface,
		clock:    clock,
		st:       st,
		opts:     opts,
		tracks:   make(map[string]*track),
		clusters: make(map[string]*clusterView),
		memberOf: make(map[string]string),
	}
}

// Update redraws the map from a roster. Unchanged input leaves the surface
// unchanged: markers are mutated in place and cluster views are only
// rebuilt when their cluster changed.
func (r *Renderer) Update(roster []models.Participant) {
	r.roster = roster

	var active, ghosts []models.Participant
	for _, p := range roster {
		if !p.MarkerEligible() {
			continue
		}
		if p.IsActive() {
			active = append(active, p)
		} else {
			ghosts = append(ghosts, p)
		}
	}
	eligible := append(active, ghosts...)

	present := make(map[string]bool, len(eligible))
	for _, p := range eligible {
		present[p.ParticipantID] = true
	}
	for id := range r.tracks {
		if !present[id] {
			r.Remove(id)
		}
	}

	clusters := Clusters(eligible, r.opts.ClusterDistance)
	r.drawClusters(clusters)

	for _, c := range clusters {
		if c.Size() == 1 {
			r.place(c.Members[0], position(c.Members[0]), "")
			continue
		}
		layout := Layout(c)
		for _, m := range c.Members {
			r.place(m, layout[m.ParticipantID], c.ID)
		}
	}

	r.follow(clusters)
}

// Remove deletes every primitive and timer of a participant.
func (r *Renderer) Remove(id string) {
	tr, ok := r.tracks[id]
	if !ok {
		return
	}
	tr.remove()
	delete(r.tracks, id)
	delete(r.memberOf, id)
}

// Reset removes everything from the map.
func (r *Renderer) Reset() {
	for id := range r.tracks {
		r.Remove(id)
	}
	for id, v := range r.clusters {
		v.teardown()
		delete(r.clusters, id)
	}
	r.memberOf = make(map[string]string)
	r.closed = nil
	r.roster = nil
	stopTimer(&r.groupTimer)
}

// RemoveDirection drops the heading arrow and finishes any running animation.
func (r *Renderer) RemoveDirection(id string) {
	tr, ok := r.tracks[id]
	if !ok {
		return
	}
	if tr.anim != nil {
		tr.jump(tr.rendered)
	}
	tr.removeDirection()
	tr.moving = false
	tr.speed = 0
	tr.speeds = nil
	tr.reliable = false
}

// ClusterOf returns the id of the cluster a participant is drawn in.
func (r *Renderer) ClusterOf(id string) (string, bool) {
	cid, ok := r.memberOf[id]
	return cid, ok
}

// Motion reports the current speed estimate of a participant.
func (r *Renderer) Motion(id string) (speedKmh float64, moving, reliable bool) {
	tr, ok := r.tracks[id]
	if !ok {
		return 0, false, false
	}
	return tr.speed, tr.moving, tr.reliable
}

// Rendered returns where a participant's marker is drawn.
func (r *Renderer) Rendered(id string) (geo.LatLng, bool) {
	tr, ok := r.tracks[id]
	if !ok {
		return geo.LatLng{}, false
	}
	return tr.rendered, true
}

func (r *Renderer) place(p models.Participant, pos geo.LatLng, clusterID string) {
	id := p.ParticipantID
	tr, ok := r.tracks[id]
	if !ok {
		tr = &track{id: id, rendered: pos}
		tr.marker = r.surface.PlaceMarker(pos, r.icon(p, tr, clusterID != ""))
		r.tracks[id] = tr
	}
	truePos := position(p)

	switch {
	case clusterID != "":
		// Fanned-out positions are rendering only: no animation, no effects.
		tr.settle()
		tr.clustered = true
		tr.jump(pos)
		tr.truePos = &truePos
		tr.lastStamp = p.LastUpdated.Time
	case !p.IsActive():
		tr.settle()
		tr.clustered = false
		tr.jump(pos)
		tr.truePos = &truePos
		tr.lastStamp = p.LastUpdated.Time
	default:
		if tr.clustered {
			tr.clustered = false
			tr.jump(pos)
			tr.truePos = &truePos
			tr.lastStamp = p.LastUpdated.Time
		}
		r.move(tr, p, pos)
	}

	tr.marker.SetIcon(r.icon(p, tr, clusterID != ""))
	tr.marker.SetPopup(r.participantPopup(p, tr))
}

// move applies a new true position of an active, unclustered participant.
func (r *Renderer) move(tr *track, p models.Participant, pos geo.LatLng) {
	accuracy, known := p.AccuracyMeters()
	if !known {
		accuracy = defaultAccuracy
	}
	tr.color = r.st.Color(p.ParticipantID)
	tr.rippleMax = accuracy

	stamp := p.LastUpdated.Time
	fresh := tr.truePos == nil || *tr.truePos != pos || !stamp.Equal(tr.lastStamp)
	if !fresh {
		r.drawAccuracy(tr, p)
		return
	}
	tr.lastStamp = stamp

	if tr.truePos != nil && geo.Distance(*tr.truePos, pos) < r.opts.MovementThreshold {
		// GPS jitter: the marker stays where it is.
		tr.moving = false
		tr.speed = 0
		tr.speeds = nil
		tr.reliable = false
		tr.removeDirection()
		r.stationaryRipple(tr)
		r.drawAccuracy(tr, p)
		return
	}

	from := tr.rendered
	m := tr.observe(pos, r.clock.Now(), accuracy, r.opts.MovementThreshold)
	tr.truePos = &pos

	if m.moving {
		tr.bearing = geo.Bearing(from, pos)
		r.showDirection(tr, from)
		r.animate(tr, from, pos)
		stopTimer(&tr.rippleTimer)
		r.rippleOnce(tr)
	} else {
		tr.removeDirection()
		tr.jump(pos)
		r.stationaryRipple(tr)
	}
	r.drawAccuracy(tr, p)
}

func (r *Renderer) animate(tr *track, from, to geo.LatLng) {
	tr.cancelAnimation()
	if geo.Distance(from, to) < instantMove {
		tr.jump(to)
		return
	}
	tr.rendered = to

	start := r.clock.Now()
	var frame func()
	frame = func() {
		progress := float64(r.clock.Now().Sub(start)) / float64(animationDuration)
		if progress > 1 {
			progress = 1
		}
		at := geo.Lerp(from, to, easeOut(progress))
		tr.marker.SetPosition(at)
		if tr.direction != nil {
			tr.direction.SetPosition(at)
		}
		if progress >= 1 {
			tr.anim = nil
			return
		}
		tr.anim = r.clock.AfterFunc(frameInterval, frame)
	}
	tr.anim = r.clock.AfterFunc(frameInterval, frame)
}

func (r *Renderer) showDirection(tr *track, at geo.LatLng) {
	icon := Icon{Kind: KindDirection, ParticipantID: tr.id, Color: tr.color, Bearing: tr.bearing}
	if tr.direction == nil {
		tr.direction = r.surface.PlaceMarker(at, icon)
		return
	}
	tr.direction.SetIcon(icon)
}

func (r *Renderer) drawAccuracy(tr *track, p models.Participant) {
	accuracy, ok := p.AccuracyMeters()
	if !ok || tr.truePos == nil {
		tr.removeAccuracy()
		return
	}
	if tr.accuracy == nil {
		tr.accuracy = r.surface.DrawCircle(*tr.truePos, accuracy, CircleStyle{
			Kind:          CircleAccuracy,
			ParticipantID: tr.id,
			Color:         r.st.Color(tr.id),
		})
		return
	}
	tr.accuracy.SetCenter(*tr.truePos)
	tr.accuracy.SetRadius(accuracy)
}

// stationaryRipple keeps a ripple pulsing every few seconds while standing still.
func (r *Renderer) stationaryRipple(tr *track) {
	if tr.rippleTimer != nil {
		return
	}
	r.rippleOnce(tr)
	tr.rippleTimer = loop.Every(r.clock, rippleRepeat, func() { r.rippleOnce(tr) })
}

func (r *Renderer) rippleOnce(tr *track) {
	if tr.truePos == nil {
		return
	}
	stopTimer(&tr.rippleAnim)
	if tr.ripple != nil {
		tr.ripple.Remove()
	}

	maxRadius := tr.rippleMax
	if maxRadius < rippleStart {
		maxRadius = rippleStart
	}
	circle := r.surface.DrawCircle(*tr.truePos, rippleStart, CircleStyle{
		Kind:          CircleRipple,
		ParticipantID: tr.id,
		Color:         tr.color,
	})
	tr.ripple = circle

	start := r.clock.Now()
	var frame func()
	frame = func() {
		progress := float64(r.clock.Now().Sub(start)) / float64(rippleDuration)
		if progress >= 1 {
			circle.Remove()
			if tr.ripple == circle {
				tr.ripple = nil
			}
			tr.rippleAnim = nil
			return
		}
		circle.SetRadius(rippleStart + (maxRadius-rippleStart)*easeOut(progress))
		tr.rippleAnim = r.clock.AfterFunc(frameInterval, frame)
	}
	tr.rippleAnim = r.clock.AfterFunc(frameInterval, frame)
}

func initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		r := []rune(word)
		out = append(out, unicode.ToUpper(r[0]))
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

func (r *Renderer) icon(p models.Participant, tr *track, clustered bool) Icon {
	return Icon{
		Kind:          KindParticipant,
		ParticipantID: p.ParticipantID,
		Label:         initials(p.DisplayName()),
		Color:         r.st.Color(p.ParticipantID),
		IsMe:          r.st.IsMe(p.ParticipantID),
		Offline:       p.IsGhost(),
		Background:    p.IsBackground,
		Clustered:     clustered,
		StayMinutes:   p.StayMinutes,
		Moving:        tr.moving,
		SpeedKmh:      tr.speed,
		SpeedReliable: tr.reliable,
	}
}

func (r *Renderer) participantPopup(p models.Participant, tr *track) Popup {
	popup := Popup{Title: p.DisplayName()}
	switch {
	case p.IsActive() && p.IsBackground:
		popup.Lines = append(popup.Lines, "Sharing in background")
	case p.IsActive():
		popup.Lines = append(popup.Lines, "Sharing location")
	case p.Status == models.StatusStopped:
		popup.Lines = append(popup.Lines, "Stopped sharing")
	default:
		popup.Lines = append(popup.Lines, "Offline")
	}
	if acc, ok := p.AccuracyMeters(); ok {
		popup.Lines = append(popup.Lines, fmt.Sprintf("Accuracy: ±%.0fm", acc))
	}
	if tr.moving && tr.speed > 0 {
		line := fmt.Sprintf("Speed: %.1f km/h", tr.speed)
		if !tr.reliable {
			line += " (approx.)"
		}
		popup.Lines = append(popup.Lines, line)
	}
	if p.StayMinutes > 0 {
		popup.Lines = append(popup.Lines, fmt.Sprintf("Here for %d min", p.StayMinutes))
	}
	return popup
}

func (r *Renderer) drawClusters(clusters []Cluster) {
	next := make(map[string]Cluster)
	for _, c := range clusters {
		if c.Size() > 1 {
			next[c.ID] = c
		}
	}
	r.pruneClosed()

	var reopen [][]string
	for id, v := range r.clusters {
		if c, ok := next[id]; ok && c.signature() == v.signature {
			v.cluster = c
			continue
		}
		if v.popupOpen {
			reopen = append(reopen, v.cluster.MemberIDs())
		}
		v.teardown()
		delete(r.clusters, id)
	}

	r.memberOf = make(map[string]string)
	for _, c := range clusters {
		if c.Size() < 2 {
			continue
		}
		for _, m := range c.Members {
			r.memberOf[m.ParticipantID] = c.ID
		}
		if _, ok := r.clusters[c.ID]; ok {
			continue
		}
		v := r.drawCluster(c)
		r.clusters[c.ID] = v
		if r.shouldReopen(c.MemberIDs(), reopen) {
			v.centroid.OpenPopup()
			v.popupOpen = true
		}
	}
}

func (r *Renderer) drawCluster(c Cluster) *clusterView {
	v := &clusterView{cluster: c, signature: c.signature()}
	pin := geo.LatLng{Lat: c.Center.Lat + centroidLift, Lng: c.Center.Lng}
	v.centroid = r.surface.PlaceMarker(pin, Icon{
		Kind:      KindMeetingPoint,
		ClusterID: c.ID,
		Label:     fmt.Sprint(c.Size()),
		Count:     c.Size(),
		Online:    c.Online,
	})
	v.centroid.SetPopup(r.clusterPopup(c))

	layout := Layout(c)
	ghost := make(map[string]bool)
	for _, m := range c.Members {
		ghost[m.ParticipantID] = m.IsGhost()
	}
	for _, id := range c.MemberIDs() {
		off := layout[id]
		style := LineStyle{ClusterID: c.ID, ParticipantID: id, Color: r.st.Color(id)}
		if ghost[id] {
			style.Color = offlineColor
			style.Dashed = true
		}
		end := geo.LatLng{Lat: off.Lat - lineDrop, Lng: off.Lng}
		v.lines = append(v.lines, r.surface.DrawLine(c.Center, end, style))
	}
	return v
}

func (r *Renderer) clusterPopup(c Cluster) Popup {
	members := make([]PopupMember, 0, c.Size())
	for _, m := range c.Members {
		members = append(members, PopupMember{
			ParticipantID: m.ParticipantID,
			Name:          m.DisplayName(),
			Color:         r.st.Color(m.ParticipantID),
			Online:        !m.IsGhost(),
		})
	}
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Online != members[j].Online {
			return members[i].Online
		}
		return members[i].Name < members[j].Name
	})

	lines := []string{fmt.Sprintf("%d online", c.Online)}
	if c.Offline > 0 {
		lines[0] += fmt.Sprintf(", %d offline", c.Offline)
	}
	return Popup{
		Title:         fmt.Sprintf("Meeting point (%d)", c.Size()),
		Lines:         lines,
		Members:       members,
		NavigationURL: NavigationURL(c.Center),
	}
}

func (r *Renderer) pruneClosed() {
	now := r.clock.Now()
	kept := r.closed[:0]
	for _, c := range r.closed {
		if now.Sub(c.at) < popupGrace {
			kept = append(kept, c)
		}
	}
	r.closed = kept
}

func (r *Renderer) shouldReopen(members []string, reopen [][]string) bool {
	for _, c := range r.closed {
		if overlaps(c.members, members) {
			return false
		}
	}
	for _, set := range reopen {
		if overlaps(set, members) {
			return true
		}
	}
	return false
}

// OpenClusterPopup opens the meeting point summary of a cluster.
func (r *Renderer) OpenClusterPopup(clusterID string) bool {
	v, ok := r.clusters[clusterID]
	if !ok {
		return false
	}
	members := v.cluster.MemberIDs()
	r.closed = slicesDeleteOverlapping(r.closed, members)
	v.centroid.OpenPopup()
	v.popupOpen = true
	return true
}

// CloseClusterPopup closes a popup on user request; it stays closed across
// redraws for a short grace window.
func (r *Renderer) CloseClusterPopup(clusterID string) bool {
	v, ok := r.clusters[clusterID]
	if !ok {
		return false
	}
	v.centroid.ClosePopup()
	v.popupOpen = false
	r.closed = append(r.closed, closedPopup{members: v.cluster.MemberIDs(), at: r.clock.Now()})
	return true
}

func slicesDeleteOverlapping(closed []closedPopup, members []string) []closedPopup {
	kept := closed[:0]
	for _, c := range closed {
		if !overlaps(c.members, members) {
			kept = append(kept, c)
		}
	}
	return kept
}

// FitAll frames every marker.
func (r *Renderer) FitAll() {
	var points []geo.LatLng
	for _, tr := range r.tracks {
		points = append(points, tr.rendered)
	}
	switch len(points) {
	case 0:
		return
	case 1:
		r.surface.SetView(points[0], 16)
	default:
		sw, ne := geo.Bounds(points)
		r.surface.FitBounds(sw, ne)
	}
}
