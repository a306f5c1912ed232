package render

import (
	"slices"

	"github.com/clementus360/proxy-share/geo"
	"github.com/clementus360/proxy-share/loop"
)

// FollowParticipant keeps the map centred on one participant.
func (r *Renderer) FollowParticipant(id string) bool {
	tr, ok := r.tracks[id]
	if !ok {
		return false
	}
	stopTimer(&r.groupTimer)
	r.st.FollowParticipant(id)
	r.surface.PanTo(tr.rendered)
	return true
}

// FollowCluster keeps the map centred on the sharing members of a cluster.
func (r *Renderer) FollowCluster(clusterID string) bool {
	v, ok := r.clusters[clusterID]
	if !ok {
		return false
	}
	r.st.FollowGroup(v.cluster.MemberIDs())
	r.startGroupFollow()
	r.recenterGroup()
	return true
}

func (r *Renderer) StopFollowing() {
	r.st.StopFollowing()
	stopTimer(&r.groupTimer)
}

func (r *Renderer) startGroupFollow() {
	if r.groupTimer != nil {
		return
	}
	r.groupTimer = loop.Every(r.clock, groupFollowInterval, r.recenterGroup)
}

func (r *Renderer) recenterGroup() {
	f := r.st.Following()
	if len(f.Group) == 0 {
		stopTimer(&r.groupTimer)
		return
	}
	var points []geo.LatLng
	for _, p := range r.roster {
		if !slices.Contains(f.Group, p.ParticipantID) || !p.IsActive() {
			continue
		}
		points = append(points, position(p))
	}
	if len(points) == 0 {
		r.StopFollowing()
		return
	}
	r.surface.PanTo(geo.Centroid(points))
}

// follow re-applies the follow target after a redraw. A followed group
// tracks its cluster while the cluster still holds every member; once the
// group splits, following stops.
func (r *Renderer) follow(clusters []Cluster) {
	f := r.st.Following()
	switch {
	case f.ParticipantID != "":
		if tr, ok := r.tracks[f.ParticipantID]; ok {
			r.surface.PanTo(tr.rendered)
		}
	case len(f.Group) > 0:
		for _, c := range clusters {
			if c.Size() < 2 {
				continue
			}
			ids := c.MemberIDs()
			if !containsAll(ids, f.Group) {
				continue
			}
			if len(ids) != len(f.Group) {
				r.st.FollowGroup(ids)
			}
			r.startGroupFollow()
			return
		}
		r.StopFollowing()
	}
}
