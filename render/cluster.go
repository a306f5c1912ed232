package render

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/clementus360/proxy-share/geo"
	"github.com/clementus360/proxy-share/models"
)

const (
	DefaultClusterDistance = 25.0
	// offsetRadius is how far clustered members are fanned out from the centroid, in degrees.
	offsetRadius = 33 * 0.00001
	// centroidLift keeps the meeting point marker clear of the member fan.
	centroidLift = 0.00001
	// lineDrop ends connector lines at the bottom of the member marker.
	lineDrop = 0.00003
)

// Cluster is a rendering-only group of nearby participants.
type Cluster struct {
	ID      string
	Members []models.Participant
	Center  geo.LatLng
	Online  int
	Offline int
}

func (c Cluster) Size() int { return len(c.Members) }

// MemberIDs are the member ids in sorted order.
func (c Cluster) MemberIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ParticipantID
	}
	sort.Strings(ids)
	return ids
}

func (c Cluster) Has(id string) bool {
	for _, m := range c.Members {
		if m.ParticipantID == id {
			return true
		}
	}
	return false
}

func position(p models.Participant) geo.LatLng {
	lat, lng, _ := p.Coordinates()
	return geo.LatLng{Lat: lat, Lng: lng}
}

// Clusters groups participants greedily in input order: each unprocessed
// participant seeds a cluster with every later unprocessed participant within
// threshold meters of it. The result depends on input order and is not a
// nearest-neighbour grouping. Participants without coordinates are skipped.
func Clusters(list []models.Participant, threshold float64) []Cluster {
	var clusters []Cluster
	processed := make([]bool, len(list))

	for i, seed := range list {
		if processed[i] || !seed.HasValidCoordinates() {
			continue
		}
		processed[i] = true
		members := []models.Participant{seed}
		origin := position(seed)

		for j := i + 1; j < len(list); j++ {
			other := list[j]
			if processed[j] || !other.HasValidCoordinates() {
				continue
			}
			if geo.Distance(origin, position(other)) <= threshold {
				members = append(members, other)
				processed[j] = true
			}
		}

		c := Cluster{ID: seed.ParticipantID, Members: members}
		if len(members) > 1 {
			c.ID = "cluster_" + seed.ParticipantID
		}
		points := make([]geo.LatLng, len(members))
		for k, m := range members {
			points[k] = position(m)
			if m.IsGhost() {
				c.Offline++
			} else {
				c.Online++
			}
		}
		c.Center = geo.Centroid(points)
		clusters = append(clusters, c)
	}
	return clusters
}

// Layout fans members around the centroid: sorted by id, evenly spaced by angle.
func Layout(c Cluster) map[string]geo.LatLng {
	ids := c.MemberIDs()
	out := make(map[string]geo.LatLng, len(ids))
	for i, id := range ids {
		angle := 2 * math.Pi * float64(i) / float64(len(ids))
		out[id] = geo.Offset(c.Center, offsetRadius, angle)
	}
	return out
}

// signature changes whenever the cluster has to be redrawn.
func (c Cluster) signature() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%.7f,%.7f", c.ID, c.Center.Lat, c.Center.Lng)
	byID := make(map[string]models.Participant, len(c.Members))
	for _, m := range c.Members {
		byID[m.ParticipantID] = m
	}
	for _, id := range c.MemberIDs() {
		fmt.Fprintf(&b, "|%s:%t:%s", id, byID[id].IsGhost(), byID[id].DisplayName())
	}
	return b.String()
}

// NavigationURL opens walking directions to the meeting point.
func NavigationURL(p geo.LatLng) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%.6f,%.6f&travelmode=walking", p.Lat, p.Lng)
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if set[id] {
			return true
		}
	}
	return false
}

func containsAll(set []string, ids []string) bool {
	have := make(map[string]bool, len(set))
	for _, id := range set {
		have[id] = true
	}
	for _, id := range ids {
		if !have[id] {
			return false
		}
	}
	return true
}
