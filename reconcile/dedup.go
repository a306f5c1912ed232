package reconcile

import (
	"sort"

	"github.com/clementus360/proxy-share/models"
)

// Dedup keeps at most one record per normalized display name. Records with
// an empty name are never grouped. Within a group the local participant
// always wins; otherwise the winner is the highest ranked by
// (online, sharing, most recently updated), ties keeping input order.
// Removed ids never include an id that also survives.
func Dedup(list []models.Participant, me string) (kept []models.Participant, removed []string) {
	groups := make(map[string][]int)
	var names []string
	for i, p := range list {
		key := p.NormalizedName()
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			names = append(names, key)
		}
		groups[key] = append(groups[key], i)
	}

	drop := make(map[int]bool)
	for _, name := range names {
		members := groups[name]
		if len(members) < 2 {
			continue
		}
		winner := pickWinner(list, members, me)
		for _, i := range members {
			if i != winner {
				drop[i] = true
			}
		}
	}

	survivors := make(map[string]bool)
	for i, p := range list {
		if !drop[i] {
			kept = append(kept, p)
			survivors[p.ParticipantID] = true
		}
	}
	reported := make(map[string]bool)
	for i, p := range list {
		id := p.ParticipantID
		if drop[i] && !survivors[id] && !reported[id] {
			removed = append(removed, id)
			reported[id] = true
		}
	}
	return kept, removed
}

func pickWinner(list []models.Participant, members []int, me string) int {
	if me != "" {
		for _, i := range members {
			if list[i].ParticipantID == me {
				return i
			}
		}
	}

	ranked := append([]int(nil), members...)
	sort.SliceStable(ranked, func(a, b int) bool {
		pa, pb := list[ranked[a]], list[ranked[b]]
		if pa.IsOnline != pb.IsOnline {
			return pa.IsOnline
		}
		if pa.IsSharing() != pb.IsSharing() {
			return pa.IsSharing()
		}
		return pa.LastUpdated.After(pb.LastUpdated.Time)
	})
	return ranked[0]
}
