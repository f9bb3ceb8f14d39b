package world

import "sort"

// sortSnapshot gives snapshots a stable order so downstream consumers (the
// briefing builder in particular) are deterministic for the same world.
func sortSnapshot(snap *Snapshot) {
	sort.Slice(snap.Teams, func(i, j int) bool {
		return snap.Teams[i].ID < snap.Teams[j].ID
	})
	sort.Slice(snap.Tasks, func(i, j int) bool {
		a, b := snap.Tasks[i], snap.Tasks[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	sort.Slice(snap.Decisions, func(i, j int) bool {
		a, b := snap.Decisions[i], snap.Decisions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
