// Package conflict derives schedule clashes from analyzed calendar items.
// Conflicts are recomputed from scratch every cycle and never stored
// authoritatively; a clash that no longer holds simply stops appearing.
package conflict

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"assistant/pkg/proto"
)

// Detector finds temporal overlaps and travel-buffer violations.
type Detector struct {
	travelBuffer time.Duration
}

// NewDetector creates a detector with the given minimum travel buffer
// between events at different locations.
func NewDetector(travelBuffer time.Duration) *Detector {
	return &Detector{travelBuffer: travelBuffer}
}

// Detect returns the conflict groups in the given calendar items. Items
// without an event payload are ignored. Output is deterministic regardless
// of input order: items are sorted by start time, tied on id, before
// pairwise checks and transitive grouping.
func (d *Detector) Detect(items []*proto.MonitoredItem, now time.Time) []proto.Conflict {
	events := make([]*proto.MonitoredItem, 0, len(items))
	for _, item := range items {
		if item.Source == proto.SourceCalendar && item.Event != nil {
			events = append(events, item)
		}
	}
	if len(events) < 2 {
		return nil
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].Event.Start.Equal(events[j].Event.Start) {
			return events[i].Event.Start.Before(events[j].Event.Start)
		}
		return events[i].ID < events[j].ID
	})

	// Union-find over event indices; pairwise conflicts merge groups so
	// transitive clashes (A-B, B-C) report as one.
	parent := make([]int, len(events))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		parent[find(i)] = find(j)
	}

	reasons := make(map[int]map[proto.ConflictReason]bool)
	addReason := func(i int, r proto.ConflictReason) {
		if reasons[i] == nil {
			reasons[i] = map[proto.ConflictReason]bool{}
		}
		reasons[i][r] = true
	}

	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, b := events[i].Event, events[j].Event
			switch {
			case overlaps(a, b):
				union(i, j)
				addReason(i, proto.ConflictOverlap)
				addReason(j, proto.ConflictOverlap)
			case d.travelBufferViolated(a, b):
				union(i, j)
				addReason(i, proto.ConflictTravelBuffer)
				addReason(j, proto.ConflictTravelBuffer)
			}
		}
	}

	groups := make(map[int][]int)
	for i := range events {
		root := find(i)
		groups[root] = append(groups[root], i)
	}

	var conflicts []proto.Conflict
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Ints(members)

		ids := make([]string, 0, len(members))
		severity := proto.UrgencyLow
		reasonSet := map[proto.ConflictReason]bool{}
		for _, idx := range members {
			ids = append(ids, events[idx].ID)
			// Unanalyzed members count as low urgency here only.
			severity = proto.MaxUrgency(severity, events[idx].Urgency())
			for r := range reasons[idx] {
				reasonSet[r] = true
			}
		}

		conflicts = append(conflicts, proto.Conflict{
			ID:         fmt.Sprintf("conflict-%s", shortKey(ids)),
			ItemIDs:    ids,
			Severity:   severity,
			Reasons:    sortedReasons(reasonSet),
			DetectedAt: now,
		})
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].ItemIDs[0] < conflicts[j].ItemIDs[0]
	})
	return conflicts
}

// overlaps implements half-open interval overlap: touching boundaries do
// not conflict.
func overlaps(a, b *proto.CalendarEvent) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// travelBufferViolated reports whether b starts too soon after a ends given
// that they are at different locations. Same-location back-to-backs never
// violate.
func (d *Detector) travelBufferViolated(a, b *proto.CalendarEvent) bool {
	if d.travelBuffer <= 0 {
		return false
	}
	if a.Location == b.Location {
		return false
	}
	first, second := a, b
	if second.Start.Before(first.Start) {
		first, second = second, first
	}
	gap := second.Start.Sub(first.End)
	return gap >= 0 && gap < d.travelBuffer
}

func shortKey(ids []string) string {
	return strings.Join(ids, "+")
}

func sortedReasons(set map[proto.ConflictReason]bool) []proto.ConflictReason {
	out := make([]proto.ConflictReason, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
