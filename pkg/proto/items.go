package proto

import (
	"time"
)

// Source identifies where a monitored item came from.
type Source string

const (
	SourceEmail    Source = "email"
	SourceCalendar Source = "calendar"
)

// Urgency levels, ordered from least to most urgent.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// urgencyRank maps urgency to a comparable rank. Unknown values rank lowest.
//
//nolint:gochecknoglobals // Static lookup table
var urgencyRank = map[Urgency]int{
	UrgencyLow:      1,
	UrgencyMedium:   2,
	UrgencyHigh:     3,
	UrgencyCritical: 4,
}

// Rank returns the comparable rank of the urgency (unknown values rank 0).
func (u Urgency) Rank() int {
	return urgencyRank[u]
}

// AtLeast reports whether u is at least as urgent as other.
func (u Urgency) AtLeast(other Urgency) bool {
	return u.Rank() >= other.Rank()
}

// MaxUrgency returns the more urgent of a and b.
func MaxUrgency(a, b Urgency) Urgency {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ValidUrgency reports whether the string is a known urgency level.
func ValidUrgency(s string) bool {
	_, ok := urgencyRank[Urgency(s)]
	return ok
}

// ActionType classifies what an item asks of the user.
type ActionType string

const (
	ActionReply    ActionType = "reply"
	ActionSchedule ActionType = "schedule"
	ActionUrgent   ActionType = "urgent"
	ActionDelegate ActionType = "delegate"
	ActionArchive  ActionType = "archive"
	ActionNone     ActionType = "none"
)

// ValidActionType reports whether the string is a known action type.
func ValidActionType(s string) bool {
	switch ActionType(s) {
	case ActionReply, ActionSchedule, ActionUrgent, ActionDelegate, ActionArchive, ActionNone:
		return true
	default:
		return false
	}
}

// Analysis is the structured judgment produced for a monitored item, either
// by the oracle or by the deterministic fallback scorer. Produced at most
// once per item per cycle; a re-fetch replaces the prior value wholesale.
type Analysis struct {
	ImportanceScore float64    `json:"importance_score"` // Clamped to [0,1]
	RequiresAction  bool       `json:"requires_action"`
	ActionType      ActionType `json:"action_type"`
	Urgency         Urgency    `json:"urgency"`
	Summary         string     `json:"summary"`
	SuggestedAction string     `json:"suggested_action,omitempty"`
	Fallback        bool       `json:"fallback"` // True when produced by the keyword scorer
	AnalyzedAt      time.Time  `json:"analyzed_at"`
}

// Email is the raw payload of an email item.
type Email struct {
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// CalendarEvent is the raw payload of a calendar item.
type CalendarEvent struct {
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location"`
}

// MonitoredItem is an email or calendar event tracked across cycles.
// Immutable once fetched except for Analysis.
type MonitoredItem struct {
	ID       string         `json:"id"` // Stable external identifier
	Source   Source         `json:"source"`
	Email    *Email         `json:"email,omitempty"`
	Event    *CalendarEvent `json:"event,omitempty"`
	Analysis *Analysis      `json:"analysis,omitempty"`
}

// Time returns the item's received time (email) or start time (calendar).
func (m *MonitoredItem) Time() time.Time {
	switch m.Source {
	case SourceEmail:
		if m.Email != nil {
			return m.Email.ReceivedAt
		}
	case SourceCalendar:
		if m.Event != nil {
			return m.Event.Start
		}
	}
	return time.Time{}
}

// Urgency returns the analyzed urgency, defaulting to low when no analysis
// is present.
func (m *MonitoredItem) Urgency() Urgency {
	if m.Analysis == nil {
		return UrgencyLow
	}
	return m.Analysis.Urgency
}

// ConflictReason describes why a group of events conflict.
type ConflictReason string

const (
	ConflictOverlap      ConflictReason = "overlap"
	ConflictTravelBuffer ConflictReason = "travel_buffer"
)

// Conflict is a derived group of calendar events whose time ranges overlap
// or whose travel buffer is violated. Recomputed every cycle; never stored
// authoritatively.
type Conflict struct {
	ID         string           `json:"id"`
	ItemIDs    []string         `json:"item_ids"` // Ordered by start time, then id
	Severity   Urgency          `json:"severity"` // Max urgency across the group
	Reasons    []ConflictReason `json:"reasons"`
	DetectedAt time.Time        `json:"detected_at"`
}

// Key returns a stable identity for the conflict group, independent of when
// it was detected. Two conflicts over the same item set are the same clash.
func (c *Conflict) Key() string {
	key := ""
	for i, id := range c.ItemIDs {
		if i > 0 {
			key += "|"
		}
		key += id
	}
	return key
}
