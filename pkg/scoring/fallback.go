package scoring

import (
	"fmt"
	"strings"
	"sync"
	"time"

	_ "embed"

	"gopkg.in/yaml.v3"

	"assistant/pkg/proto"
)

//go:embed rules.yaml
var rulesYAML []byte

// actionThreshold is the score above which an item requires action.
const actionThreshold = 0.6

// keywordRules holds the deterministic scoring deltas for one item source.
type keywordRules struct {
	Baseline             float64  `yaml:"baseline"`
	UrgencyKeywords      []string `yaml:"urgency_keywords"`
	UrgencyDelta         float64  `yaml:"urgency_delta"`
	MeetingKeywords      []string `yaml:"meeting_keywords"`
	MeetingDelta         float64  `yaml:"meeting_delta"`
	AuthoritySenders     []string `yaml:"authority_senders"`
	AuthorityDelta       float64  `yaml:"authority_delta"`
	PresentationKeywords []string `yaml:"presentation_keywords"`
	PresentationDelta    float64  `yaml:"presentation_delta"`
}

type ruleSet struct {
	Email    keywordRules `yaml:"email"`
	Calendar keywordRules `yaml:"calendar"`
}

//nolint:gochecknoglobals // Rules are embedded and parsed once
var (
	rules     ruleSet
	rulesOnce sync.Once
)

func loadRules() ruleSet {
	rulesOnce.Do(func() {
		if err := yaml.Unmarshal(rulesYAML, &rules); err != nil {
			panic(fmt.Sprintf("embedded scoring rules are invalid: %v", err))
		}
	})
	return rules
}

// FallbackScore produces a deterministic analysis from the built-in keyword
// rules. It never fails and is used whenever the oracle path does.
// Fallback urgency tops out at "high"; "critical" is reserved for the oracle.
func FallbackScore(item *proto.MonitoredItem, now time.Time) proto.Analysis {
	var score float64
	var summary string

	switch item.Source {
	case proto.SourceEmail:
		score, summary = scoreEmailFallback(item, loadRules().Email)
	case proto.SourceCalendar:
		score, summary = scoreCalendarFallback(item, loadRules().Calendar)
	default:
		summary = "Unknown item"
	}

	score = clamp01(score)
	requiresAction := score > actionThreshold

	actionType := proto.ActionArchive
	if requiresAction {
		actionType = proto.ActionUrgent
	}

	suggested := ""
	if requiresAction {
		suggested = "Review and respond"
	}

	return proto.Analysis{
		ImportanceScore: score,
		RequiresAction:  requiresAction,
		ActionType:      actionType,
		Urgency:         fallbackUrgency(score),
		Summary:         summary,
		SuggestedAction: suggested,
		Fallback:        true,
		AnalyzedAt:      now,
	}
}

func scoreEmailFallback(item *proto.MonitoredItem, r keywordRules) (float64, string) {
	if item.Email == nil {
		return 0, "Email with no payload"
	}
	subject := strings.ToLower(item.Email.Subject)
	sender := strings.ToLower(item.Email.Sender)
	body := strings.ToLower(item.Email.Body)

	score := r.Baseline
	if containsAny(subject, r.UrgencyKeywords) || containsAny(body, r.UrgencyKeywords) {
		score += r.UrgencyDelta
	}
	if containsAny(body, r.MeetingKeywords) {
		score += r.MeetingDelta
	}
	if containsAny(sender, r.AuthoritySenders) {
		score += r.AuthorityDelta
	}

	summary := fmt.Sprintf("Email from %s about %s", item.Email.Sender, truncate(subject, 50))
	return score, summary
}

func scoreCalendarFallback(item *proto.MonitoredItem, r keywordRules) (float64, string) {
	if item.Event == nil {
		return 0, "Event with no payload"
	}
	title := strings.ToLower(item.Event.Title)

	score := r.Baseline
	if containsAny(title, r.UrgencyKeywords) {
		score += r.UrgencyDelta
	}
	if containsAny(title, r.MeetingKeywords) {
		score += r.MeetingDelta
	}
	if containsAny(title, r.PresentationKeywords) {
		score += r.PresentationDelta
	}

	summary := fmt.Sprintf("Meeting: %s", item.Event.Title)
	return score, summary
}

func fallbackUrgency(score float64) proto.Urgency {
	switch {
	case score > 0.8:
		return proto.UrgencyHigh
	case score > 0.5:
		return proto.UrgencyMedium
	default:
		return proto.UrgencyLow
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
