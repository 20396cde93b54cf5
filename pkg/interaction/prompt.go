package interaction

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"assistant/pkg/proto"
)

// ComposePrompt renders flagged items and conflicts into one spoken/typed
// prompt. Items are ordered by descending severity, then by time, so the
// most pressing thing is said first.
func ComposePrompt(flagged []*proto.MonitoredItem, conflicts []proto.Conflict) string {
	items := make([]*proto.MonitoredItem, len(flagged))
	copy(items, flagged)
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Urgency().Rank(), items[j].Urgency().Rank()
		if ri != rj {
			return ri > rj
		}
		return items[i].Time().Before(items[j].Time())
	})

	var b strings.Builder
	b.WriteString("You have items needing attention.\n")

	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeItem(item))
	}

	if len(conflicts) > 0 {
		b.WriteString("\nSchedule conflicts:\n")
		for _, c := range conflicts {
			fmt.Fprintf(&b, "- %d events clash (%s severity): %s\n",
				len(c.ItemIDs), c.Severity, strings.Join(c.ItemIDs, ", "))
		}
	}

	b.WriteString("\nWhat would you like to do? You can reschedule, cancel, send a reply, or do nothing.")
	return b.String()
}

// ClarifyPrompt asks again after an uninterpretable reply.
func ClarifyPrompt(flagged []*proto.MonitoredItem) string {
	var b strings.Builder
	b.WriteString("Sorry, I didn't catch that. ")
	fmt.Fprintf(&b, "There are %d items waiting. ", len(flagged))
	b.WriteString("Please say reschedule, cancel, reply, or nothing.")
	return b.String()
}

func describeItem(item *proto.MonitoredItem) string {
	urgency := item.Urgency()
	switch item.Source {
	case proto.SourceEmail:
		if item.Analysis != nil && item.Analysis.Summary != "" {
			return fmt.Sprintf("[%s] %s", urgency, item.Analysis.Summary)
		}
		if item.Email != nil {
			return fmt.Sprintf("[%s] Email from %s: %s", urgency, item.Email.Sender, item.Email.Subject)
		}
	case proto.SourceCalendar:
		if item.Event != nil {
			return fmt.Sprintf("[%s] %s at %s", urgency, item.Event.Title,
				item.Event.Start.Format(time.Kitchen))
		}
	}
	return fmt.Sprintf("[%s] item %s", urgency, item.ID)
}
