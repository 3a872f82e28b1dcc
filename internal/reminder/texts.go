package reminder

import (
	"fmt"
	"strings"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/dispatch"
	"azanbot/internal/prayer"
)

// PollQuestion and PollOptions make up the nightly summary poll.
const PollQuestion = "Did you pray today? (Daily Summary)"

var PollOptions = []string{"🌅 Subh (Fajr)", "☀️ Duhr", "🕒 Asr", "🌆 Magrib", "🌙 Isha"}

// ReminderText renders the prayer-time reminder. A non-empty tpl replaces the
// built-in layout.
func ReminderText(tpl string, loc prayer.Location, p prayer.Prayer, hhmm string) string {
	if strings.TrimSpace(tpl) != "" {
		return dispatch.Render(tpl, dispatch.Vars{
			Location: loc.Name,
			District: loc.District,
			Prayer:   p.Label(),
			Time:     clock.FormatDisplay(hhmm),
		})
	}
	return fmt.Sprintf("🕌 *AZAN REMINDER* 🕌\n\n📍 Location: %s\n🕐 Prayer: %s\n⏰ Time: %s\n\nMay Allah accept your prayers. 🤲",
		loc.Name, p.Label(), clock.FormatDisplay(hhmm))
}

func FollowUpText(tpl string, loc prayer.Location, p prayer.Prayer, hhmm string) string {
	if strings.TrimSpace(tpl) != "" {
		return dispatch.Render(tpl, dispatch.Vars{
			Location: loc.Name,
			District: loc.District,
			Prayer:   p.Title(),
			Time:     clock.FormatDisplay(hhmm),
		})
	}
	return fmt.Sprintf("🤲 Did you pray *%s* in congregation today, %s?", p.Title(), loc.Name)
}

// DigestText is the morning schedule for one location.
func DigestText(locName string, day time.Time, times prayer.DailyPrayerTimes) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌄 *Today's Prayer Schedule*\n\n📍 Location: %s\n📅 Date: %s\n\n", locName, clock.FormatDate(day))
	for _, p := range prayer.All {
		fmt.Fprintf(&b, "• %s: %s\n", p.Label(), clock.FormatDisplay(times.Time(p)))
	}
	b.WriteString("\nMay Allah accept your prayers. 🤲")
	return b.String()
}
