package commands

import (
	"fmt"
	"strings"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/prayer"
)

const ErrorReply = "❌ Sorry, something went wrong. Please try again."

const helpReply = `🕌 *Azan Bot - Help*

*Available Commands:*

📍 *azan-today-[location]*
Get today's prayer times for a location
Example: azan-today-kozhikode

🔔 *azan-next-[location]*
Get next prayer time for a location
Example: azan-next-kochi

📋 *locations*
View all %d available locations

❓ *help*
Show this help message

*Quick Tips:*
• Location names are case-insensitive
• Works with partial names (e.g., "malap" finds Malappuram)
• All times are in 24-hour format (HH:MM)

May Allah bless you! 🤲`

func missingLocationReply(k Kind) string {
	if k == Next {
		return "❌ Please specify a location.\nExample: azan-next-kozhikode"
	}
	return "❌ Please specify a location.\nExample: azan-today-kozhikode"
}

func unknownLocationReply(q string) string {
	return fmt.Sprintf("❌ Location \"%s\" not found.\n\nUse \"locations\" to see available locations.", q)
}

func unavailableReply(loc prayer.Location) string {
	return fmt.Sprintf("❌ Prayer times not available for %s", loc.Name)
}

func todayReply(loc prayer.Location, day time.Time, t prayer.DailyPrayerTimes) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🕌 *Today's Prayer Times*\n\n📍 Location: %s, %s\n📅 Date: %s\n\n⏰ Prayer Times:\n", loc.Name, loc.District, clock.FormatDate(day))
	for _, p := range prayer.All {
		fmt.Fprintf(&b, "• %s: %s\n", p.Label(), t.Time(p))
	}
	b.WriteString("\nMay Allah accept your prayers. 🤲")
	return b.String()
}

func nextReply(loc prayer.Location, now string, n prayer.Next) string {
	name := n.Prayer.Title()
	if n.Tomorrow {
		name += " (Tomorrow)"
	}
	return fmt.Sprintf("🕌 *Next Prayer Time*\n\n📍 Location: %s, %s\n⏰ Current Time: %s\n\n🔔 Next Prayer: %s\n⏱️ Time: %s\n\nMay Allah guide us. 🤲",
		loc.Name, loc.District, now, name, n.Time)
}

func locationsReply(locs []prayer.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📍 *Available Locations (%d)*\n\n", len(locs))
	for i, l := range locs {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, l.Name, l.District)
	}
	b.WriteString("\n*Usage:*\nSend \"azan-today-[location]\" to get prayer times.\nExample: azan-today-kasaragod\n\nMay Allah guide you! 🤲")
	return b.String()
}
